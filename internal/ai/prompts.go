package ai

const summarizeSystemPrompt = `You are an analyst who condenses business documents.
Write in the language of the document. Use short paragraphs or bullet points in Markdown.`

const summarizeInstruction = `Summarize the attached document. Cover its purpose, the key facts and figures,
and any decisions or open issues it mentions. Do not invent details that are not in the document.`

const insightSystemPrompt = `You extract insights from document summaries.
Reply with JSON only, no prose and no code fences, using exactly this shape:
{"insights":[{"insight":"<one sentence>","relevanceScore":<number from 1 to 10>}]}
Return between 3 and 5 insights ordered from most to least relevant.
relevanceScore rates how important the insight is for a decision maker, 10 being critical.`
