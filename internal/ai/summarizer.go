package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"

	"docinsight/internal/app"
)

type Summarizer struct {
	client *ChatClient
	model  string
}

func NewSummarizer(client *ChatClient, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

// Summarize sends the document inline as a data URI alongside the instruction.
func (s *Summarizer) Summarize(ctx context.Context, doc app.EncodedDocument) (string, error) {
	if doc.DataURI == "" {
		return "", errors.New("document is empty")
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(summarizeSystemPrompt),
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(summarizeInstruction),
			documentPart(doc),
		}),
	}
	return s.client.Complete(ctx, s.model, messages)
}

func documentPart(doc app.EncodedDocument) openai.ChatCompletionContentPartUnionParam {
	if strings.HasPrefix(doc.MIMEType, "image/") {
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: doc.DataURI,
		})
	}
	filename := doc.Filename
	if filename == "" {
		filename = "document"
	}
	return openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
		FileData: openai.String(doc.DataURI),
		Filename: openai.String(filename),
	})
}
