package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v2"

	"docinsight/internal/model"
)

type InsightExtractor struct {
	client *ChatClient
	model  string
}

func NewInsightExtractor(client *ChatClient, model string) *InsightExtractor {
	return &InsightExtractor{client: client, model: model}
}

func (e *InsightExtractor) ExtractInsights(ctx context.Context, summary string) ([]model.ScoredInsight, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(insightSystemPrompt),
		openai.UserMessage(summary),
	}
	raw, err := e.client.Complete(ctx, e.model, messages)
	if err != nil {
		return nil, err
	}
	return ParseInsights(raw)
}

type insightEnvelope struct {
	Insights *[]rawInsight `json:"insights"`
}

type rawInsight struct {
	Insight        string    `json:"insight"`
	RelevanceScore flexScore `json:"relevanceScore"`
}

// flexScore accepts numbers and numeric strings.
type flexScore float64

func (s *flexScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return fmt.Errorf("relevance score %q is not a number", text)
		}
		*s = flexScore(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = flexScore(v)
	return nil
}

// ParseInsights decodes {"insights":[{"insight","relevanceScore"}]} keeping
// the model's order. Markdown code fences and a bare array are tolerated.
func ParseInsights(raw string) ([]model.ScoredInsight, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty insights payload", ErrMalformedResponse)
	}

	var items []rawInsight
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	} else {
		var env insightEnvelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if env.Insights == nil {
			return nil, fmt.Errorf("%w: missing insights", ErrMalformedResponse)
		}
		items = *env.Insights
	}

	out := make([]model.ScoredInsight, 0, len(items))
	for i, item := range items {
		text := strings.TrimSpace(item.Insight)
		if text == "" {
			return nil, fmt.Errorf("%w: insight %d has no statement", ErrMalformedResponse, i)
		}
		out = append(out, model.ScoredInsight{
			Insight:        text,
			RelevanceScore: float64(item.RelevanceScore),
		})
	}
	return out, nil
}

func stripCodeFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "```")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
