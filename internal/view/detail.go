package view

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"docinsight/internal/app"
	"docinsight/internal/model"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type InsightItem struct {
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Bar is one column of the relevance chart. Height is the relevance score;
// Percent is the same value relative to the top of the scale.
type Bar struct {
	Label   string  `json:"label"`
	Height  float64 `json:"height"`
	Percent float64 `json:"percent"`
}

type Chart struct {
	Max  float64 `json:"max"`
	Bars []Bar   `json:"bars"`
}

type Detail struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	ContentHTML template.HTML `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	ModifiedAt  time.Time     `json:"modified_at"`
	Edited      bool          `json:"edited"`
	Insights    []InsightItem `json:"insights"`
	Chart       Chart         `json:"chart"`
}

// Empty reports whether the summary has no insights to show.
func (d *Detail) Empty() bool {
	return len(d.Insights) == 0
}

func NewDetail(detail app.SummaryDetail) (*Detail, error) {
	html, err := RenderMarkdown(detail.Summary.Content)
	if err != nil {
		return nil, err
	}

	out := &Detail{
		ID:          detail.Summary.ID,
		Title:       detail.Summary.Title,
		Content:     detail.Summary.Content,
		ContentHTML: html,
		CreatedAt:   detail.Summary.CreatedAt,
		ModifiedAt:  detail.Summary.ModifiedAt,
		Edited:      detail.Summary.ModifiedAt.After(detail.Summary.CreatedAt),
		Insights:    make([]InsightItem, 0, len(detail.Insights)),
		Chart: Chart{
			Max:  model.MaxRelevanceScore,
			Bars: make([]Bar, 0, len(detail.Insights)),
		},
	}
	for i, insight := range detail.Insights {
		out.Insights = append(out.Insights, InsightItem{
			Position: i + 1,
			Text:     insight.Content,
			Score:    insight.RelevanceScore,
		})
		out.Chart.Bars = append(out.Chart.Bars, Bar{
			Label:   fmt.Sprintf("#%d", i+1),
			Height:  insight.RelevanceScore,
			Percent: insight.RelevanceScore / model.MaxRelevanceScore * 100,
		})
	}
	return out, nil
}

// RenderMarkdown converts model output to HTML. Raw HTML in the source is
// not passed through.
func RenderMarkdown(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown failed: %w", err)
	}
	return template.HTML(buf.String()), nil
}
