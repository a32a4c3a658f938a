package model

import "time"

type WorkflowState string

const (
	WorkflowIdle        WorkflowState = "idle"
	WorkflowSummarizing WorkflowState = "summarizing"
	WorkflowInsighting  WorkflowState = "insighting"
	WorkflowPersisting  WorkflowState = "persisting"
	WorkflowComplete    WorkflowState = "complete"
	WorkflowErrored     WorkflowState = "errored"
)

func (s WorkflowState) Terminal() bool {
	return s == WorkflowComplete || s == WorkflowErrored
}

// ScoredInsight is an insight as returned by the model, before persistence.
type ScoredInsight struct {
	Insight        string  `json:"insight"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// WorkflowRun is the observable snapshot of one upload → summarize → extract → persist run.
type WorkflowRun struct {
	ID        string          `json:"id"`
	UserID    uint            `json:"user_id"`
	Title     string          `json:"title"`
	Filename  string          `json:"filename"`
	State     WorkflowState   `json:"state"`
	Summary   string          `json:"summary,omitempty"`
	Insights  []ScoredInsight `json:"insights,omitempty"`
	SummaryID string          `json:"summary_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
