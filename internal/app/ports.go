package app

import (
	"context"
	"time"

	"docinsight/internal/model"
)

type Summarizer interface {
	Summarize(ctx context.Context, doc EncodedDocument) (string, error)
}

type InsightExtractor interface {
	ExtractInsights(ctx context.Context, summary string) ([]model.ScoredInsight, error)
}

// SummaryStore persists summaries and their insights. Getters return (nil, nil)
// when the record does not exist.
type SummaryStore interface {
	CreateWithInsights(ctx context.Context, summary *model.Summary, insights []model.Insight) error
	GetByID(ctx context.Context, id string) (*model.Summary, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Summary, error)
	ListInsights(ctx context.Context, summaryID string) ([]model.Insight, error)
	UpdateContent(ctx context.Context, id, title, content string, modifiedAt time.Time) error
	DeleteWithInsights(ctx context.Context, id string) error
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
	UpdateProfile(ctx context.Context, id uint, displayName, photoURL string) error
}

// RunStore keeps workflow run snapshots. Save also broadcasts the snapshot to
// subscribers of the run.
type RunStore interface {
	Save(ctx context.Context, run *model.WorkflowRun) error
	Get(ctx context.Context, id string) (*model.WorkflowRun, error)
}

type JobPublisher interface {
	PublishWorkflowJob(ctx context.Context, job WorkflowJob) error
}

type DetailCache interface {
	Get(ctx context.Context, summaryID string) (*SummaryDetail, bool, error)
	Set(ctx context.Context, detail *SummaryDetail) error
	Delete(ctx context.Context, summaryID string) error
	MarkDirty(ctx context.Context, summaryID string) error
	IsDirty(ctx context.Context, summaryID string) (bool, error)
}

type SummaryEvents interface {
	PublishSummaryChanged(ctx context.Context, summaryID string) error
}

type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// WorkflowObserver receives timing and outcome signals from the orchestrator.
type WorkflowObserver interface {
	RunStarted()
	StepFinished(step model.WorkflowState, duration time.Duration, err error)
	RunFinished(state model.WorkflowState)
}

type noopObserver struct{}

func (noopObserver) RunStarted()                                         {}
func (noopObserver) StepFinished(model.WorkflowState, time.Duration, error) {}
func (noopObserver) RunFinished(model.WorkflowState)                     {}
