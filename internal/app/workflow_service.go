package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docinsight/internal/model"
)

// WorkflowJob is the queued unit of work for one run.
type WorkflowJob struct {
	RunID       string          `json:"run_id"`
	UserID      uint            `json:"user_id"`
	Title       string          `json:"title"`
	Document    EncodedDocument `json:"document"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

type SubmitWorkflowInput struct {
	UserID uint
	Title  string
	Files  []DocumentUpload
}

type WorkflowServiceDeps struct {
	Constraints WorkflowConstraints
	Summarizer  Summarizer
	Extractor   InsightExtractor
	Store       SummaryStore
	Runs        RunStore
	Jobs        JobPublisher
	Observer    WorkflowObserver
	Logger      *zap.Logger
}

// WorkflowService drives upload → summarize → extract → persist runs.
type WorkflowService struct {
	constraints WorkflowConstraints
	summarizer  Summarizer
	extractor   InsightExtractor
	store       SummaryStore
	runs        RunStore
	jobs        JobPublisher
	observer    WorkflowObserver
	logger      *zap.Logger
	now         func() time.Time
}

func NewWorkflowService(deps WorkflowServiceDeps) *WorkflowService {
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Constraints == (WorkflowConstraints{}) {
		deps.Constraints = DefaultWorkflowConstraints()
	}
	return &WorkflowService{
		constraints: deps.Constraints,
		summarizer:  deps.Summarizer,
		extractor:   deps.Extractor,
		store:       deps.Store,
		runs:        deps.Runs,
		jobs:        deps.Jobs,
		observer:    deps.Observer,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

func (s *WorkflowService) Constraints() WorkflowConstraints {
	return s.constraints
}

// Submit validates and encodes the upload, records a fresh idle run and queues it.
func (s *WorkflowService) Submit(ctx context.Context, input SubmitWorkflowInput) (*model.WorkflowRun, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	if err := s.constraints.Validate(input.Title, input.Files); err != nil {
		return nil, err
	}

	doc, err := EncodeDocument(input.Files[0])
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	run := &model.WorkflowRun{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Title:     strings.TrimSpace(input.Title),
		Filename:  doc.Filename,
		State:     model.WorkflowIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save workflow run failed: %w", err)
	}

	job := WorkflowJob{
		RunID:       run.ID,
		UserID:      run.UserID,
		Title:       run.Title,
		Document:    doc,
		SubmittedAt: now,
	}
	if err := s.jobs.PublishWorkflowJob(ctx, job); err != nil {
		s.fail(ctx, run, err)
		return run, fmt.Errorf("%w: %v", ErrWorkflowEnqueue, err)
	}
	return run, nil
}

// Execute runs a queued job. A job whose run already left idle is not run again.
func (s *WorkflowService) Execute(ctx context.Context, job WorkflowJob) (*model.WorkflowRun, error) {
	run, err := s.runs.Get(ctx, job.RunID)
	if err != nil {
		return nil, fmt.Errorf("load workflow run failed: %w", err)
	}
	if run == nil {
		now := s.timestamp()
		run = &model.WorkflowRun{
			ID:        job.RunID,
			UserID:    job.UserID,
			Title:     job.Title,
			Filename:  job.Document.Filename,
			State:     model.WorkflowIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if run.State != model.WorkflowIdle {
		return run, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.State)
	}
	return run, s.Run(ctx, run, job.Document)
}

// Run executes the steps of an idle run in order, publishing the run after
// every transition. On failure the run ends errored and nothing further is called.
func (s *WorkflowService) Run(ctx context.Context, run *model.WorkflowRun, doc EncodedDocument) error {
	s.observer.RunStarted()
	defer func() { s.observer.RunFinished(run.State) }()

	if err := s.advance(ctx, run, model.WorkflowSummarizing); err != nil {
		return err
	}
	started := time.Now()
	summary, err := s.summarizer.Summarize(ctx, doc)
	if err == nil && strings.TrimSpace(summary) == "" {
		err = errors.New("the model returned an empty summary")
	}
	s.observer.StepFinished(model.WorkflowSummarizing, time.Since(started), err)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.Summary = summary

	if err := s.advance(ctx, run, model.WorkflowInsighting); err != nil {
		return err
	}
	started = time.Now()
	scored, err := s.extractor.ExtractInsights(ctx, summary)
	s.observer.StepFinished(model.WorkflowInsighting, time.Since(started), err)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	for i := range scored {
		scored[i].RelevanceScore = model.ClampRelevance(scored[i].RelevanceScore)
	}
	run.Insights = scored

	if err := s.advance(ctx, run, model.WorkflowPersisting); err != nil {
		return err
	}
	started = time.Now()
	summaryID, err := s.persist(ctx, run)
	s.observer.StepFinished(model.WorkflowPersisting, time.Since(started), err)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.SummaryID = summaryID

	return s.advance(ctx, run, model.WorkflowComplete)
}

// GetRun returns the run if it belongs to the user.
func (s *WorkflowService) GetRun(ctx context.Context, userID uint, runID string) (*model.WorkflowRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load workflow run failed: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	if run.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return run, nil
}

func (s *WorkflowService) persist(ctx context.Context, run *model.WorkflowRun) (string, error) {
	now := s.timestamp()
	summary := &model.Summary{
		UserID:     run.UserID,
		Title:      run.Title,
		Content:    run.Summary,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	summary.EnsureID()

	insights := make([]model.Insight, 0, len(run.Insights))
	for i, item := range run.Insights {
		insight := model.Insight{
			SummaryID:      summary.ID,
			Position:       i,
			Content:        item.Insight,
			RelevanceScore: item.RelevanceScore,
			CreatedAt:      now,
		}
		insight.EnsureID()
		insights = append(insights, insight)
	}

	if err := s.store.CreateWithInsights(ctx, summary, insights); err != nil {
		return "", err
	}
	return summary.ID, nil
}

func (s *WorkflowService) advance(ctx context.Context, run *model.WorkflowRun, to model.WorkflowState) error {
	if err := Transition(run, to, s.timestamp()); err != nil {
		return err
	}
	s.publish(ctx, run)
	return nil
}

func (s *WorkflowService) fail(ctx context.Context, run *model.WorkflowRun, cause error) error {
	if err := Fail(run, cause, s.timestamp()); err != nil {
		return err
	}
	s.publish(ctx, run)
	return fmt.Errorf("workflow run %s failed: %w", run.ID, cause)
}

// publish stores the snapshot; a failed progress update does not abort the run.
// Terminal snapshots are written even when the caller's context is already done.
func (s *WorkflowService) publish(ctx context.Context, run *model.WorkflowRun) {
	if run.State.Terminal() {
		ctx = context.WithoutCancel(ctx)
	}
	if err := s.runs.Save(ctx, run); err != nil {
		s.logger.Warn("save workflow run failed",
			zap.String("run_id", run.ID),
			zap.String("state", string(run.State)),
			zap.Error(err),
		)
	}
}

func (s *WorkflowService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
