package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"docinsight/internal/model"
)

// SummaryDetail is a summary together with its insights in stored order.
type SummaryDetail struct {
	Summary  model.Summary   `json:"summary"`
	Insights []model.Insight `json:"insights"`
}

type UpdateSummaryInput struct {
	UserID    uint
	SummaryID string
	Title     string
	Content   string
}

type HistoryService struct {
	store       SummaryStore
	cache       DetailCache
	events      SummaryEvents
	constraints SummaryEditConstraints
	logger      *zap.Logger
	now         func() time.Time
}

// NewHistoryService builds the service. cache and events may be nil.
func NewHistoryService(store SummaryStore, cache DetailCache, events SummaryEvents, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		store:       store,
		cache:       cache,
		events:      events,
		constraints: DefaultSummaryEditConstraints(),
		logger:      logger,
		now:         time.Now,
	}
}

// List returns the user's summaries, newest first.
func (s *HistoryService) List(ctx context.Context, userID uint) ([]model.Summary, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.store.ListByUserID(ctx, userID)
}

func (s *HistoryService) Get(ctx context.Context, userID uint, summaryID string) (*SummaryDetail, error) {
	if userID == 0 || strings.TrimSpace(summaryID) == "" {
		return nil, ErrInvalidInput
	}

	if detail := s.cached(ctx, summaryID); detail != nil {
		if detail.Summary.UserID != userID {
			return nil, ErrPermissionDenied
		}
		return detail, nil
	}

	summary, err := s.owned(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	insights, err := s.store.ListInsights(ctx, summary.ID)
	if err != nil {
		return nil, err
	}
	detail := &SummaryDetail{Summary: *summary, Insights: insights}

	// A writer may have marked the entry dirty while this read was in flight.
	if s.cache != nil {
		if dirty, dirtyErr := s.cache.IsDirty(ctx, summaryID); dirtyErr == nil && !dirty {
			if err := s.cache.Set(ctx, detail); err != nil {
				s.logger.Warn("cache summary detail failed", zap.String("summary_id", summaryID), zap.Error(err))
			}
		}
	}
	return detail, nil
}

// Update overwrites title and content. ModifiedAt always moves strictly forward.
func (s *HistoryService) Update(ctx context.Context, input UpdateSummaryInput) (*model.Summary, error) {
	if input.UserID == 0 || strings.TrimSpace(input.SummaryID) == "" {
		return nil, ErrInvalidInput
	}
	if err := s.constraints.Validate(input.Title, input.Content); err != nil {
		return nil, err
	}

	summary, err := s.owned(ctx, input.UserID, input.SummaryID)
	if err != nil {
		return nil, err
	}

	modifiedAt := s.now().UTC().Truncate(time.Millisecond)
	previous := summary.ModifiedAt.UTC().Truncate(time.Millisecond)
	if !modifiedAt.After(previous) {
		modifiedAt = previous.Add(time.Millisecond)
	}

	title := strings.TrimSpace(input.Title)
	s.invalidate(ctx, summary.ID)
	if err := s.store.UpdateContent(ctx, summary.ID, title, input.Content, modifiedAt); err != nil {
		return nil, err
	}
	s.invalidate(ctx, summary.ID)
	s.changed(ctx, summary.ID)

	summary.Title = title
	summary.Content = input.Content
	summary.ModifiedAt = modifiedAt
	return summary, nil
}

// Delete removes the summary and all of its insights.
func (s *HistoryService) Delete(ctx context.Context, userID uint, summaryID string) error {
	if userID == 0 || strings.TrimSpace(summaryID) == "" {
		return ErrInvalidInput
	}
	summary, err := s.owned(ctx, userID, summaryID)
	if err != nil {
		return err
	}
	s.invalidate(ctx, summary.ID)
	if err := s.store.DeleteWithInsights(ctx, summary.ID); err != nil {
		return err
	}
	s.invalidate(ctx, summary.ID)
	s.changed(ctx, summary.ID)
	return nil
}

func (s *HistoryService) owned(ctx context.Context, userID uint, summaryID string) (*model.Summary, error) {
	summary, err := s.store.GetByID(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, ErrSummaryNotFound
	}
	if summary.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return summary, nil
}

// cached returns the cached detail unless the entry is missing or marked dirty.
func (s *HistoryService) cached(ctx context.Context, summaryID string) *SummaryDetail {
	if s.cache == nil {
		return nil
	}
	dirty, err := s.cache.IsDirty(ctx, summaryID)
	if err != nil || dirty {
		return nil
	}
	detail, ok, err := s.cache.Get(ctx, summaryID)
	if err != nil {
		s.logger.Warn("read summary detail cache failed", zap.String("summary_id", summaryID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return detail
}

// invalidate runs before and after each store write so a read racing the
// write cannot leave a stale entry behind once the dirty marker expires.
func (s *HistoryService) invalidate(ctx context.Context, summaryID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkDirty(ctx, summaryID); err != nil {
		s.logger.Warn("mark summary detail dirty failed", zap.String("summary_id", summaryID), zap.Error(err))
	}
	if err := s.cache.Delete(ctx, summaryID); err != nil {
		s.logger.Warn("delete summary detail cache failed", zap.String("summary_id", summaryID), zap.Error(err))
	}
}

func (s *HistoryService) changed(ctx context.Context, summaryID string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSummaryChanged(ctx, summaryID); err != nil {
		s.logger.Warn("publish summary change failed", zap.String("summary_id", summaryID), zap.Error(err))
	}
}

