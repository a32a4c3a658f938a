package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docinsight/internal/model"
)

func seedSummary(t *testing.T, store *memoryStore, userID uint, modifiedAt time.Time) model.Summary {
	t.Helper()
	summary := &model.Summary{
		UserID:     userID,
		Title:      "Q3 report",
		Content:    "Revenue grew.",
		CreatedAt:  modifiedAt,
		ModifiedAt: modifiedAt,
	}
	summary.EnsureID()
	insights := []model.Insight{
		{ID: "i1", SummaryID: summary.ID, Position: 0, Content: "Revenue growth accelerating", RelevanceScore: 9},
		{ID: "i2", SummaryID: summary.ID, Position: 1, Content: "Costs under control", RelevanceScore: 6},
	}
	require.NoError(t, store.CreateWithInsights(context.Background(), summary, insights))
	return *summary
}

func TestHistoryGetReturnsSummaryWithInsights(t *testing.T) {
	store := newMemoryStore()
	svc := NewHistoryService(store, nil, nil, nil)
	seeded := seedSummary(t, store, 1, time.Now())

	detail, err := svc.Get(context.Background(), 1, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, detail.Summary.ID)
	require.Len(t, detail.Insights, 2)
	assert.Equal(t, "Costs under control", detail.Insights[1].Content)
}

func TestHistoryGetDeniesOtherUsers(t *testing.T) {
	store := newMemoryStore()
	cache := newMemoryCache()
	svc := NewHistoryService(store, cache, nil, nil)
	seeded := seedSummary(t, store, 1, time.Now())

	_, err := svc.Get(context.Background(), 2, seeded.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Get(context.Background(), 1, seeded.ID)
	require.NoError(t, err)
	require.Contains(t, cache.entries, seeded.ID)

	_, err = svc.Get(context.Background(), 2, seeded.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestHistoryGetMissing(t *testing.T) {
	svc := NewHistoryService(newMemoryStore(), nil, nil, nil)

	_, err := svc.Get(context.Background(), 1, "nope")
	assert.ErrorIs(t, err, ErrSummaryNotFound)
}

func TestHistoryListIsScopedAndNewestFirst(t *testing.T) {
	store := newMemoryStore()
	svc := NewHistoryService(store, nil, nil, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older := seedSummary(t, store, 1, base)
	newer := seedSummary(t, store, 1, base.Add(time.Hour))
	seedSummary(t, store, 2, base.Add(2*time.Hour))

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestHistoryUpdateBumpsModifiedAtStrictly(t *testing.T) {
	store := newMemoryStore()
	cache := newMemoryCache()
	events := &recordingEvents{}
	svc := NewHistoryService(store, cache, events, nil)

	stamp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seeded := seedSummary(t, store, 1, stamp)
	_, err := svc.Get(context.Background(), 1, seeded.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return stamp }
	updated, err := svc.Update(context.Background(), UpdateSummaryInput{
		UserID:    1,
		SummaryID: seeded.ID,
		Title:     "Edited",
		Content:   "New body",
	})
	require.NoError(t, err)
	assert.True(t, updated.ModifiedAt.After(stamp))
	assert.Equal(t, seeded.CreatedAt, updated.CreatedAt)

	stored, err := store.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", stored.Title)
	assert.Equal(t, "New body", stored.Content)
	assert.Equal(t, updated.ModifiedAt, stored.ModifiedAt)

	assert.NotContains(t, cache.entries, seeded.ID)
	assert.True(t, cache.dirty[seeded.ID])
	assert.Equal(t, []string{seeded.ID}, events.changed)

	later := stamp.Add(time.Minute)
	svc.now = func() time.Time { return later }
	again, err := svc.Update(context.Background(), UpdateSummaryInput{
		UserID: 1, SummaryID: seeded.ID, Title: "Edited twice", Content: "Body",
	})
	require.NoError(t, err)
	assert.Equal(t, later, again.ModifiedAt)
}

func TestHistoryUpdateValidation(t *testing.T) {
	store := newMemoryStore()
	svc := NewHistoryService(store, nil, nil, nil)
	seeded := seedSummary(t, store, 1, time.Now())

	_, err := svc.Update(context.Background(), UpdateSummaryInput{UserID: 1, SummaryID: seeded.ID, Title: "", Content: ""})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 2)
	assert.Zero(t, store.updates)

	_, err = svc.Update(context.Background(), UpdateSummaryInput{UserID: 2, SummaryID: seeded.ID, Title: "x", Content: "y"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, store.updates)
}

func TestHistoryDeleteCascadesToInsights(t *testing.T) {
	store := newMemoryStore()
	events := &recordingEvents{}
	svc := NewHistoryService(store, newMemoryCache(), events, nil)
	seeded := seedSummary(t, store, 1, time.Now())

	assert.ErrorIs(t, svc.Delete(context.Background(), 2, seeded.ID), ErrPermissionDenied)

	require.NoError(t, svc.Delete(context.Background(), 1, seeded.ID))
	insights, err := store.ListInsights(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Empty(t, insights)
	assert.Zero(t, store.orphanInsights())
	assert.Equal(t, []string{seeded.ID}, events.changed)

	_, err = svc.Get(context.Background(), 1, seeded.ID)
	assert.ErrorIs(t, err, ErrSummaryNotFound)
}

// interleavedStore runs beforeWrite ahead of each mutation so a reader can
// slip in between cache invalidation and the store write.
type interleavedStore struct {
	*memoryStore
	beforeWrite func()
}

func (s *interleavedStore) UpdateContent(ctx context.Context, id, title, content string, modifiedAt time.Time) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	return s.memoryStore.UpdateContent(ctx, id, title, content, modifiedAt)
}

func (s *interleavedStore) DeleteWithInsights(ctx context.Context, id string) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	return s.memoryStore.DeleteWithInsights(ctx, id)
}

func TestHistoryDeleteDoesNotLeaveStaleCacheEntry(t *testing.T) {
	store := &interleavedStore{memoryStore: newMemoryStore()}
	cache := newMemoryCache()
	svc := NewHistoryService(store, cache, nil, nil)
	seeded := seedSummary(t, store.memoryStore, 1, time.Now())

	store.beforeWrite = func() {
		detail, err := svc.Get(context.Background(), 1, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, detail.Summary.ID)
		assert.NotContains(t, cache.entries, seeded.ID)
	}
	require.NoError(t, svc.Delete(context.Background(), 1, seeded.ID))

	// dirty marker expired
	delete(cache.dirty, seeded.ID)
	assert.NotContains(t, cache.entries, seeded.ID)
	_, err := svc.Get(context.Background(), 1, seeded.ID)
	assert.ErrorIs(t, err, ErrSummaryNotFound)
}

func TestHistoryUpdateSurvivesDirtyMarkerExpiringMidWrite(t *testing.T) {
	store := &interleavedStore{memoryStore: newMemoryStore()}
	cache := newMemoryCache()
	svc := NewHistoryService(store, cache, nil, nil)
	seeded := seedSummary(t, store.memoryStore, 1, time.Now().Add(-time.Minute))

	store.beforeWrite = func() {
		delete(cache.dirty, seeded.ID)
		detail, err := svc.Get(context.Background(), 1, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, "Q3 report", detail.Summary.Title)
	}
	_, err := svc.Update(context.Background(), UpdateSummaryInput{
		UserID:    1,
		SummaryID: seeded.ID,
		Title:     "Q3 report (revised)",
		Content:   "Revenue grew faster.",
	})
	require.NoError(t, err)

	delete(cache.dirty, seeded.ID)
	detail, err := svc.Get(context.Background(), 1, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q3 report (revised)", detail.Summary.Title)
	assert.Equal(t, "Revenue grew faster.", detail.Summary.Content)
}
