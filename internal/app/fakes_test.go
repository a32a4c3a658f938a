package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"docinsight/internal/model"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
	docs    []EncodedDocument
	before  func()
}

func (f *fakeSummarizer) Summarize(_ context.Context, doc EncodedDocument) (string, error) {
	if f.before != nil {
		f.before()
	}
	f.calls++
	f.docs = append(f.docs, doc)
	return f.summary, f.err
}

type fakeExtractor struct {
	insights []model.ScoredInsight
	err      error
	calls    int
	inputs   []string
}

func (f *fakeExtractor) ExtractInsights(_ context.Context, summary string) ([]model.ScoredInsight, error) {
	f.calls++
	f.inputs = append(f.inputs, summary)
	out := make([]model.ScoredInsight, len(f.insights))
	copy(out, f.insights)
	return out, f.err
}

type memoryStore struct {
	mu        sync.Mutex
	summaries map[string]model.Summary
	insights  map[string][]model.Insight
	createErr error
	updates   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		summaries: make(map[string]model.Summary),
		insights:  make(map[string][]model.Insight),
	}
}

func (m *memoryStore) CreateWithInsights(_ context.Context, summary *model.Summary, insights []model.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	summary.EnsureID()
	m.summaries[summary.ID] = *summary
	m.insights[summary.ID] = append([]model.Insight(nil), insights...)
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) ListByUserID(_ context.Context, userID uint) ([]model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Summary
	for _, s := range m.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) ListInsights(_ context.Context, summaryID string) ([]model.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Insight(nil), m.insights[summaryID]...), nil
}

func (m *memoryStore) UpdateContent(_ context.Context, id, title, content string, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	if !ok {
		return errors.New("not found")
	}
	s.Title = title
	s.Content = content
	s.ModifiedAt = modifiedAt
	m.summaries[id] = s
	m.updates++
	return nil
}

func (m *memoryStore) DeleteWithInsights(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.summaries, id)
	delete(m.insights, id)
	return nil
}

func (m *memoryStore) orphanInsights() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for summaryID, list := range m.insights {
		if _, ok := m.summaries[summaryID]; !ok {
			n += len(list)
		}
	}
	return n
}

type memoryRuns struct {
	mu        sync.Mutex
	current   map[string]model.WorkflowRun
	snapshots []model.WorkflowRun
	saveErr   error
	saveCtxs  []error
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{current: make(map[string]model.WorkflowRun)}
}

func (m *memoryRuns) Save(ctx context.Context, run *model.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCtxs = append(m.saveCtxs, ctx.Err())
	if m.saveErr != nil {
		return m.saveErr
	}
	snapshot := *run
	snapshot.Insights = append([]model.ScoredInsight(nil), run.Insights...)
	m.current[run.ID] = snapshot
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *memoryRuns) Get(_ context.Context, id string) (*model.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.current[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *memoryRuns) states(runID string) []model.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WorkflowState
	for _, s := range m.snapshots {
		if s.ID == runID {
			out = append(out, s.State)
		}
	}
	return out
}

func (m *memoryRuns) snapshotAt(runID string, state model.WorkflowState) (model.WorkflowRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots {
		if s.ID == runID && s.State == state {
			return s, true
		}
	}
	return model.WorkflowRun{}, false
}

type fakeJobs struct {
	jobs []WorkflowJob
	err  error
}

func (f *fakeJobs) PublishWorkflowJob(_ context.Context, job WorkflowJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type memoryCache struct {
	entries map[string]SummaryDetail
	dirty   map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]SummaryDetail), dirty: make(map[string]bool)}
}

func (c *memoryCache) Get(_ context.Context, id string) (*SummaryDetail, bool, error) {
	d, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (c *memoryCache) Set(_ context.Context, d *SummaryDetail) error {
	c.entries[d.Summary.ID] = *d
	return nil
}

func (c *memoryCache) Delete(_ context.Context, id string) error {
	delete(c.entries, id)
	return nil
}

func (c *memoryCache) MarkDirty(_ context.Context, id string) error {
	c.dirty[id] = true
	return nil
}

func (c *memoryCache) IsDirty(_ context.Context, id string) (bool, error) {
	return c.dirty[id], nil
}

type recordingEvents struct {
	changed []string
}

func (r *recordingEvents) PublishSummaryChanged(_ context.Context, id string) error {
	r.changed = append(r.changed, id)
	return nil
}

type memoryUsers struct {
	byID   map[uint]*model.User
	nextID uint
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[uint]*model.User)}
}

func (m *memoryUsers) Create(_ context.Context, user *model.User) error {
	m.nextID++
	user.ID = m.nextID
	copied := *user
	m.byID[user.ID] = &copied
	return nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) UpdateProfile(_ context.Context, id uint, displayName, photoURL string) error {
	u, ok := m.byID[id]
	if !ok {
		return errors.New("not found")
	}
	u.DisplayName = displayName
	u.PhotoURL = photoURL
	return nil
}

type memoryDenylist struct {
	revoked map[string]time.Duration
}

func (m *memoryDenylist) Revoke(_ context.Context, id string, ttl time.Duration) error {
	if m.revoked == nil {
		m.revoked = make(map[string]time.Duration)
	}
	m.revoked[id] = ttl
	return nil
}

func (m *memoryDenylist) IsRevoked(_ context.Context, id string) (bool, error) {
	_, ok := m.revoked[id]
	return ok, nil
}

type recordingObserver struct {
	started  int
	steps    []model.WorkflowState
	finished []model.WorkflowState
}

func (r *recordingObserver) RunStarted() { r.started++ }

func (r *recordingObserver) StepFinished(step model.WorkflowState, _ time.Duration, _ error) {
	r.steps = append(r.steps, step)
}

func (r *recordingObserver) RunFinished(state model.WorkflowState) {
	r.finished = append(r.finished, state)
}

func textUpload(name, body string) DocumentUpload {
	return DocumentUpload{
		Filename:    name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}
