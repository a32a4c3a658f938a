package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docinsight/internal/app"
	"docinsight/internal/model"
)

type fakeRunner struct {
	jobs []app.WorkflowJob
	run  *model.WorkflowRun
	err  error
}

func (f *fakeRunner) Execute(_ context.Context, job app.WorkflowJob) (*model.WorkflowRun, error) {
	f.jobs = append(f.jobs, job)
	return f.run, f.err
}

type fakeLag struct {
	observed []time.Duration
}

func (f *fakeLag) ObserveQueueLag(lag time.Duration) {
	f.observed = append(f.observed, lag)
}

func encodeJob(t *testing.T, job app.WorkflowJob) []byte {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return body
}

func TestHandleRunsJobAndAcks(t *testing.T) {
	runner := &fakeRunner{run: &model.WorkflowRun{ID: "r1", State: model.WorkflowComplete}}
	lag := &fakeLag{}
	w := NewWorkflowWorker(nil, runner, lag, "workflow.run", 1, nil)

	job := app.WorkflowJob{
		RunID:       "r1",
		UserID:      4,
		Title:       "Q3",
		Document:    app.EncodedDocument{Filename: "q3.txt", DataURI: "data:text/plain;base64,YQ=="},
		SubmittedAt: time.Now().Add(-2 * time.Second),
	}
	assert.True(t, w.handle(context.Background(), encodeJob(t, job)))

	require.Len(t, runner.jobs, 1)
	assert.Equal(t, "data:text/plain;base64,YQ==", runner.jobs[0].Document.DataURI)
	require.Len(t, lag.observed, 1)
	assert.GreaterOrEqual(t, lag.observed[0], 2*time.Second)
}

func TestHandleAcksFailedRuns(t *testing.T) {
	runner := &fakeRunner{
		run: &model.WorkflowRun{ID: "r1", State: model.WorkflowErrored},
		err: errors.New("model down"),
	}
	w := NewWorkflowWorker(nil, runner, nil, "workflow.run", 1, nil)

	assert.True(t, w.handle(context.Background(), encodeJob(t, app.WorkflowJob{RunID: "r1"})))
}

func TestHandleRejectsUndecodablePayload(t *testing.T) {
	runner := &fakeRunner{}
	w := NewWorkflowWorker(nil, runner, nil, "workflow.run", 1, nil)

	assert.False(t, w.handle(context.Background(), []byte("not json")))
	assert.False(t, w.handle(context.Background(), []byte(`{"title":"no run id"}`)))
	assert.Empty(t, runner.jobs)
}
