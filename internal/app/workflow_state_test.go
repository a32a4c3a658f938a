package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docinsight/internal/model"
)

var allStates = []model.WorkflowState{
	model.WorkflowIdle,
	model.WorkflowSummarizing,
	model.WorkflowInsighting,
	model.WorkflowPersisting,
	model.WorkflowComplete,
	model.WorkflowErrored,
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]model.WorkflowState]bool{
		{model.WorkflowIdle, model.WorkflowSummarizing}:       true,
		{model.WorkflowSummarizing, model.WorkflowInsighting}: true,
		{model.WorkflowInsighting, model.WorkflowPersisting}:  true,
		{model.WorkflowPersisting, model.WorkflowComplete}:    true,
		{model.WorkflowIdle, model.WorkflowErrored}:           true,
		{model.WorkflowSummarizing, model.WorkflowErrored}:    true,
		{model.WorkflowInsighting, model.WorkflowErrored}:     true,
		{model.WorkflowPersisting, model.WorkflowErrored}:     true,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			want := allowed[[2]model.WorkflowState{from, to}]
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionLeavesRunUntouchedOnRejection(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &model.WorkflowRun{State: model.WorkflowComplete, UpdatedAt: at}

	err := Transition(run, model.WorkflowSummarizing, at.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.WorkflowComplete, run.State)
	assert.Equal(t, at, run.UpdatedAt)
}

func TestFailSetsUserFacingMessage(t *testing.T) {
	run := &model.WorkflowRun{State: model.WorkflowInsighting}
	err := Fail(run, assert.AnError, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, model.WorkflowErrored, run.State)
	assert.Equal(t, "Could not process the document. "+assert.AnError.Error(), run.Error)

	assert.ErrorIs(t, Fail(run, assert.AnError, time.Now()), ErrInvalidTransition)
}
