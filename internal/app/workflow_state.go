package app

import (
	"fmt"
	"time"

	"docinsight/internal/model"
)

var workflowTransitions = map[model.WorkflowState][]model.WorkflowState{
	model.WorkflowIdle:        {model.WorkflowSummarizing, model.WorkflowErrored},
	model.WorkflowSummarizing: {model.WorkflowInsighting, model.WorkflowErrored},
	model.WorkflowInsighting:  {model.WorkflowPersisting, model.WorkflowErrored},
	model.WorkflowPersisting:  {model.WorkflowComplete, model.WorkflowErrored},
}

func CanTransition(from, to model.WorkflowState) bool {
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the run to the next state or returns ErrInvalidTransition
// leaving the run untouched.
func Transition(run *model.WorkflowRun, to model.WorkflowState, at time.Time) error {
	if !CanTransition(run.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.State, to)
	}
	run.State = to
	run.UpdatedAt = at
	return nil
}

// Fail marks a non-terminal run as errored with a user-facing message.
func Fail(run *model.WorkflowRun, cause error, at time.Time) error {
	if err := Transition(run, model.WorkflowErrored, at); err != nil {
		return err
	}
	run.Error = "Could not process the document. " + cause.Error()
	return nil
}
