package deployment

import (
	"fmt"

	"github.com/google/uuid"
)

// Outcome is the container's verdict on a single action.
type Outcome int

// Action outcomes.
const (
	OutcomeNotExecuted Outcome = iota
	OutcomeExecuted
	OutcomeRequiresRestart
	OutcomeRolledBack
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNotExecuted:
		return "NOT_EXECUTED"
	case OutcomeExecuted:
		return "EXECUTED"
	case OutcomeRequiresRestart:
		return "REQUIRES_RESTART"
	case OutcomeRolledBack:
		return "ROLLED_BACK"
	case OutcomeFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ActionResult is the raw result of one action. Cause is set for OutcomeFailed.
type ActionResult struct {
	Outcome Outcome
	Cause   error
}

// RawResults maps action ids to their raw results, as reported by the container.
type RawResults map[string]ActionResult

// Status is the overall verdict on a plan.
type Status int

// Plan statuses.
const (
	StatusSuccess Status = iota
	StatusSuccessRequiresRestart
	StatusFailure
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusSuccessRequiresRestart:
		return "SUCCESS_REQUIRES_RESTART"
	case StatusFailure:
		return "FAILURE"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ActionOutcome pairs an action with its result.
type ActionOutcome struct {
	Action Action
	Result ActionResult
}

// PlanResult is the classified result of an executed plan.
type PlanResult struct {
	// PlanID is the correlation id of the plan.
	PlanID uuid.UUID
	// Outcomes holds one entry per action, in plan order.
	Outcomes []ActionOutcome
	// Status is the overall verdict.
	Status Status
	// Cause is the root cause when Status is StatusFailure.
	Cause error
}

// Succeeded reports whether the plan succeeded, with or without a restart requirement.
func (r PlanResult) Succeeded() bool {
	return r.Status != StatusFailure
}

// Err returns an *ExecutionFailedError for failed plans and nil otherwise.
func (r PlanResult) Err() error {
	if r.Status != StatusFailure {
		return nil
	}

	return &ExecutionFailedError{
		PlanID: r.PlanID,
		Cause:  r.Cause,
	}
}

// Classify folds raw per-action results into a plan result. It only
// classifies: nothing is retried or resubmitted.
//
// EXECUTED and NOT_EXECUTED count as success. REQUIRES_RESTART counts as
// success but raises the status to StatusSuccessRequiresRestart, which later
// successes do not lower. ROLLED_BACK and FAILED make the plan fail; the first
// FAILED cause in action order becomes the root cause. Actions missing from
// raw count as NOT_EXECUTED.
func Classify(plan *Plan, raw RawResults) PlanResult {
	var (
		actions      = plan.Actions()
		result       = PlanResult{PlanID: plan.ID(), Outcomes: make([]ActionOutcome, 0, len(actions))}
		failed       bool
		restart      bool
		rolledBackAt *Action
		rolledCause  error
	)

	for i, action := range actions {
		actionResult, ok := raw[action.ID]
		if !ok {
			actionResult = ActionResult{Outcome: OutcomeNotExecuted}
		}

		result.Outcomes = append(result.Outcomes, ActionOutcome{Action: action, Result: actionResult})

		switch actionResult.Outcome {
		case OutcomeExecuted, OutcomeNotExecuted:
		case OutcomeRequiresRestart:
			restart = true
		case OutcomeRolledBack:
			failed = true

			if rolledBackAt == nil {
				rolledBackAt = &actions[i]
			}

			if rolledCause == nil {
				rolledCause = actionResult.Cause
			}
		case OutcomeFailed:
			failed = true

			if result.Cause == nil {
				result.Cause = actionResult.Cause
				if result.Cause == nil {
					result.Cause = fmt.Errorf("%s failed without a failure description", action)
				}
			}
		}
	}

	switch {
	case failed:
		result.Status = StatusFailure

		switch {
		case result.Cause != nil:
		case rolledCause != nil:
			result.Cause = rolledCause
		case rolledBackAt != nil:
			result.Cause = fmt.Errorf("%s was rolled back", *rolledBackAt)
		}
	case restart:
		result.Status = StatusSuccessRequiresRestart
	default:
		result.Status = StatusSuccess
	}

	return result
}
