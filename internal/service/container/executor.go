package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/management"
)

// DefaultPlanTimeout bounds a plan when no timeout is configured.
const DefaultPlanTimeout = 30 * time.Second

// Executor submits plans to the container. It holds no per-plan state and is
// safe for concurrent use; plans touching the same unit must be serialized by
// the caller.
type Executor struct {
	channel management.Channel
	timeout time.Duration
}

// waitingHandler forwards progress messages only while Execute waits for the
// plan. Once stopped, late messages from a detached submission are dropped.
type waitingHandler struct {
	mu      sync.Mutex
	next    management.MessageHandler
	stopped bool
}

func (h *waitingHandler) HandleMessage(severity management.Severity, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	h.next.HandleMessage(severity, text)
}

// stop returns once no message is being forwarded.
func (h *waitingHandler) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
}

// submission is what the background submit reports back.
type submission struct {
	response *management.Response
	err      error
}

// NewExecutor creates an executor over a shared channel.
func NewExecutor(channel management.Channel, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultPlanTimeout
	}

	return &Executor{
		channel: channel,
		timeout: timeout,
	}
}

// Execute submits the plan and waits for its per-action results.
//
// Submission happens in the background and is detached from ctx: once the
// container accepted the plan it runs to completion. Execute returns
// ErrExecutionTimeout when the bound expires first and ErrExecutionInterrupted
// when ctx is done first; in both cases the container state is unknown and must
// be re-read. Progress messages go to handler, or to the log when it is nil,
// and only until Execute returns.
func (e *Executor) Execute(
	ctx context.Context,
	plan *deployment.Plan,
	handler management.MessageHandler,
) (deployment.RawResults, error) {
	if !plan.MarkExecuted() {
		return nil, fmt.Errorf("plan %s was already executed: %w", plan.ID(), deployment.ErrValidation)
	}

	request, err := translate(plan)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFields(ctx, "plan_id", plan.ID(), "actions", len(request.Steps))

	if handler == nil {
		handler = NewLogHandler(ctx)
	}

	forward := &waitingHandler{next: handler}
	defer forward.stop()

	logger.DebugKV(ctx, "Submitting plan", "plan", plan)

	done := make(chan submission, 1)
	submitCtx := context.WithoutCancel(ctx)

	go func() {
		response, err := e.channel.Execute(submitCtx, request, forward)
		done <- submission{response: response, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case result := <-done:
		if result.err != nil {
			logger.ErrorKV(ctx, "Plan submission failed", "error", result.err)

			return nil, fmt.Errorf("submit plan %s: %w", plan.ID(), result.err)
		}

		return rawResults(plan, result.response)
	case <-timer.C:
		logger.WarnKV(ctx, "Plan did not complete in time", "timeout", e.timeout)

		return nil, fmt.Errorf("plan %s after %s: %w", plan.ID(), e.timeout, deployment.ErrExecutionTimeout)
	case <-ctx.Done():
		logger.WarnKV(ctx, "Stopped waiting for plan", "error", ctx.Err())

		return nil, fmt.Errorf("plan %s: %w: %w", plan.ID(), deployment.ErrExecutionInterrupted, ctx.Err())
	}
}

// translate builds the composite operation for a plan. Content streams are
// numbered in action order.
func translate(plan *deployment.Plan) (*management.Request, error) {
	composite := &management.Request{Operation: management.OpComposite}

	for _, action := range plan.Actions() {
		address := management.DeploymentAddress(action.Unit.Name)

		var step *management.Request

		switch action.Kind {
		case deployment.ActionAdd:
			step = &management.Request{
				Operation: management.OpAdd,
				Address:   address,
				Params:    map[string]any{"content": management.StreamRef(len(composite.Streams))},
			}
		case deployment.ActionDeploy:
			step = &management.Request{Operation: management.OpDeploy, Address: address}
		case deployment.ActionReplace:
			step = &management.Request{
				Operation: management.OpFullReplaceDeployment,
				Params: map[string]any{
					"name":    action.Unit.Name,
					"content": management.StreamRef(len(composite.Streams)),
					"enabled": true,
				},
			}
		case deployment.ActionUndeploy:
			step = &management.Request{Operation: management.OpUndeploy, Address: address}
		case deployment.ActionRemove:
			step = &management.Request{Operation: management.OpRemove, Address: address}
		default:
			return nil, fmt.Errorf("action %s has unknown kind %d: %w", action.ID, action.Kind, deployment.ErrValidation)
		}

		if step.Params["content"] != nil {
			if action.Content == nil {
				return nil, fmt.Errorf("%s needs content: %w", action, deployment.ErrValidation)
			}

			composite.Streams = append(composite.Streams, action.Content)
		}

		composite.Steps = append(composite.Steps, step)
	}

	return composite, nil
}

// rawResults maps composite step results onto the plan's actions.
func rawResults(plan *deployment.Plan, response *management.Response) (deployment.RawResults, error) {
	steps, err := response.Steps()
	if err != nil {
		if response.Succeeded() {
			return nil, err
		}

		steps = map[string]*management.Response{}
	}

	var (
		raw             = make(deployment.RawResults, len(steps))
		restart         = response.Headers.NeedsRestart()
		failedSeen      bool
		firstRolledBack string
		firstNotFailed  string
	)

	for _, action := range plan.Actions() {
		step, ok := steps[action.ID]
		if !ok || step == nil {
			raw[action.ID] = deployment.ActionResult{Outcome: deployment.OutcomeNotExecuted}
		} else {
			raw[action.ID] = stepResult(step, response.RolledBack, restart)
		}

		switch raw[action.ID].Outcome {
		case deployment.OutcomeFailed:
			failedSeen = true
		case deployment.OutcomeRolledBack:
			if firstRolledBack == "" {
				firstRolledBack = action.ID
			}
		default:
			if firstNotFailed == "" {
				firstNotFailed = action.ID
			}
		}
	}

	// No step carries the composite's failure description, so it goes to the
	// first rolled back action or, when the composite failed before any step
	// reported (e.g. on a malformed request), to the first other one.
	if !response.Succeeded() && !failedSeen {
		switch {
		case firstRolledBack != "":
			raw[firstRolledBack] = deployment.ActionResult{
				Outcome: deployment.OutcomeRolledBack,
				Cause:   failureCause(response),
			}
		case firstNotFailed != "":
			raw[firstNotFailed] = deployment.ActionResult{
				Outcome: deployment.OutcomeFailed,
				Cause:   failureCause(response),
			}
		}
	}

	return raw, nil
}

func stepResult(step *management.Response, rolledBack, restart bool) deployment.ActionResult {
	switch step.Outcome {
	case management.OutcomeSuccess:
		switch {
		case rolledBack:
			return deployment.ActionResult{Outcome: deployment.OutcomeRolledBack}
		case restart || step.Headers.NeedsRestart():
			return deployment.ActionResult{Outcome: deployment.OutcomeRequiresRestart}
		default:
			return deployment.ActionResult{Outcome: deployment.OutcomeExecuted}
		}
	case management.OutcomeFailed:
		return deployment.ActionResult{Outcome: deployment.OutcomeFailed, Cause: failureCause(step)}
	default:
		return deployment.ActionResult{Outcome: deployment.OutcomeNotExecuted}
	}
}

// failureCause turns a failure description into an error; an empty one yields
// nil and is named by the aggregation instead.
func failureCause(response *management.Response) error {
	description := response.Failure()
	if description == "" {
		return nil
	}

	return errors.New(description)
}
