package deployment

import (
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
)

// ActionKind tags a deployment action. The set is closed; executors switch
// over it exhaustively.
type ActionKind int

// Action kinds, in no particular order.
const (
	ActionAdd ActionKind = iota + 1
	ActionDeploy
	ActionReplace
	ActionUndeploy
	ActionRemove
)

// String returns the upper-case action name.
func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "ADD"
	case ActionDeploy:
		return "DEPLOY"
	case ActionReplace:
		return "REPLACE"
	case ActionUndeploy:
		return "UNDEPLOY"
	case ActionRemove:
		return "REMOVE"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is one step of a deployment plan.
type Action struct {
	// ID keys the action's outcome in the container's response.
	ID string
	// Kind selects what the container does with the unit.
	Kind ActionKind
	// Unit is the deployment the action applies to.
	Unit DeployedUnit
	// Content is the artifact stream; set for ADD and REPLACE only.
	Content io.Reader
}

// String renders the action for logs.
func (a Action) String() string {
	return fmt.Sprintf("%s %s", a.Kind, a.Unit.Name)
}

// Plan is an ordered, non-empty sequence of actions submitted as one unit of work.
// A plan is immutable once built and can be executed at most once.
type Plan struct {
	id       uuid.UUID
	actions  []Action
	executed atomic.Bool
}

// ID returns the correlation id allocated when the plan was built.
func (p *Plan) ID() uuid.UUID {
	return p.id
}

// Actions returns the actions in declared order.
func (p *Plan) Actions() []Action {
	return slices.Clone(p.actions)
}

// MarkExecuted flags the plan as submitted and reports whether this call was the first.
func (p *Plan) MarkExecuted() bool {
	return p.executed.CompareAndSwap(false, true)
}

// String renders the plan for logs.
func (p *Plan) String() string {
	return fmt.Sprintf("plan %s %v", p.id, p.actions)
}

// BuildDeployPlan adds the content and then deploys it. The unit must not be
// deployed under the same name yet.
func BuildDeployPlan(unit DeployedUnit, content io.Reader) *Plan {
	return newPlan(
		Action{Kind: ActionAdd, Unit: unit, Content: content},
		Action{Kind: ActionDeploy, Unit: unit},
	)
}

// BuildReplacePlan swaps the content of an existing deployment without an
// undeploy/redeploy gap.
func BuildReplacePlan(unit DeployedUnit, content io.Reader) *Plan {
	return newPlan(
		Action{Kind: ActionReplace, Unit: unit, Content: content},
	)
}

// BuildUndeployPlan undeploys the unit and then removes its content.
func BuildUndeployPlan(unit DeployedUnit) *Plan {
	return newPlan(
		Action{Kind: ActionUndeploy, Unit: unit},
		Action{Kind: ActionRemove, Unit: unit},
	)
}

func newPlan(actions ...Action) *Plan {
	for i := range actions {
		actions[i].ID = fmt.Sprintf("step-%d", i+1)
	}

	return &Plan{
		id:      uuid.New(),
		actions: actions,
	}
}
