// Package reconcile contains the generic plan/diff/apply driver shared by
// every service adapter. An adapter turns the materialised model plus a
// remote snapshot into an ordered plan of operations; the runner either
// prints the plan or applies it with retries, isolating fatal failures and
// blocking their dependents.
package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/ziadkadry99/team-sync/internal/model"
)

// Kind orders operations within a plan: creates run before updates, which
// run before deletes.
type Kind int

const (
	KindCreate Kind = iota
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// State is one node of the per-operation state machine.
type State int

const (
	StatePending State = iota
	StateInFlight
	StateDone
	StateFatalFailed
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateDone:
		return "done"
	case StateFatalFailed:
		return "fatal_failed"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Operation is a single idempotent remote mutation. Applying it twice
// yields the same remote state; re-planning against a converged remote
// yields no operation at all.
type Operation struct {
	ID   string
	Kind Kind
	// Desc is the human-readable description emitted in print-plan mode
	// and in apply summaries.
	Desc string
	// Requires lists operations that must reach done before this one may
	// run; if any of them ends elsewhere, this operation is blocked.
	Requires []*Operation
	// Run applies the mutation. Never invoked in print-plan mode.
	Run func(ctx context.Context) error

	state State
	err   error
}

// NewOperation builds a pending operation with a fresh id.
func NewOperation(kind Kind, desc string, run func(ctx context.Context) error) *Operation {
	return &Operation{
		ID:   uuid.NewString(),
		Kind: kind,
		Desc: desc,
		Run:  run,
	}
}

// After records a prerequisite and returns the operation for chaining.
func (op *Operation) After(prereqs ...*Operation) *Operation {
	op.Requires = append(op.Requires, prereqs...)
	return op
}

// State returns the operation's current state.
func (op *Operation) State() State { return op.state }

// Err returns the error that ended the operation, if any.
func (op *Operation) Err() error { return op.err }

// Plan is an adapter's ordered proposal for one run.
type Plan struct {
	Service string
	Ops     []*Operation
	// Skipped records tenants whose operations could not even be planned
	// (missing credentials, failed snapshot). They count as blocked.
	Skipped []SkippedTenant
}

// SkippedTenant is a tenant the adapter refused to plan for.
type SkippedTenant struct {
	Tenant string
	Err    error
}

// Add appends operations in plan order.
func (p *Plan) Add(ops ...*Operation) {
	p.Ops = append(p.Ops, ops...)
}

// Empty reports whether the plan proposes nothing and skipped nothing.
func (p *Plan) Empty() bool {
	return len(p.Ops) == 0 && len(p.Skipped) == 0
}

// Adapter is the capability set the driver is parameterised by. Plan must
// be a pure function of the materialised model and the remote snapshot it
// takes internally; it performs remote reads but no mutations.
type Adapter interface {
	Name() string
	Plan(ctx context.Context, m *model.Model) (*Plan, error)
}
