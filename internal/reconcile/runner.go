package reconcile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Runner drives a plan to completion. Operations run sequentially in plan
// order; a fatal failure stops only the failed operation and its
// dependents, never the run.
type Runner struct {
	Log *logrus.Logger
	// MaxElapsed caps the retry budget of a single operation.
	MaxElapsed time.Duration
	// InitialInterval seeds the exponential backoff; tests shrink it.
	InitialInterval time.Duration
	// Progress renders a progress bar on stderr during apply.
	Progress bool
}

// Result summarises one apply run.
type Result struct {
	Service string
	Done    []*Operation
	Fatal   []*Operation
	Blocked []*Operation
	Skipped []SkippedTenant
}

// Failed reports whether any operation ended fatal or blocked, which maps
// to exit code 2.
func (r *Result) Failed() bool {
	return len(r.Fatal) > 0 || len(r.Blocked) > 0 || len(r.Skipped) > 0
}

// Summary renders the human-readable outcome of one apply run: counts,
// then every failed and blocked operation and every skipped tenant.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d applied, %d failed, %d blocked\n",
		r.Service, len(r.Done), len(r.Fatal), len(r.Blocked))
	for _, op := range r.Fatal {
		fmt.Fprintf(&b, "  failed: %s: %v\n", op.Desc, op.Err())
	}
	for _, op := range r.Blocked {
		if op.Err() != nil {
			fmt.Fprintf(&b, "  blocked: %s: %v\n", op.Desc, op.Err())
		} else {
			fmt.Fprintf(&b, "  blocked: %s\n", op.Desc)
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "  skipped tenant %s: %v\n", s.Tenant, s.Err)
	}
	return b.String()
}

// PrintPlan writes each operation's description in plan order. No
// operation closure is invoked. The output is the dry-run PR comment body.
func PrintPlan(w io.Writer, plan *Plan) {
	if plan.Empty() {
		fmt.Fprintf(w, "[%s] nothing to do\n", plan.Service)
		return
	}
	fmt.Fprintf(w, "[%s] %d operation(s):\n", plan.Service, len(plan.Ops))
	for _, op := range plan.Ops {
		fmt.Fprintf(w, "  [%s] %s\n", op.Kind, op.Desc)
	}
	for _, s := range plan.Skipped {
		fmt.Fprintf(w, "  [skipped] tenant %s: %v\n", s.Tenant, s.Err)
	}
}

// Apply executes the plan. On context cancellation the in-flight operation
// is allowed to finish its current attempt and the remainder is reported
// blocked.
func (r *Runner) Apply(ctx context.Context, plan *Plan) *Result {
	res := &Result{Service: plan.Service, Skipped: plan.Skipped}

	var bar *progressbar.ProgressBar
	if r.Progress && len(plan.Ops) > 0 {
		bar = progressbar.Default(int64(len(plan.Ops)), plan.Service)
	}

	for _, op := range plan.Ops {
		if bar != nil {
			bar.Add(1)
		}
		if ctx.Err() != nil {
			op.state = StateBlocked
			res.Blocked = append(res.Blocked, op)
			continue
		}
		if blockedBy := unmetPrereq(op); blockedBy != nil {
			op.state = StateBlocked
			op.err = fmt.Errorf("prerequisite failed: %s", blockedBy.Desc)
			res.Blocked = append(res.Blocked, op)
			r.log().WithFields(logrus.Fields{
				"service": plan.Service,
				"op":      op.ID,
			}).Warnf("blocked: %s", op.Desc)
			continue
		}

		op.state = StateInFlight
		r.log().WithFields(logrus.Fields{
			"service": plan.Service,
			"op":      op.ID,
			"kind":    op.Kind.String(),
		}).Infof("applying: %s", op.Desc)

		if err := r.runWithRetry(ctx, op); err != nil {
			op.state = StateFatalFailed
			op.err = err
			res.Fatal = append(res.Fatal, op)
			r.log().WithFields(logrus.Fields{
				"service": plan.Service,
				"op":      op.ID,
			}).Errorf("failed: %s: %v", op.Desc, err)
			continue
		}
		op.state = StateDone
		res.Done = append(res.Done, op)
	}
	return res
}

// runWithRetry retries transient failures with exponential backoff until
// the retry budget is exhausted; everything else fails immediately.
func (r *Runner) runWithRetry(ctx context.Context, op *Operation) error {
	policy := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	policy.MaxElapsedTime = r.MaxElapsed
	if policy.MaxElapsedTime == 0 {
		policy.MaxElapsedTime = 2 * time.Minute
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op.Run(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			// transient_failed -> pending: the state machine loops back
			// until the budget runs out.
			op.state = StatePending
			r.log().WithField("op", op.ID).Debugf("transient failure (attempt %d): %v", attempt, err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

func unmetPrereq(op *Operation) *Operation {
	for _, prereq := range op.Requires {
		if prereq.state != StateDone {
			return prereq
		}
	}
	return nil
}

func (r *Runner) log() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}
