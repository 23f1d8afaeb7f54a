package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testRunner() *Runner {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Runner{
		Log:             log,
		InitialInterval: time.Millisecond,
		MaxElapsed:      time.Second,
	}
}

func TestPrintPlanOrderAndNoApply(t *testing.T) {
	applied := false
	plan := &Plan{Service: "github"}
	plan.Add(
		NewOperation(KindCreate, "create team acme/lang", func(ctx context.Context) error {
			applied = true
			return nil
		}),
		NewOperation(KindDelete, "remove bob from team acme/lang", func(ctx context.Context) error {
			applied = true
			return nil
		}),
	)

	var buf strings.Builder
	PrintPlan(&buf, plan)
	out := buf.String()

	if applied {
		t.Fatal("print-plan must not invoke operation closures")
	}
	first := strings.Index(out, "create team acme/lang")
	second := strings.Index(out, "remove bob from team acme/lang")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("descriptions missing or out of order:\n%s", out)
	}
}

func TestApplyRetriesTransientErrors(t *testing.T) {
	attempts := 0
	plan := &Plan{Service: "test"}
	op := NewOperation(KindUpdate, "flaky", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("rate limited"))
		}
		return nil
	})
	plan.Add(op)

	res := testRunner().Apply(context.Background(), plan)
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if op.State() != StateDone || res.Failed() {
		t.Fatalf("op state = %s, failed = %v", op.State(), res.Failed())
	}
}

func TestApplyFatalBlocksDependentsOnly(t *testing.T) {
	plan := &Plan{Service: "test"}
	fatal := NewOperation(KindCreate, "create team", func(ctx context.Context) error {
		return errors.New("403 forbidden")
	})
	dependent := NewOperation(KindCreate, "add member", func(ctx context.Context) error {
		t.Error("dependent of a failed op must not run")
		return nil
	}).After(fatal)
	independentRan := false
	independent := NewOperation(KindUpdate, "edit repo", func(ctx context.Context) error {
		independentRan = true
		return nil
	})
	plan.Add(fatal, dependent, independent)

	res := testRunner().Apply(context.Background(), plan)

	if fatal.State() != StateFatalFailed {
		t.Errorf("fatal state = %s", fatal.State())
	}
	if dependent.State() != StateBlocked {
		t.Errorf("dependent state = %s", dependent.State())
	}
	if !independentRan || independent.State() != StateDone {
		t.Errorf("independent op skipped (state %s)", independent.State())
	}
	if !res.Failed() {
		t.Error("result should report failure")
	}
	if len(res.Fatal) != 1 || len(res.Blocked) != 1 || len(res.Done) != 1 {
		t.Errorf("result buckets: %d fatal, %d blocked, %d done", len(res.Fatal), len(res.Blocked), len(res.Done))
	}
}

func TestApplyCancellationBlocksRemainder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	plan := &Plan{Service: "test"}
	first := NewOperation(KindCreate, "first", func(ctx context.Context) error {
		cancel()
		return nil
	})
	second := NewOperation(KindCreate, "second", func(ctx context.Context) error {
		t.Error("op after cancellation must not run")
		return nil
	})
	plan.Add(first, second)

	res := testRunner().Apply(ctx, plan)
	if first.State() != StateDone {
		t.Errorf("in-flight op should finish, state = %s", first.State())
	}
	if second.State() != StateBlocked {
		t.Errorf("second state = %s", second.State())
	}
	if !res.Failed() {
		t.Error("cancelled run should report failure")
	}
}

func TestSummaryListsEveryFailure(t *testing.T) {
	plan := &Plan{Service: "test"}
	var ops []*Operation
	for i := 0; i < 3; i++ {
		op := NewOperation(KindUpdate, fmt.Sprintf("op-%d", i), func(ctx context.Context) error {
			return errors.New("boom")
		})
		ops = append(ops, op)
	}
	plan.Add(ops...)
	plan.Skipped = append(plan.Skipped, SkippedTenant{Tenant: "acme", Err: &CredentialError{Tenant: "acme", Msg: "no token"}})

	res := testRunner().Apply(context.Background(), plan)
	summary := res.Summary()
	for i := 0; i < 3; i++ {
		if !strings.Contains(summary, fmt.Sprintf("op-%d", i)) {
			t.Errorf("summary missing op-%d:\n%s", i, summary)
		}
	}
	if !strings.Contains(summary, "skipped tenant acme") {
		t.Errorf("summary missing skipped tenant:\n%s", summary)
	}
}
