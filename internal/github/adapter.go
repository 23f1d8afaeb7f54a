package github

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// TokenEnvVar returns the environment variable carrying the credential of
// one organisation: the org name uppercased, dashes to underscores,
// prefixed with the service name.
func TokenEnvVar(org string) string {
	return "GITHUB_TOKEN_" + strings.ToUpper(strings.ReplaceAll(org, "-", "_"))
}

// ClientFactory builds the read and write surfaces for one org with its
// credential. Tests substitute fakes.
type ClientFactory func(org, token string) (Read, Write, error)

// Adapter reconciles the source-forge state of every organisation in the
// model. Each org carries an independent credential; an org without one is
// skipped with every operation reported blocked.
type Adapter struct {
	Log     *logrus.Logger
	Factory ClientFactory
	// TokenLookup resolves an env var name to a token; defaults to
	// os.Getenv.
	TokenLookup func(string) string
}

// NewAdapter builds the production adapter.
func NewAdapter(log *logrus.Logger) *Adapter {
	return &Adapter{
		Log:         log,
		Factory:     NewClient,
		TokenLookup: os.Getenv,
	}
}

func (a *Adapter) Name() string { return "github" }

// Plan snapshots every org in the model and emits the ordered diff. A
// failed snapshot or a missing credential skips that org only.
func (a *Adapter) Plan(ctx context.Context, m *model.Model) (*reconcile.Plan, error) {
	plan := &reconcile.Plan{Service: a.Name()}
	lookup := a.TokenLookup
	if lookup == nil {
		lookup = os.Getenv
	}

	for _, org := range m.Orgs() {
		token := lookup(TokenEnvVar(org))
		if token == "" {
			plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
				Tenant: org,
				Err:    &reconcile.CredentialError{Tenant: org, Msg: fmt.Sprintf("%s is not set", TokenEnvVar(org))},
			})
			continue
		}
		read, write, err := a.Factory(org, token)
		if err != nil {
			plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
				Tenant: org,
				Err:    &reconcile.CredentialError{Tenant: org, Msg: err.Error()},
			})
			continue
		}
		d := &differ{org: org, read: read, write: write}
		if err := d.diffOrg(ctx, m); err != nil {
			a.log().WithField("org", org).Errorf("snapshot failed: %v", err)
			plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
				Tenant: org,
				Err:    &reconcile.SnapshotError{Tenant: org, Err: err},
			})
			continue
		}
		plan.Add(d.ops()...)
	}
	return plan, nil
}

func (a *Adapter) log() *logrus.Logger {
	if a.Log != nil {
		return a.Log
	}
	return logrus.StandardLogger()
}
