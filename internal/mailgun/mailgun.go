// Package mailgun reconciles mailing-list membership. The desired state is
// the rendered lists from the materialised model; the diff is the plain
// add/remove shape shared by the thin adapters.
package mailgun

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// TokenEnvVar carries the mail service credential.
const TokenEnvVar = "MAILGUN_API_TOKEN"

// Read is the remote read surface.
type Read interface {
	// Lists returns every remote list address.
	Lists(ctx context.Context) ([]string, error)
	// Members returns the member addresses of one list.
	Members(ctx context.Context, address string) ([]string, error)
}

// Write is the remote mutation surface.
type Write interface {
	CreateList(ctx context.Context, address string) error
	DeleteList(ctx context.Context, address string) error
	AddMember(ctx context.Context, list, email string) error
	RemoveMember(ctx context.Context, list, email string) error
}

// Factory builds the client with the service credential.
type Factory func(token string) (Read, Write, error)

// Adapter reconciles every list whose domain is in scope. Remote lists
// outside the configured domains are never touched.
type Adapter struct {
	Log     *logrus.Logger
	Domains []string
	Factory Factory
	// TokenLookup defaults to os.Getenv.
	TokenLookup func(string) string
}

// NewAdapter builds the production adapter for the given domains.
func NewAdapter(log *logrus.Logger, domains []string) *Adapter {
	return &Adapter{
		Log:     log,
		Domains: domains,
		Factory: func(token string) (Read, Write, error) {
			c := NewClient(token)
			return c, c, nil
		},
		TokenLookup: os.Getenv,
	}
}

func (a *Adapter) Name() string { return "mailgun" }

func (a *Adapter) inScope(address string) bool {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return false
	}
	return slices.Contains(a.Domains, address[at+1:])
}

// Plan diffs every in-scope mailing list against the remote state.
func (a *Adapter) Plan(ctx context.Context, m *model.Model) (*reconcile.Plan, error) {
	plan := &reconcile.Plan{Service: a.Name()}
	lookup := a.TokenLookup
	if lookup == nil {
		lookup = os.Getenv
	}
	token := lookup(TokenEnvVar)
	if token == "" {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "mailgun",
			Err:    &reconcile.CredentialError{Tenant: "mailgun", Msg: TokenEnvVar + " is not set"},
		})
		return plan, nil
	}
	read, write, err := a.Factory(token)
	if err != nil {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "mailgun",
			Err:    &reconcile.CredentialError{Tenant: "mailgun", Msg: err.Error()},
		})
		return plan, nil
	}

	remote, err := read.Lists(ctx)
	if err != nil {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "mailgun",
			Err:    &reconcile.SnapshotError{Tenant: "mailgun", Err: err},
		})
		return plan, nil
	}
	remoteSet := map[string]bool{}
	for _, addr := range remote {
		remoteSet[addr] = true
	}

	var creates, updates, deletes []*reconcile.Operation

	for _, address := range m.ListAddresses() {
		if !a.inScope(address) {
			continue
		}
		list := m.List(address)
		if !remoteSet[address] {
			addr := address
			create := reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("create list %s", addr),
				func(ctx context.Context) error { return write.CreateList(ctx, addr) })
			creates = append(creates, create)
			for _, email := range list.Emails {
				member := email
				creates = append(creates, reconcile.NewOperation(reconcile.KindCreate,
					fmt.Sprintf("subscribe %s to %s", member, addr),
					func(ctx context.Context) error { return write.AddMember(ctx, addr, member) }).After(create))
			}
			continue
		}
		current, err := read.Members(ctx, address)
		if err != nil {
			plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
				Tenant: "mailgun",
				Err:    &reconcile.SnapshotError{Tenant: "mailgun", Err: err},
			})
			return plan, nil
		}
		currentSet := map[string]bool{}
		for _, email := range current {
			currentSet[strings.ToLower(email)] = true
		}
		addr := address
		for _, email := range list.Emails {
			if currentSet[strings.ToLower(email)] {
				delete(currentSet, strings.ToLower(email))
				continue
			}
			member := email
			updates = append(updates, reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("subscribe %s to %s", member, addr),
				func(ctx context.Context) error { return write.AddMember(ctx, addr, member) }))
			delete(currentSet, strings.ToLower(email))
		}
		for _, email := range sortedKeys(currentSet) {
			member := email
			deletes = append(deletes, reconcile.NewOperation(reconcile.KindDelete,
				fmt.Sprintf("unsubscribe %s from %s", member, addr),
				func(ctx context.Context) error { return write.RemoveMember(ctx, addr, member) }))
		}
	}

	// Remote lists in scope that the corpus no longer declares are owned
	// leftovers: delete them last.
	owned := map[string]bool{}
	for _, address := range m.ListAddresses() {
		owned[address] = true
	}
	slices.Sort(remote)
	for _, address := range remote {
		if !a.inScope(address) || owned[address] {
			continue
		}
		addr := address
		deletes = append(deletes, reconcile.NewOperation(reconcile.KindDelete,
			fmt.Sprintf("delete list %s", addr),
			func(ctx context.Context) error { return write.DeleteList(ctx, addr) }))
	}

	plan.Add(creates...)
	plan.Add(updates...)
	plan.Add(deletes...)
	return plan, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
