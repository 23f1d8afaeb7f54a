// Package zulip reconciles chat user groups and stream subscriptions. The
// desired state is the rendered groups from the materialised model, keyed
// by name with numeric member ids.
package zulip

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// Credential environment variables.
const (
	UserEnvVar  = "ZULIP_USERNAME"
	TokenEnvVar = "ZULIP_API_TOKEN"
)

// Group is the remote snapshot of one user group.
type Group struct {
	ID      int64
	Name    string
	Members []int64
}

// Stream is the remote snapshot of one stream.
type Stream struct {
	ID          int64
	Name        string
	Subscribers []int64
}

// Read is the remote read surface.
type Read interface {
	Groups(ctx context.Context) (map[string]*Group, error)
	Streams(ctx context.Context) (map[string]*Stream, error)
}

// Write is the remote mutation surface.
type Write interface {
	CreateGroup(ctx context.Context, name string, members []int64) error
	UpdateGroupMembers(ctx context.Context, groupID int64, add, remove []int64) error
	CreateStream(ctx context.Context, name string, subscribers []int64) error
	Subscribe(ctx context.Context, stream string, users []int64) error
	Unsubscribe(ctx context.Context, stream string, users []int64) error
}

// Factory builds the client with the service credentials.
type Factory func(user, token string) (Read, Write, error)

// Adapter reconciles the groups and streams declared by the corpus.
// Remote groups and streams it does not declare are never touched.
type Adapter struct {
	Log     *logrus.Logger
	BaseURL string
	Factory Factory
	// TokenLookup defaults to os.Getenv.
	TokenLookup func(string) string
}

// NewAdapter builds the production adapter against the given site.
func NewAdapter(log *logrus.Logger, baseURL string) *Adapter {
	a := &Adapter{Log: log, BaseURL: baseURL, TokenLookup: os.Getenv}
	a.Factory = func(user, token string) (Read, Write, error) {
		c := NewClient(baseURL, user, token)
		return c, c, nil
	}
	return a
}

func (a *Adapter) Name() string { return "zulip" }

// Plan diffs every declared group and stream against the remote state.
func (a *Adapter) Plan(ctx context.Context, m *model.Model) (*reconcile.Plan, error) {
	plan := &reconcile.Plan{Service: a.Name()}
	lookup := a.TokenLookup
	if lookup == nil {
		lookup = os.Getenv
	}
	user, token := lookup(UserEnvVar), lookup(TokenEnvVar)
	if user == "" || token == "" {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "zulip",
			Err:    &reconcile.CredentialError{Tenant: "zulip", Msg: UserEnvVar + " and " + TokenEnvVar + " must be set"},
		})
		return plan, nil
	}
	read, write, err := a.Factory(user, token)
	if err != nil {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "zulip",
			Err:    &reconcile.CredentialError{Tenant: "zulip", Msg: err.Error()},
		})
		return plan, nil
	}

	snapshotErr := func(err error) *reconcile.Plan {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "zulip",
			Err:    &reconcile.SnapshotError{Tenant: "zulip", Err: err},
		})
		return plan
	}

	groups, err := read.Groups(ctx)
	if err != nil {
		return snapshotErr(err), nil
	}
	var creates, updates []*reconcile.Operation
	for _, name := range m.ZulipGroupNames() {
		desired := m.ZulipGroup(name)
		remote := groups[name]
		if remote == nil {
			groupName := name
			members := slices.Clone(desired.MemberIDs)
			creates = append(creates, reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("create user group %s with %d member(s)", groupName, len(members)),
				func(ctx context.Context) error { return write.CreateGroup(ctx, groupName, members) }))
			continue
		}
		add, remove := diffIDs(remote.Members, desired.MemberIDs)
		if len(add) == 0 && len(remove) == 0 {
			continue
		}
		groupID := remote.ID
		updates = append(updates, reconcile.NewOperation(reconcile.KindUpdate,
			fmt.Sprintf("update user group %s: add %d, remove %d", name, len(add), len(remove)),
			func(ctx context.Context) error {
				return write.UpdateGroupMembers(ctx, groupID, add, remove)
			}))
	}

	streams, err := read.Streams(ctx)
	if err != nil {
		return snapshotErr(err), nil
	}
	for _, name := range m.ZulipStreamNames() {
		desired := m.ZulipStream(name)
		remote := streams[name]
		if remote == nil {
			streamName := name
			subs := slices.Clone(desired.MemberIDs)
			creates = append(creates, reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("create stream %s with %d subscriber(s)", streamName, len(subs)),
				func(ctx context.Context) error { return write.CreateStream(ctx, streamName, subs) }))
			continue
		}
		add, remove := diffIDs(remote.Subscribers, desired.MemberIDs)
		streamName := name
		if len(add) > 0 {
			toAdd := add
			updates = append(updates, reconcile.NewOperation(reconcile.KindUpdate,
				fmt.Sprintf("subscribe %d user(s) to stream %s", len(toAdd), streamName),
				func(ctx context.Context) error { return write.Subscribe(ctx, streamName, toAdd) }))
		}
		if len(remove) > 0 {
			toRemove := remove
			updates = append(updates, reconcile.NewOperation(reconcile.KindUpdate,
				fmt.Sprintf("unsubscribe %d user(s) from stream %s", len(toRemove), streamName),
				func(ctx context.Context) error { return write.Unsubscribe(ctx, streamName, toRemove) }))
		}
	}

	plan.Add(creates...)
	plan.Add(updates...)
	return plan, nil
}

// diffIDs returns desired-minus-current and current-minus-desired, sorted.
func diffIDs(current, desired []int64) (add, remove []int64) {
	cur := map[int64]bool{}
	for _, id := range current {
		cur[id] = true
	}
	for _, id := range desired {
		if cur[id] {
			delete(cur, id)
			continue
		}
		add = append(add, id)
	}
	for id := range cur {
		remove = append(remove, id)
	}
	slices.Sort(add)
	slices.Sort(remove)
	return add, remove
}
