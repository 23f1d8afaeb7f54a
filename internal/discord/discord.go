// Package discord reconciles chat-platform role definitions: name and
// colour. Membership is handled out of band; only the roles the corpus
// declares are touched.
package discord

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// TokenEnvVar carries the bot credential.
const TokenEnvVar = "DISCORD_TOKEN"

// Role is the remote snapshot of one role.
type Role struct {
	ID    string
	Name  string
	Color int
}

// Read is the remote read surface.
type Read interface {
	// Roles returns the guild's roles keyed by name.
	Roles(ctx context.Context) (map[string]*Role, error)
}

// Write is the remote mutation surface.
type Write interface {
	CreateRole(ctx context.Context, name string, color int) error
	EditRole(ctx context.Context, id, name string, color int) error
}

// Factory builds the client with the bot credential.
type Factory func(token string) (Read, Write, error)

// Adapter reconciles the declared roles of one guild.
type Adapter struct {
	Log     *logrus.Logger
	GuildID string
	Factory Factory
	// TokenLookup defaults to os.Getenv.
	TokenLookup func(string) string
}

// NewAdapter builds the production adapter for one guild.
func NewAdapter(log *logrus.Logger, guildID string) *Adapter {
	return &Adapter{
		Log:     log,
		GuildID: guildID,
		Factory: func(token string) (Read, Write, error) {
			c := NewClient(guildID, token)
			return c, c, nil
		},
		TokenLookup: os.Getenv,
	}
}

func (a *Adapter) Name() string { return "discord" }

// Plan diffs the declared role definitions against the guild.
func (a *Adapter) Plan(ctx context.Context, m *model.Model) (*reconcile.Plan, error) {
	plan := &reconcile.Plan{Service: a.Name()}
	desired := m.DiscordRoles()
	if len(desired) == 0 {
		return plan, nil
	}
	lookup := a.TokenLookup
	if lookup == nil {
		lookup = os.Getenv
	}
	token := lookup(TokenEnvVar)
	if token == "" {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "discord",
			Err:    &reconcile.CredentialError{Tenant: "discord", Msg: TokenEnvVar + " is not set"},
		})
		return plan, nil
	}
	read, write, err := a.Factory(token)
	if err != nil {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "discord",
			Err:    &reconcile.CredentialError{Tenant: "discord", Msg: err.Error()},
		})
		return plan, nil
	}

	remote, err := read.Roles(ctx)
	if err != nil {
		plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
			Tenant: "discord",
			Err:    &reconcile.SnapshotError{Tenant: "discord", Err: err},
		})
		return plan, nil
	}

	for _, role := range desired {
		color, err := ParseColor(role.Color)
		if err != nil {
			plan.Skipped = append(plan.Skipped, reconcile.SkippedTenant{
				Tenant: "discord",
				Err:    fmt.Errorf("role %s: %w", role.Name, err),
			})
			continue
		}
		have := remote[role.Name]
		name := role.Name
		if have == nil {
			plan.Add(reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("create role %s (#%06x)", name, color),
				func(ctx context.Context) error { return write.CreateRole(ctx, name, color) }))
			continue
		}
		if have.Color != color {
			id := have.ID
			plan.Add(reconcile.NewOperation(reconcile.KindUpdate,
				fmt.Sprintf("recolor role %s: #%06x -> #%06x", name, have.Color, color),
				func(ctx context.Context) error { return write.EditRole(ctx, id, name, color) }))
		}
	}
	return plan, nil
}

// ParseColor accepts "#rrggbb" or "rrggbb".
func ParseColor(s string) (int, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return int(v), nil
}
