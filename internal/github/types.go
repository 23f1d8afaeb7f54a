// Package github is the source-forge adapter: it diffs the materialised
// model against the remote state of each configured organisation and emits
// the plan that drives teams, memberships, repository access and branch
// protections into conformity. A remote team absent from the model is
// deleted when it carries DefaultDescription and is otherwise left alone;
// repositories absent from the model are never read or written.
package github

import (
	"context"

	"github.com/ziadkadry99/team-sync/internal/corpus"
	"github.com/ziadkadry99/team-sync/internal/model"
)

// DefaultDescription is stamped on every owned team.
const DefaultDescription = "Managed by the team repository."

// DefaultPrivacy is the privacy level of every owned team.
const DefaultPrivacy = "closed"

// Permission is a remote repository access level.
type Permission string

const (
	PermTriage   Permission = "triage"
	PermWrite    Permission = "push"
	PermMaintain Permission = "maintain"
	PermAdmin    Permission = "admin"
)

// permissionFor maps a corpus access role onto the remote vocabulary.
func permissionFor(role corpus.RepoRole) Permission {
	switch role {
	case corpus.RoleTriage:
		return PermTriage
	case corpus.RoleWrite:
		return PermWrite
	case corpus.RoleMaintain:
		return PermMaintain
	case corpus.RoleAdmin:
		return PermAdmin
	default:
		return PermTriage
	}
}

// RemoteTeam is the remote snapshot of one team.
type RemoteTeam struct {
	Name        string
	Slug        string
	Description string
	Privacy     string
}

// RemoteRepo is the remote snapshot of one repository's reconciled
// settings surface.
type RemoteRepo struct {
	Name        string
	Description string
	Homepage    string
	Archived    bool
	Private     bool
	AutoMerge   bool
}

// RepoSettings is the desired settings surface of a repository.
type RepoSettings struct {
	Description string
	Homepage    string
	Archived    bool
	Private     bool
	AutoMerge   bool
}

// Protection is a branch protection rule, desired or remote, keyed by its
// branch pattern. Desired check names are sorted; remote ones keep the
// API's order, and comparison sorts copies so it is order-insensitive.
type Protection struct {
	Pattern            string
	Checks             []string
	DismissStaleReview bool
	PRRequired         bool
	RequiredApprovals  int
	// Push allowances: teams from allowed-merge-teams, users from the
	// merge-bot policy, apps only ever round-tripped from the remote.
	PushTeams []string
	PushUsers []string
	PushApps  []string
}

// Read is the remote read surface the diff is computed against. The
// concrete implementation lives below the adapter façade; tests supply
// fakes.
type Read interface {
	// OrgTeams returns every team in the org, keyed by name.
	OrgTeams(ctx context.Context, org string) (map[string]*RemoteTeam, error)
	// TeamMembers returns the current members of a team keyed by
	// lowercased login.
	TeamMembers(ctx context.Context, org, slug string) (map[string]model.TeamRole, error)
	// TeamInvitations returns the lowercased logins with a pending invite.
	TeamInvitations(ctx context.Context, org, slug string) ([]string, error)
	// Repo returns the repository snapshot, or nil if it does not exist.
	Repo(ctx context.Context, org, name string) (*RemoteRepo, error)
	// RepoTeams returns team access on the repo keyed by team name.
	RepoTeams(ctx context.Context, org, name string) (map[string]Permission, error)
	// RepoCollaborators returns direct collaborators keyed by lowercased
	// login.
	RepoCollaborators(ctx context.Context, org, name string) (map[string]Permission, error)
	// BranchProtections returns the protections keyed by pattern.
	BranchProtections(ctx context.Context, org, name string) (map[string]*Protection, error)
}

// Write is the remote mutation surface invoked by operation closures.
type Write interface {
	CreateTeam(ctx context.Context, org, name, description, privacy string) error
	EditTeam(ctx context.Context, org, slug, name, description, privacy string) error
	DeleteTeam(ctx context.Context, org, slug string) error
	SetTeamMembership(ctx context.Context, org, slug, user string, role model.TeamRole) error
	RemoveTeamMembership(ctx context.Context, org, slug, user string) error

	CreateRepo(ctx context.Context, org, name string, settings *RepoSettings) error
	EditRepo(ctx context.Context, org, name string, settings *RepoSettings) error

	SetTeamPermission(ctx context.Context, org, repo, team string, p Permission) error
	RemoveTeamFromRepo(ctx context.Context, org, repo, team string) error
	SetCollaboratorPermission(ctx context.Context, org, repo, user string, p Permission) error
	RemoveCollaborator(ctx context.Context, org, repo, user string) error

	UpsertBranchProtection(ctx context.Context, org, repo string, p *Protection) error
	DeleteBranchProtection(ctx context.Context, org, repo, pattern string) error
}
