// Package model materialises a validated corpus into the immutable,
// cross-linked view consumed by the service adapters and the JSON API.
// Construction resolves transitive team composition, aggregates
// permissions and renders mailing-list and chat-group membership; after
// New returns, the model is read-only and safe to share between adapters
// without locking.
package model

import (
	"slices"

	"github.com/ziadkadry99/team-sync/internal/corpus"
)

// TeamRole is a source-forge team membership role.
type TeamRole string

const (
	RoleMember     TeamRole = "member"
	RoleMaintainer TeamRole = "maintainer"
)

// Member is one entry in a team's effective member set.
type Member struct {
	GitHub string
	Name   string
	Roles  []string
	IsLead bool
}

// List is a rendered mailing list: its address plus the lexicographically
// sorted member addresses.
type List struct {
	Address string
	Emails  []string
}

// ZulipGroup is a rendered chat user group keyed by name.
type ZulipGroup struct {
	Name      string
	MemberIDs []int64
}

// ZulipStream is a rendered chat stream keyed by name.
type ZulipStream struct {
	Name      string
	MemberIDs []int64
}

// DiscordRole is a chat-platform role definition.
type DiscordRole struct {
	Name  string
	Color string
}

// GitHubTeam is the desired state of one source-forge team.
type GitHubTeam struct {
	Org     string
	Name    string
	Members map[string]TeamRole // handle -> role
}

// Model is the materialised view over a validated corpus.
type Model struct {
	corpus *corpus.Corpus

	members      map[string][]Member
	perms        map[string]*corpus.Permissions // lowercased handle
	lists        map[string]*List
	zulipGroups  map[string]*ZulipGroup
	zulipStreams map[string]*ZulipStream
	discordRoles []DiscordRole
	githubTeams  map[string][]GitHubTeam // org -> sorted by team name
}

// New materialises the model. The corpus must already have passed
// validation; New does not re-check invariants.
func New(c *corpus.Corpus) *Model {
	m := &Model{
		corpus:       c,
		members:      map[string][]Member{},
		perms:        map[string]*corpus.Permissions{},
		lists:        map[string]*List{},
		zulipGroups:  map[string]*ZulipGroup{},
		zulipStreams: map[string]*ZulipStream{},
		githubTeams:  map[string][]GitHubTeam{},
	}
	m.expandTeams()
	m.aggregatePermissions()
	m.renderGroups()
	m.renderGitHubTeams()
	return m
}

// TeamNames returns every team name in lexicographic order.
func (m *Model) TeamNames() []string {
	return sortedKeys(m.corpus.Teams)
}

// Team returns the raw team record, or nil.
func (m *Model) Team(name string) *corpus.Team {
	return m.corpus.Teams[name]
}

// PeopleHandles returns every person's canonical handle in lexicographic
// order of the lowercased handle.
func (m *Model) PeopleHandles() []string {
	keys := sortedKeys(m.corpus.People)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m.corpus.People[k].GitHub
	}
	return out
}

// Person resolves a handle case-insensitively, or nil.
func (m *Model) Person(handle string) *corpus.Person {
	return m.corpus.PersonByHandle(handle)
}

// RepoNames returns every "org/name" key in lexicographic order.
func (m *Model) RepoNames() []string {
	return sortedKeys(m.corpus.Repos)
}

// Repo returns the raw repo record, or nil.
func (m *Model) Repo(org, name string) *corpus.Repo {
	return m.corpus.Repos[org+"/"+name]
}

// Orgs returns every org that owns at least one team or repo, sorted.
func (m *Model) Orgs() []string {
	set := map[string]bool{}
	for org := range m.githubTeams {
		set[org] = true
	}
	for _, key := range m.RepoNames() {
		set[m.corpus.Repos[key].Org] = true
	}
	return sortedKeys(set)
}

// EffectiveMembers returns the team's effective member set, sorted by
// handle. Nil for unknown teams.
func (m *Model) EffectiveMembers(team string) []Member {
	return m.members[team]
}

// EffectiveLeads returns the handles of the team's leads, sorted.
func (m *Model) EffectiveLeads(team string) []string {
	var out []string
	for _, member := range m.members[team] {
		if member.IsLead {
			out = append(out, member.GitHub)
		}
	}
	return out
}

// PermissionsOf returns the person's aggregated permission set: direct
// grants, plus grants of every team they are an effective member of, plus
// leads-permissions of every team they lead. Never nil for known people.
func (m *Model) PermissionsOf(handle string) *corpus.Permissions {
	return m.perms[lowerASCII(handle)]
}

// ListAddresses returns every rendered mailing-list address, sorted.
func (m *Model) ListAddresses() []string { return sortedKeys(m.lists) }

// List returns the rendered mailing list, or nil.
func (m *Model) List(address string) *List { return m.lists[address] }

// ZulipGroupNames returns every rendered group name, sorted.
func (m *Model) ZulipGroupNames() []string { return sortedKeys(m.zulipGroups) }

// ZulipGroup returns the rendered user group, or nil.
func (m *Model) ZulipGroup(name string) *ZulipGroup { return m.zulipGroups[name] }

// ZulipStreamNames returns every rendered stream name, sorted.
func (m *Model) ZulipStreamNames() []string { return sortedKeys(m.zulipStreams) }

// ZulipStream returns the rendered stream, or nil.
func (m *Model) ZulipStream(name string) *ZulipStream { return m.zulipStreams[name] }

// DiscordRoles returns every declared chat-platform role, sorted by name.
func (m *Model) DiscordRoles() []DiscordRole {
	return slices.Clone(m.discordRoles)
}

// GitHubTeams returns the desired source-forge teams for an org, sorted by
// team name.
func (m *Model) GitHubTeams(org string) []GitHubTeam {
	return m.githubTeams[org]
}

// GitHubRepos returns the owned repos of an org, sorted by name.
func (m *Model) GitHubRepos(org string) []*corpus.Repo {
	var out []*corpus.Repo
	for _, key := range m.RepoNames() {
		if r := m.corpus.Repos[key]; r.Org == org {
			out = append(out, r)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + ('a' - 'A')
		}
	}
	return string(b)
}
