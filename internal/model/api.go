package model

import (
	"github.com/ziadkadry99/team-sync/internal/corpus"
)

// Export projection: the shape written by the static-api command and
// served by the read-only HTTP API. It mirrors the materialised model
// minus internal provenance (source paths); its stability is a
// compatibility contract with the website collaborator.

// MemberView is one effective member in the export projection.
type MemberView struct {
	GitHub string   `json:"github"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	IsLead bool     `json:"is_lead"`
}

// TeamView is the export projection of one team.
type TeamView struct {
	Name         string                  `json:"name"`
	Kind         string                  `json:"kind"`
	SubteamOf    string                  `json:"subteam_of,omitempty"`
	TopLevel     bool                    `json:"top_level"`
	Members      []MemberView            `json:"members"`
	Alumni       []string                `json:"alumni,omitempty"`
	Roles        []corpus.Role           `json:"roles,omitempty"`
	Website      *corpus.WebsiteConfig   `json:"website,omitempty"`
	ReviewBot    *corpus.ReviewBotConfig `json:"review_bot,omitempty"`
	GitHubOrgs   []string                `json:"github_orgs,omitempty"`
	ListAddrs    []string                `json:"lists,omitempty"`
	ZulipGroups  []string                `json:"zulip_groups,omitempty"`
	ZulipStreams []string                `json:"zulip_streams,omitempty"`
}

// PermissionsView is the export projection of an aggregated permission set.
type PermissionsView struct {
	Grants map[string]bool        `json:"grants,omitempty"`
	Bors   map[string]BorsACLView `json:"bors,omitempty"`
}

// BorsACLView mirrors corpus.BorsACL with JSON tags.
type BorsACLView struct {
	Review bool `json:"review"`
	Try    bool `json:"try"`
}

// PersonView is the export projection of one person.
type PersonView struct {
	GitHub      string           `json:"github"`
	GitHubID    int64            `json:"github_id"`
	Name        string           `json:"name,omitempty"`
	Email       string           `json:"email,omitempty"`
	ZulipID     *int64           `json:"zulip_id,omitempty"`
	DiscordID   *int64           `json:"discord_id,omitempty"`
	IRC         string           `json:"irc,omitempty"`
	Matrix      string           `json:"matrix,omitempty"`
	Permissions *PermissionsView `json:"permissions,omitempty"`
}

// BranchProtectionView is the export projection of one protection rule.
type BranchProtectionView struct {
	Pattern            string   `json:"pattern"`
	CIChecks           []string `json:"ci_checks,omitempty"`
	DismissStaleReview bool     `json:"dismiss_stale_review"`
	PRRequired         bool     `json:"pr_required"`
	RequiredApprovals  int      `json:"required_approvals"`
	AllowedMergeTeams  []string `json:"allowed_merge_teams,omitempty"`
	MergeBots          []string `json:"merge_bots,omitempty"`
}

// RepoView is the export projection of one repository.
type RepoView struct {
	Org               string                 `json:"org"`
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	Homepage          string                 `json:"homepage,omitempty"`
	Bots              []string               `json:"bots,omitempty"`
	Archived          bool                   `json:"archived"`
	Private           bool                   `json:"private"`
	AutoMerge         bool                   `json:"auto_merge"`
	TeamAccess        map[string]string      `json:"team_access,omitempty"`
	IndividualAccess  map[string]string      `json:"individual_access,omitempty"`
	BranchProtections []BranchProtectionView `json:"branch_protections,omitempty"`
}

// ListView is the export projection of one rendered mailing list.
type ListView struct {
	Address string   `json:"address"`
	Members []string `json:"members"`
}

// ZulipGroupView is the export projection of one rendered user group.
type ZulipGroupView struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"member_ids"`
}

// TeamView renders the export projection of a team, or nil.
func (m *Model) TeamView(name string) *TeamView {
	t := m.corpus.Teams[name]
	if t == nil {
		return nil
	}
	view := &TeamView{
		Name:      t.Name,
		Kind:      string(t.Kind),
		SubteamOf: t.SubteamOf,
		TopLevel:  t.TopLevel,
		Members:   []MemberView{},
		Alumni:    t.Alumni,
		Roles:     t.Roles,
		Website:   t.Website,
		ReviewBot: t.ReviewBot,
	}
	for _, member := range m.members[name] {
		view.Members = append(view.Members, MemberView{
			GitHub: member.GitHub,
			Name:   member.Name,
			Roles:  member.Roles,
			IsLead: member.IsLead,
		})
	}
	if t.GitHub != nil {
		view.GitHubOrgs = t.GitHub.Orgs
	}
	for _, l := range t.Lists {
		view.ListAddrs = append(view.ListAddrs, l.Address)
	}
	for _, g := range t.ZulipGroups {
		view.ZulipGroups = append(view.ZulipGroups, g.Name)
	}
	for _, s := range t.ZulipStreams {
		view.ZulipStreams = append(view.ZulipStreams, s.Name)
	}
	return view
}

// PersonView renders the export projection of a person, or nil.
func (m *Model) PersonView(handle string) *PersonView {
	p := m.corpus.PersonByHandle(handle)
	if p == nil {
		return nil
	}
	view := &PersonView{
		GitHub:    p.GitHub,
		GitHubID:  p.GitHubID,
		Name:      p.Name,
		ZulipID:   p.ZulipID,
		DiscordID: p.DiscordID,
		IRC:       p.IRC,
		Matrix:    p.Matrix,
	}
	if p.EmailSet && !p.EmailOptOut {
		view.Email = p.Email
	}
	if agg := m.PermissionsOf(p.GitHub); !agg.Empty() {
		view.Permissions = permissionsView(agg)
	}
	return view
}

func permissionsView(p *corpus.Permissions) *PermissionsView {
	view := &PermissionsView{Grants: map[string]bool{}, Bors: map[string]BorsACLView{}}
	for k, v := range p.Bools {
		if v {
			view.Grants[k] = true
		}
	}
	for repo, acl := range p.Bors {
		view.Bors[repo] = BorsACLView{Review: acl.Review, Try: acl.Try}
	}
	return view
}

// RepoView renders the export projection of a repository, or nil.
func (m *Model) RepoView(org, name string) *RepoView {
	r := m.corpus.Repos[org+"/"+name]
	if r == nil {
		return nil
	}
	view := &RepoView{
		Org:              r.Org,
		Name:             r.Name,
		Description:      r.Description,
		Homepage:         r.Homepage,
		Bots:             r.Bots,
		Archived:         r.Archived,
		Private:          r.Private,
		AutoMerge:        r.AutoMerge,
		TeamAccess:       map[string]string{},
		IndividualAccess: map[string]string{},
	}
	for team, role := range r.TeamAccess {
		view.TeamAccess[team] = string(role)
	}
	for handle, role := range r.IndividualAccess {
		view.IndividualAccess[handle] = string(role)
	}
	for i := range r.BranchProtections {
		bp := &r.BranchProtections[i]
		view.BranchProtections = append(view.BranchProtections, BranchProtectionView{
			Pattern:            bp.Pattern,
			CIChecks:           bp.CIChecks,
			DismissStaleReview: bp.DismissStaleReview,
			PRRequired:         bp.PRIsRequired(),
			RequiredApprovals:  bp.ApprovalCount(),
			AllowedMergeTeams:  bp.AllowedMergeTeams,
			MergeBots:          bp.MergeBots,
		})
	}
	return view
}

// ListView renders the export projection of a mailing list, or nil.
func (m *Model) ListView(address string) *ListView {
	l := m.lists[address]
	if l == nil {
		return nil
	}
	return &ListView{Address: l.Address, Members: l.Emails}
}

// ZulipGroupView renders the export projection of a user group, or nil.
func (m *Model) ZulipGroupView(name string) *ZulipGroupView {
	g := m.zulipGroups[name]
	if g == nil {
		return nil
	}
	return &ZulipGroupView{Name: g.Name, MemberIDs: g.MemberIDs}
}

// ZulipStreamView renders the export projection of a stream, or nil.
func (m *Model) ZulipStreamView(name string) *ZulipGroupView {
	s := m.zulipStreams[name]
	if s == nil {
		return nil
	}
	return &ZulipGroupView{Name: s.Name, MemberIDs: s.MemberIDs}
}
