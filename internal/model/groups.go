package model

import (
	"slices"

	"github.com/ziadkadry99/team-sync/internal/corpus"
)

// renderGroups materialises every mailing list, Zulip group and Zulip
// stream declared by any team, and collects the chat-platform role
// definitions. Membership follows the same recipe everywhere: the owning
// team's effective members (unless disabled), plus extras, minus
// exclusions; people without the relevant contact id are elided.
func (m *Model) renderGroups() {
	for _, name := range sortedKeys(m.corpus.Teams) {
		t := m.corpus.Teams[name]

		for _, cfg := range t.Lists {
			emails := map[string]bool{}
			for _, p := range m.groupPeople(t, cfg.IncludeTeamMembers, cfg.ExtraPeople, cfg.ExtraTeams, cfg.ExcludedPeople) {
				if p.EmailSet && !p.EmailOptOut {
					emails[p.Email] = true
				}
			}
			for _, addr := range cfg.ExtraEmails {
				emails[addr] = true
			}
			m.lists[cfg.Address] = &List{Address: cfg.Address, Emails: sortedKeys(emails)}
		}

		for _, cfg := range t.ZulipGroups {
			ids := m.zulipIDs(t, cfg.IncludeTeamMembers, cfg.ExtraPeople, cfg.ExtraTeams, cfg.ExcludedPeople, cfg.ExtraZulipIDs)
			m.zulipGroups[cfg.Name] = &ZulipGroup{Name: cfg.Name, MemberIDs: ids}
		}
		for _, cfg := range t.ZulipStreams {
			ids := m.zulipIDs(t, cfg.IncludeTeamMembers, cfg.ExtraPeople, cfg.ExtraTeams, cfg.ExcludedPeople, cfg.ExtraZulipIDs)
			m.zulipStreams[cfg.Name] = &ZulipStream{Name: cfg.Name, MemberIDs: ids}
		}

		for _, role := range t.DiscordRoles {
			m.discordRoles = append(m.discordRoles, DiscordRole(role))
		}
	}
	slices.SortFunc(m.discordRoles, func(a, b DiscordRole) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
}

// groupPeople resolves the person set of one list/group config.
func (m *Model) groupPeople(t *corpus.Team, includeMembers *bool, extraPeople, extraTeams, excluded []string) []*corpus.Person {
	set := map[string]*corpus.Person{}
	add := func(handle string) {
		if p := m.corpus.PersonByHandle(handle); p != nil {
			set[lowerASCII(handle)] = p
		}
	}
	if includeMembers == nil || *includeMembers {
		for _, member := range m.members[t.Name] {
			add(member.GitHub)
		}
	}
	for _, h := range extraPeople {
		add(h)
	}
	for _, team := range extraTeams {
		for _, member := range m.members[team] {
			add(member.GitHub)
		}
	}
	for _, h := range excluded {
		delete(set, lowerASCII(h))
	}
	out := make([]*corpus.Person, 0, len(set))
	for _, key := range sortedKeys(set) {
		out = append(out, set[key])
	}
	return out
}

func (m *Model) zulipIDs(t *corpus.Team, includeMembers *bool, extraPeople, extraTeams, excluded []string, extraIDs []int64) []int64 {
	ids := map[int64]bool{}
	for _, p := range m.groupPeople(t, includeMembers, extraPeople, extraTeams, excluded) {
		if p.ZulipID != nil {
			ids[*p.ZulipID] = true
		}
	}
	for _, id := range extraIDs {
		ids[id] = true
	}
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// renderGitHubTeams derives the desired source-forge team set per org.
// Leads map to the maintainer role; every other effective member is a
// plain member.
func (m *Model) renderGitHubTeams() {
	for _, name := range sortedKeys(m.corpus.Teams) {
		t := m.corpus.Teams[name]
		if t.GitHub == nil {
			continue
		}
		teamName := t.GitHub.TeamName
		if teamName == "" {
			teamName = t.Name
		}
		names := append([]string{teamName}, t.GitHub.ExtraTeams...)

		members := map[string]TeamRole{}
		for _, member := range m.members[t.Name] {
			role := RoleMember
			if member.IsLead {
				role = RoleMaintainer
			}
			members[member.GitHub] = role
		}

		for _, org := range t.GitHub.Orgs {
			for _, ghName := range names {
				m.githubTeams[org] = append(m.githubTeams[org], GitHubTeam{
					Org:     org,
					Name:    ghName,
					Members: members,
				})
			}
		}
	}
	for org := range m.githubTeams {
		slices.SortFunc(m.githubTeams[org], func(a, b GitHubTeam) int {
			if a.Name < b.Name {
				return -1
			}
			if a.Name > b.Name {
				return 1
			}
			return 0
		})
	}
}
