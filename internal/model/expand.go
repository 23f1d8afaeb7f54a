package model

import (
	"slices"

	"github.com/ziadkadry99/team-sync/internal/corpus"
)

// memberAcc accumulates one person's presence in a team while the
// effective set is being built.
type memberAcc struct {
	roles  map[string]bool
	isLead bool
}

// expandTeams computes every team's effective member set: direct members,
// the transitive closure over included-teams, and the corpus-wide
// composition flags. The recursion is memoised; the validator has already
// rejected cycles.
func (m *Model) expandTeams() {
	memo := map[string]map[string]*memberAcc{}

	var expand func(name string) map[string]*memberAcc
	expand = func(name string) map[string]*memberAcc {
		if got, ok := memo[name]; ok {
			return got
		}
		t := m.corpus.Teams[name]
		acc := map[string]*memberAcc{}
		// Seed the memo before recursing so a (rejected, but defensive)
		// self-reference terminates.
		memo[name] = acc

		for _, dm := range t.Members {
			entry := ensure(acc, dm.GitHub)
			for _, r := range dm.Roles {
				entry.roles[r] = true
			}
		}
		for _, inc := range t.IncludedTeams {
			for handle := range expand(inc) {
				ensure(acc, handle)
			}
		}
		if t.IncludeAllMembers {
			for _, otherName := range sortedKeys(m.corpus.Teams) {
				other := m.corpus.Teams[otherName]
				if other.Kind == corpus.KindMarkerTeam {
					continue
				}
				for _, dm := range other.Members {
					ensure(acc, dm.GitHub)
				}
			}
		}
		if t.IncludeTeamLeads || t.IncludeWGLeads || t.IncludeProjectGroupLeads {
			for _, otherName := range sortedKeys(m.corpus.Teams) {
				other := m.corpus.Teams[otherName]
				take := t.IncludeTeamLeads ||
					(t.IncludeWGLeads && other.Kind == corpus.KindWorkingGroup) ||
					(t.IncludeProjectGroupLeads && other.Kind == corpus.KindProjectGroup)
				if !take {
					continue
				}
				for _, lead := range other.Leads {
					ensure(acc, lead)
				}
			}
		}
		if t.IncludeAllAlumni {
			for _, otherName := range sortedKeys(m.corpus.Teams) {
				for _, alum := range m.corpus.Teams[otherName].Alumni {
					ensure(acc, alum)
				}
			}
		}

		for _, lead := range t.Leads {
			ensure(acc, lead).isLead = true
		}
		return acc
	}

	for _, name := range sortedKeys(m.corpus.Teams) {
		acc := expand(name)
		members := make([]Member, 0, len(acc))
		for _, handle := range sortedKeys(acc) {
			entry := acc[handle]
			member := Member{GitHub: handle, IsLead: entry.isLead}
			if p := m.corpus.PersonByHandle(handle); p != nil {
				member.GitHub = p.GitHub
				member.Name = p.Name
			}
			for role := range entry.roles {
				member.Roles = append(member.Roles, role)
			}
			slices.Sort(member.Roles)
			members = append(members, member)
		}
		m.members[name] = members
	}
}

// ensure inserts the handle (keyed case-insensitively) and returns its
// accumulator.
func ensure(acc map[string]*memberAcc, handle string) *memberAcc {
	key := lowerASCII(handle)
	entry, ok := acc[key]
	if !ok {
		entry = &memberAcc{roles: map[string]bool{}}
		acc[key] = entry
	}
	return entry
}

// aggregatePermissions computes each person's effective permission set.
// Grants are additive: a permission is held iff any source grants it.
func (m *Model) aggregatePermissions() {
	for key, p := range m.corpus.People {
		agg := p.Permissions.Clone()
		// Review subsumes try in direct grants as well.
		for repo, acl := range agg.Bors {
			if acl.Review {
				acl.Try = true
				agg.Bors[repo] = acl
			}
		}
		m.perms[key] = agg
	}
	for _, name := range sortedKeys(m.corpus.Teams) {
		t := m.corpus.Teams[name]
		for _, member := range m.members[name] {
			agg := m.perms[lowerASCII(member.GitHub)]
			if agg == nil {
				continue
			}
			agg.Merge(t.Permissions)
			if member.IsLead {
				agg.Merge(t.LeadsPermissions)
			}
		}
	}
}
