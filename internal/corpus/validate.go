package corpus

import (
	"net/mail"
	"slices"
	"strings"
)

// Validate runs every cross-file invariant over the loaded corpus. Errors
// are accumulated rather than short-circuited so one run surfaces every
// problem. The check is pure: no network, no filesystem.
func Validate(c *Corpus) error {
	errs := &Errors{}

	validatePeople(c, errs)
	validateTeams(c, errs)
	validateCompositionFlags(c, errs)
	validateCycles(c, errs)
	validateRepos(c, errs)
	validatePermissionRepoRefs(c, errs)

	if errs.Empty() {
		return nil
	}
	return errs
}

func validatePeople(c *Corpus, errs *Errors) {
	ids := map[int64]string{}
	for _, handle := range sortedKeys(c.People) {
		p := c.People[handle]
		if p.GitHubID <= 0 {
			errs.add(p.SourcePath, p.GitHub, "github-id must be a positive integer")
		} else if prev, ok := ids[p.GitHubID]; ok {
			errs.add(p.SourcePath, p.GitHub, "github-id %d already used by %s", p.GitHubID, prev)
		} else {
			ids[p.GitHubID] = p.GitHub
		}
		if p.ZulipID != nil && *p.ZulipID <= 0 {
			errs.add(p.SourcePath, p.GitHub, "zulip-id must be a positive integer")
		}
		if p.DiscordID != nil && *p.DiscordID <= 0 {
			errs.add(p.SourcePath, p.GitHub, "discord-id must be a positive integer")
		}
		if p.EmailSet {
			if _, err := mail.ParseAddress(p.Email); err != nil {
				errs.add(p.SourcePath, p.GitHub, "invalid email address %q", p.Email)
			}
		}
		validateBors(p.Permissions, p.SourcePath, p.GitHub, errs)
	}
}

func validateTeams(c *Corpus, errs *Errors) {
	listAddrs := map[string]string{}
	zulipNames := map[string]string{}

	for _, name := range sortedKeys(c.Teams) {
		t := c.Teams[name]

		direct := map[string]bool{}
		for _, m := range t.Members {
			requirePerson(c, m.GitHub, t, "member", errs)
			direct[lowerASCII(m.GitHub)] = true
		}
		for _, lead := range t.Leads {
			requirePerson(c, lead, t, "lead", errs)
			if !direct[lowerASCII(lead)] {
				errs.add(t.SourcePath, t.Name, "lead %q is not a direct member", lead)
			}
		}
		for _, a := range t.Alumni {
			requirePerson(c, a, t, "alumnus", errs)
		}

		declared := map[string]bool{}
		for _, r := range t.Roles {
			if declared[r.ID] {
				errs.add(t.SourcePath, t.Name, "duplicate role %q", r.ID)
			}
			declared[r.ID] = true
		}
		for _, m := range t.Members {
			for _, role := range m.Roles {
				if !declared[role] {
					errs.add(t.SourcePath, t.Name, "member %q has undeclared role %q", m.GitHub, role)
				}
			}
		}

		if t.SubteamOf != "" {
			requireTeam(c, t.SubteamOf, t, "subteam-of", errs)
		}
		for _, inc := range t.IncludedTeams {
			requireTeam(c, inc, t, "included team", errs)
		}

		// Alumni must be spelled out (possibly empty) so that dropping a
		// member is always a deliberate two-step edit. Marker teams and
		// teams composed purely from other teams' leads carry no alumni.
		leadsOnly := len(t.Members) == 0 &&
			(t.IncludeTeamLeads || t.IncludeWGLeads || t.IncludeProjectGroupLeads)
		if t.Alumni == nil && t.Kind != KindMarkerTeam && !leadsOnly {
			errs.add(t.SourcePath, t.Name, "missing alumni list (use an empty list for none)")
		}

		if t.GitHub != nil && len(t.GitHub.Orgs) == 0 {
			errs.add(t.SourcePath, t.Name, "github integration must list at least one org")
		}

		for _, l := range t.Lists {
			if l.Address == "" {
				errs.add(t.SourcePath, t.Name, "list with empty address")
				continue
			}
			if prev, ok := listAddrs[l.Address]; ok {
				errs.add(t.SourcePath, t.Name, "list address %q already used by team %q", l.Address, prev)
			}
			listAddrs[l.Address] = t.Name
			validateGroupRefs(c, t, l.ExtraPeople, l.ExtraTeams, l.ExcludedPeople, errs)
			for _, addr := range l.ExtraEmails {
				if _, err := mail.ParseAddress(addr); err != nil {
					errs.add(t.SourcePath, t.Name, "invalid extra email %q on list %q", addr, l.Address)
				}
			}
		}
		for _, g := range t.ZulipGroups {
			validateZulipName(t, "group", g.Name, zulipNames, errs)
			validateGroupRefs(c, t, g.ExtraPeople, g.ExtraTeams, g.ExcludedPeople, errs)
		}
		for _, s := range t.ZulipStreams {
			validateZulipName(t, "stream", s.Name, zulipNames, errs)
			validateGroupRefs(c, t, s.ExtraPeople, s.ExtraTeams, s.ExcludedPeople, errs)
		}
		if t.ReviewBot != nil {
			for _, rt := range t.ReviewBot.Teams {
				requireTeam(c, rt, t, "review-bot team", errs)
			}
		}

		validateBors(t.Permissions, t.SourcePath, t.Name, errs)
		validateBors(t.LeadsPermissions, t.SourcePath, t.Name, errs)
	}
}

func validateZulipName(t *Team, kind, name string, seen map[string]string, errs *Errors) {
	if name == "" {
		errs.add(t.SourcePath, t.Name, "zulip %s with empty name", kind)
		return
	}
	key := kind + "/" + name
	if prev, ok := seen[key]; ok {
		errs.add(t.SourcePath, t.Name, "zulip %s %q already used by team %q", kind, name, prev)
		return
	}
	seen[key] = t.Name
}

func validateGroupRefs(c *Corpus, t *Team, people, teams, excluded []string, errs *Errors) {
	for _, h := range people {
		requirePerson(c, h, t, "extra person", errs)
	}
	for _, name := range teams {
		requireTeam(c, name, t, "extra team", errs)
	}
	for _, h := range excluded {
		requirePerson(c, h, t, "excluded person", errs)
	}
}

// validateCompositionFlags enforces that each corpus-wide composition flag
// is set on at most one team.
func validateCompositionFlags(c *Corpus, errs *Errors) {
	holders := map[string][]string{}
	for _, name := range sortedKeys(c.Teams) {
		t := c.Teams[name]
		for flag, set := range map[string]bool{
			"include-all-team-members":    t.IncludeAllMembers,
			"include-team-leads":          t.IncludeTeamLeads,
			"include-wg-leads":            t.IncludeWGLeads,
			"include-project-group-leads": t.IncludeProjectGroupLeads,
			"include-all-alumni":          t.IncludeAllAlumni,
		} {
			if set {
				holders[flag] = append(holders[flag], name)
			}
		}
	}
	for _, flag := range sortedKeys(holders) {
		teams := holders[flag]
		if len(teams) > 1 {
			slices.Sort(teams)
			errs.add("", flag, "set on more than one team: %s", strings.Join(teams, ", "))
		}
	}
}

// validateCycles rejects cycles in the subteam-of chain and in the
// included-teams graph, naming every team on the cycle.
func validateCycles(c *Corpus, errs *Errors) {
	checkGraph := func(label string, edges func(*Team) []string) {
		const (
			white = iota
			grey
			black
		)
		color := map[string]int{}
		var stack []string

		var visit func(name string) bool
		visit = func(name string) bool {
			t, ok := c.Teams[name]
			if !ok {
				return false // dangling refs are reported elsewhere
			}
			switch color[name] {
			case black:
				return false
			case grey:
				start := slices.Index(stack, name)
				cycle := append(slices.Clone(stack[start:]), name)
				errs.add(t.SourcePath, name, "%s cycle: %s", label, strings.Join(cycle, " -> "))
				return true
			}
			color[name] = grey
			stack = append(stack, name)
			found := false
			for _, next := range edges(t) {
				if visit(next) {
					found = true
					break
				}
			}
			stack = stack[:len(stack)-1]
			color[name] = black
			return found
		}

		for _, name := range sortedKeys(c.Teams) {
			visit(name)
		}
	}

	checkGraph("subteam-of", func(t *Team) []string {
		if t.SubteamOf == "" {
			return nil
		}
		return []string{t.SubteamOf}
	})
	checkGraph("included-teams", func(t *Team) []string {
		return t.IncludedTeams
	})
}

func validateRepos(c *Corpus, errs *Errors) {
	for _, key := range sortedKeys(c.Repos) {
		r := c.Repos[key]
		for _, team := range sortedKeys(r.TeamAccess) {
			if _, ok := c.Teams[team]; !ok {
				errs.add(r.SourcePath, key, "access for unknown team %q", team)
			}
		}
		for _, handle := range sortedKeys(r.IndividualAccess) {
			if c.PersonByHandle(handle) == nil {
				errs.add(r.SourcePath, key, "access for unknown person %q", handle)
			}
		}

		seen := map[string]bool{}
		for i := range r.BranchProtections {
			bp := &r.BranchProtections[i]
			if bp.Pattern == "" {
				errs.add(r.SourcePath, key, "branch protection with empty pattern")
				continue
			}
			if seen[bp.Pattern] {
				errs.add(r.SourcePath, key, "duplicate branch protection for pattern %q", bp.Pattern)
			}
			seen[bp.Pattern] = true

			if bp.PRRequired != nil && !*bp.PRRequired {
				if len(bp.CIChecks) > 0 {
					errs.add(r.SourcePath, key, "protection %q: ci-checks requires pr-required", bp.Pattern)
				}
				if bp.RequiredApprovals != nil {
					errs.add(r.SourcePath, key, "protection %q: required-approvals requires pr-required", bp.Pattern)
				}
			}
			if len(bp.MergeBots) > 0 {
				if bp.RequiredApprovals != nil {
					errs.add(r.SourcePath, key, "protection %q: required-approvals may not be set with merge-bots", bp.Pattern)
				}
				if bp.PRRequired != nil {
					errs.add(r.SourcePath, key, "protection %q: pr-required may not be set with merge-bots", bp.Pattern)
				}
			}
			for _, bot := range bp.MergeBots {
				switch MergeBot(bot) {
				case MergeBotHomu:
					if !slices.Contains(r.Bots, "bors") {
						errs.add(r.SourcePath, key, "protection %q: the homu merge bot requires bors in the repo bots list", bp.Pattern)
					}
				case MergeBotRustTimer:
				default:
					errs.add(r.SourcePath, key, "protection %q: unknown merge bot %q", bp.Pattern, bot)
				}
			}
			if bp.RequiredApprovals != nil && *bp.RequiredApprovals < 0 {
				errs.add(r.SourcePath, key, "protection %q: required-approvals must be non-negative", bp.Pattern)
			}
			for _, team := range bp.AllowedMergeTeams {
				if _, ok := c.Teams[team]; !ok {
					errs.add(r.SourcePath, key, "protection %q: unknown allowed merge team %q", bp.Pattern, team)
				}
			}
		}
	}
}

// validatePermissionRepoRefs checks that every repo named by a bors grant
// exists in the repo corpus.
func validatePermissionRepoRefs(c *Corpus, errs *Errors) {
	check := func(p *Permissions, path, key string) {
		if p == nil {
			return
		}
		for _, repo := range sortedKeys(p.Bors) {
			if _, ok := c.Repos[repo]; !ok {
				errs.add(path, key, "bors grant for unknown repo %q", repo)
			}
		}
	}
	for _, handle := range sortedKeys(c.People) {
		p := c.People[handle]
		check(p.Permissions, p.SourcePath, p.GitHub)
	}
	for _, name := range sortedKeys(c.Teams) {
		t := c.Teams[name]
		check(t.Permissions, t.SourcePath, t.Name)
		check(t.LeadsPermissions, t.SourcePath, t.Name)
	}
}

// validateBors rejects grants that set try alongside review: review
// subsumes try, so the combination is always a mistake.
func validateBors(p *Permissions, path, key string, errs *Errors) {
	if p == nil {
		return
	}
	for _, repo := range sortedKeys(p.Bors) {
		acl := p.Bors[repo]
		if acl.Review && acl.Try {
			errs.add(path, key, "bors.%s: try may not be set when review is set", repo)
		}
	}
}

func requirePerson(c *Corpus, handle string, t *Team, what string, errs *Errors) {
	if c.PersonByHandle(handle) == nil {
		errs.add(t.SourcePath, t.Name, "%s %q is not a known person", what, handle)
	}
}

func requireTeam(c *Corpus, name string, t *Team, what string, errs *Errors) {
	if _, ok := c.Teams[name]; !ok {
		errs.add(t.SourcePath, t.Name, "%s %q is not a known team", what, name)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
