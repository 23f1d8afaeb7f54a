package github

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ziadkadry99/team-sync/internal/corpus"
	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// differ computes the plan for one organisation. Operations are bucketed
// so that creates precede updates precede deletes, with two exceptions
// from the repo archival rules: unarchiving must happen before anything
// else touches the repo, and archiving must happen after everything else.
type differ struct {
	org   string
	read  Read
	write Write

	pre     []*reconcile.Operation
	creates []*reconcile.Operation
	updates []*reconcile.Operation
	deletes []*reconcile.Operation
	post    []*reconcile.Operation
}

func (d *differ) ops() []*reconcile.Operation {
	var out []*reconcile.Operation
	out = append(out, d.pre...)
	out = append(out, d.creates...)
	out = append(out, d.updates...)
	out = append(out, d.deletes...)
	out = append(out, d.post...)
	return out
}

func (d *differ) diffOrg(ctx context.Context, m *model.Model) error {
	if err := d.diffTeams(ctx, m.GitHubTeams(d.org)); err != nil {
		return err
	}
	return d.diffRepos(ctx, m.GitHubRepos(d.org))
}

// diffTeams reconciles every owned team of the org. The default
// description stamped on every team this tool creates doubles as the
// ownership ledger: a remote team carrying the stamp but absent from the
// model is a leftover of a removed corpus team and is deleted. Teams
// without the stamp are unowned and never touched.
func (d *differ) diffTeams(ctx context.Context, desired []model.GitHubTeam) error {
	remote, err := d.read.OrgTeams(ctx, d.org)
	if err != nil {
		return err
	}
	bySlug := map[string]*RemoteTeam{}
	for _, rt := range remote {
		bySlug[rt.Slug] = rt
	}

	matched := map[string]bool{}
	for _, team := range desired {
		rt := remote[team.Name]
		if rt == nil {
			// A team may exist under an older name: the slug of the desired
			// name still resolves to it. Prefer a rename over delete+create
			// so membership survives.
			rt = bySlug[slugify(team.Name)]
		}
		if rt == nil {
			d.createTeam(team)
			continue
		}
		matched[rt.Name] = true
		if err := d.editTeam(ctx, team, rt); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(remote) {
		rt := remote[name]
		if matched[name] || rt.Description != DefaultDescription {
			continue
		}
		org, teamName, slug := d.org, rt.Name, rt.Slug
		write := d.write
		d.deletes = append(d.deletes, reconcile.NewOperation(reconcile.KindDelete,
			fmt.Sprintf("delete team %s/%s", org, teamName),
			func(ctx context.Context) error {
				return write.DeleteTeam(ctx, org, slug)
			}))
	}
	return nil
}

func (d *differ) createTeam(team model.GitHubTeam) {
	org, name := d.org, team.Name
	write := d.write
	create := reconcile.NewOperation(reconcile.KindCreate,
		fmt.Sprintf("create team %s/%s", org, name),
		func(ctx context.Context) error {
			return write.CreateTeam(ctx, org, name, DefaultDescription, DefaultPrivacy)
		})
	d.creates = append(d.creates, create)

	slug := slugify(name)
	for _, handle := range sortedKeys(team.Members) {
		role := team.Members[handle]
		user := handle
		d.creates = append(d.creates, reconcile.NewOperation(reconcile.KindCreate,
			fmt.Sprintf("add %s to team %s/%s (%s)", user, org, name, role),
			func(ctx context.Context) error {
				return write.SetTeamMembership(ctx, org, slug, user, role)
			}).After(create))
	}
}

func (d *differ) editTeam(ctx context.Context, team model.GitHubTeam, rt *RemoteTeam) error {
	org := d.org
	write := d.write
	slug := rt.Slug

	var changes []string
	if rt.Name != team.Name {
		changes = append(changes, fmt.Sprintf("rename %q to %q", rt.Name, team.Name))
	}
	if rt.Description != DefaultDescription {
		changes = append(changes, fmt.Sprintf("set description to %q", DefaultDescription))
	}
	if rt.Privacy != DefaultPrivacy {
		changes = append(changes, fmt.Sprintf("set privacy to %s", DefaultPrivacy))
	}
	if len(changes) > 0 {
		name := team.Name
		d.updates = append(d.updates, reconcile.NewOperation(reconcile.KindUpdate,
			fmt.Sprintf("edit team %s/%s: %s", org, rt.Name, strings.Join(changes, ", ")),
			func(ctx context.Context) error {
				return write.EditTeam(ctx, org, slug, name, DefaultDescription, DefaultPrivacy)
			}))
	}

	current, err := d.read.TeamMembers(ctx, org, slug)
	if err != nil {
		return err
	}
	invited := map[string]bool{}
	invites, err := d.read.TeamInvitations(ctx, org, slug)
	if err != nil {
		return err
	}
	for _, login := range invites {
		invited[strings.ToLower(login)] = true
	}

	remaining := map[string]model.TeamRole{}
	for login, role := range current {
		remaining[strings.ToLower(login)] = role
	}

	for _, handle := range sortedKeys(team.Members) {
		want := team.Members[handle]
		key := strings.ToLower(handle)
		have, present := remaining[key]
		delete(remaining, key)
		user := handle
		switch {
		case present && have == want:
		case present:
			d.updates = append(d.updates, reconcile.NewOperation(reconcile.KindUpdate,
				fmt.Sprintf("change role of %s in team %s/%s: %s -> %s", user, org, team.Name, have, want),
				func(ctx context.Context) error {
					return write.SetTeamMembership(ctx, org, slug, user, want)
				}))
		case invited[key]:
			// A pending invitation counts as present; re-inviting would
			// reset the invite.
		default:
			d.creates = append(d.creates, reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("add %s to team %s/%s (%s)", user, org, team.Name, want),
				func(ctx context.Context) error {
					return write.SetTeamMembership(ctx, org, slug, user, want)
				}))
		}
	}
	for _, key := range sortedKeys(remaining) {
		user := key
		d.deletes = append(d.deletes, reconcile.NewOperation(reconcile.KindDelete,
			fmt.Sprintf("remove %s from team %s/%s", user, org, team.Name),
			func(ctx context.Context) error {
				return write.RemoveTeamMembership(ctx, org, slug, user)
			}))
	}
	return nil
}

func (d *differ) diffRepos(ctx context.Context, desired []*corpus.Repo) error {
	for _, repo := range desired {
		if err := d.diffRepo(ctx, repo); err != nil {
			return err
		}
	}
	return nil
}

func settingsFor(repo *corpus.Repo) *RepoSettings {
	return &RepoSettings{
		Description: repo.Description,
		Homepage:    repo.Homepage,
		Archived:    repo.Archived,
		Private:     repo.Private,
		AutoMerge:   repo.AutoMerge,
	}
}

func (d *differ) diffRepo(ctx context.Context, repo *corpus.Repo) error {
	org, name := d.org, repo.Name
	write := d.write

	remote, err := d.read.Repo(ctx, org, name)
	if err != nil {
		return err
	}
	if remote == nil {
		settings := settingsFor(repo)
		create := reconcile.NewOperation(reconcile.KindCreate,
			fmt.Sprintf("create repo %s/%s", org, name),
			func(ctx context.Context) error {
				return write.CreateRepo(ctx, org, name, settings)
			})
		d.creates = append(d.creates, create)
		d.diffRepoAccess(repo, nil, nil, create)
		d.diffProtections(repo, map[string]*Protection{}, create)
		return nil
	}

	// An archived repo that should stay archived is left entirely alone:
	// nothing else on it can be modified anyway.
	if remote.Archived && repo.Archived {
		return nil
	}

	var barrier *reconcile.Operation
	unarchive := remote.Archived && !repo.Archived
	archive := !remote.Archived && repo.Archived
	settingsChanged := remote.Description != repo.Description ||
		remote.Homepage != repo.Homepage ||
		remote.Private != repo.Private ||
		remote.AutoMerge != repo.AutoMerge

	if unarchive || settingsChanged || archive {
		settings := settingsFor(repo)
		desc := settingsDesc(org, name, remote, repo, unarchive, archive)
		op := reconcile.NewOperation(reconcile.KindUpdate, desc,
			func(ctx context.Context) error {
				return write.EditRepo(ctx, org, name, settings)
			})
		switch {
		case unarchive:
			// Unarchiving must land before any other change to the repo.
			d.pre = append(d.pre, op)
			barrier = op
		case archive:
			// Archiving must land after: access and protections cannot be
			// modified on an archived repo.
			d.post = append(d.post, op)
		default:
			d.updates = append(d.updates, op)
		}
	}

	remoteTeams, err := d.read.RepoTeams(ctx, org, name)
	if err != nil {
		return err
	}
	remoteCollab, err := d.read.RepoCollaborators(ctx, org, name)
	if err != nil {
		return err
	}
	d.diffRepoAccess(repo, remoteTeams, remoteCollab, barrier)

	remoteProt, err := d.read.BranchProtections(ctx, org, name)
	if err != nil {
		return err
	}
	d.diffProtections(repo, remoteProt, barrier)
	return nil
}

func settingsDesc(org, name string, remote *RemoteRepo, repo *corpus.Repo, unarchive, archive bool) string {
	var changes []string
	if unarchive {
		changes = append(changes, "unarchive")
	}
	if archive {
		changes = append(changes, "archive")
	}
	if remote.Description != repo.Description {
		changes = append(changes, fmt.Sprintf("description %q -> %q", remote.Description, repo.Description))
	}
	if remote.Homepage != repo.Homepage {
		changes = append(changes, fmt.Sprintf("homepage %q -> %q", remote.Homepage, repo.Homepage))
	}
	if remote.Private != repo.Private {
		changes = append(changes, fmt.Sprintf("private %v -> %v", remote.Private, repo.Private))
	}
	if remote.AutoMerge != repo.AutoMerge {
		changes = append(changes, fmt.Sprintf("auto-merge %v -> %v", remote.AutoMerge, repo.AutoMerge))
	}
	return fmt.Sprintf("edit repo %s/%s: %s", org, name, strings.Join(changes, ", "))
}

// diffRepoAccess reconciles team and collaborator access. Bots are plain
// collaborators with write access; their push rights on protected branches
// come from the protection push allowances instead.
func (d *differ) diffRepoAccess(repo *corpus.Repo, remoteTeams map[string]Permission, remoteCollab map[string]Permission, after *reconcile.Operation) {
	org, name := d.org, repo.Name
	write := d.write

	teamsLeft := map[string]Permission{}
	for team, p := range remoteTeams {
		teamsLeft[team] = p
	}
	for _, team := range sortedKeys(repo.TeamAccess) {
		want := permissionFor(repo.TeamAccess[team])
		have, present := teamsLeft[team]
		delete(teamsLeft, team)
		if present && have == want {
			continue
		}
		teamName := team
		kind, verb := reconcile.KindCreate, "grant"
		if present {
			kind, verb = reconcile.KindUpdate, "change"
		}
		op := reconcile.NewOperation(kind,
			fmt.Sprintf("%s team %s access on %s/%s: %s", verb, teamName, org, name, want),
			func(ctx context.Context) error {
				return write.SetTeamPermission(ctx, org, name, teamName, want)
			}).After(afterOps(after)...)
		d.bucket(kind, op)
	}
	for _, team := range sortedKeys(teamsLeft) {
		teamName := team
		d.deletes = append(d.deletes, reconcile.NewOperation(reconcile.KindDelete,
			fmt.Sprintf("revoke team %s access on %s/%s", teamName, org, name),
			func(ctx context.Context) error {
				return write.RemoveTeamFromRepo(ctx, org, name, teamName)
			}).After(afterOps(after)...))
	}

	collabLeft := map[string]Permission{}
	for login, p := range remoteCollab {
		collabLeft[strings.ToLower(login)] = p
	}
	desired := map[string]Permission{}
	for handle, role := range repo.IndividualAccess {
		desired[handle] = permissionFor(role)
	}
	for _, bot := range repo.Bots {
		desired[bot] = PermWrite
	}
	for _, login := range sortedKeys(desired) {
		want := desired[login]
		have, present := collabLeft[strings.ToLower(login)]
		delete(collabLeft, strings.ToLower(login))
		if present && have == want {
			continue
		}
		user := login
		kind, verb := reconcile.KindCreate, "grant"
		if present {
			kind, verb = reconcile.KindUpdate, "change"
		}
		op := reconcile.NewOperation(kind,
			fmt.Sprintf("%s %s access on %s/%s: %s", verb, user, org, name, want),
			func(ctx context.Context) error {
				return write.SetCollaboratorPermission(ctx, org, name, user, want)
			}).After(afterOps(after)...)
		d.bucket(kind, op)
	}
	for _, login := range sortedKeys(collabLeft) {
		user := login
		d.deletes = append(d.deletes, reconcile.NewOperation(reconcile.KindDelete,
			fmt.Sprintf("revoke %s access on %s/%s", user, org, name),
			func(ctx context.Context) error {
				return write.RemoveCollaborator(ctx, org, name, user)
			}).After(afterOps(after)...))
	}
}

// diffProtections reconciles the branch protections of one owned repo.
// Desired patterns are matched to remote rules exactly, then by glob so a
// rule created for a literal branch still pairs with its pattern. Rules on
// an owned repo that match no desired pattern are deleted.
func (d *differ) diffProtections(repo *corpus.Repo, remote map[string]*Protection, after *reconcile.Operation) {
	org, name := d.org, repo.Name
	write := d.write

	remaining := map[string]*Protection{}
	for pattern, p := range remote {
		remaining[pattern] = p
	}

	for i := range repo.BranchProtections {
		bp := &repo.BranchProtections[i]
		want := desiredProtection(repo, bp)

		matched := ""
		if _, ok := remaining[bp.Pattern]; ok {
			matched = bp.Pattern
		} else {
			for _, pattern := range sortedKeys(remaining) {
				if ok, _ := doublestar.Match(bp.Pattern, pattern); ok {
					matched = pattern
					break
				}
			}
		}
		if matched == "" {
			d.creates = append(d.creates, reconcile.NewOperation(reconcile.KindCreate,
				fmt.Sprintf("create branch protection %q on %s/%s", bp.Pattern, org, name),
				func(ctx context.Context) error {
					return write.UpsertBranchProtection(ctx, org, name, want)
				}).After(afterOps(after)...))
			continue
		}
		have := remaining[matched]
		delete(remaining, matched)

		// GitHub-App push allowances are not modelled in the corpus; keep
		// whatever the remote has so app access round-trips.
		want.PushApps = slices.Clone(have.PushApps)
		slices.Sort(want.PushApps)

		changed := protectionChanges(have, want)
		if len(changed) == 0 {
			continue
		}
		d.updates = append(d.updates, reconcile.NewOperation(reconcile.KindUpdate,
			fmt.Sprintf("update branch protection %q on %s/%s: %s", bp.Pattern, org, name, strings.Join(changed, ", ")),
			func(ctx context.Context) error {
				return write.UpsertBranchProtection(ctx, org, name, want)
			}).After(afterOps(after)...))
	}

	for _, pattern := range sortedKeys(remaining) {
		p := pattern
		d.deletes = append(d.deletes, reconcile.NewOperation(reconcile.KindDelete,
			fmt.Sprintf("delete branch protection %q on %s/%s", p, org, name),
			func(ctx context.Context) error {
				return write.DeleteBranchProtection(ctx, org, name, p)
			}).After(afterOps(after)...))
	}
}

// desiredProtection renders a corpus protection into the remote shape.
// A branch managed by a merge bot never requires a PR or approvals: the
// bot force-pushes to it directly.
func desiredProtection(repo *corpus.Repo, bp *corpus.BranchProtection) *Protection {
	usesMergeBot := len(bp.MergeBots) > 0
	prRequired := bp.PRIsRequired() && !usesMergeBot

	p := &Protection{
		Pattern:            bp.Pattern,
		DismissStaleReview: bp.DismissStaleReview,
		PRRequired:         prRequired,
	}
	if prRequired {
		p.RequiredApprovals = bp.ApprovalCount()
		p.Checks = slices.Clone(bp.CIChecks)
		slices.Sort(p.Checks)
	}
	p.PushTeams = slices.Clone(bp.AllowedMergeTeams)
	slices.Sort(p.PushTeams)
	for _, bot := range bp.MergeBots {
		switch corpus.MergeBot(bot) {
		case corpus.MergeBotHomu:
			p.PushUsers = append(p.PushUsers, "bors")
		case corpus.MergeBotRustTimer:
			p.PushUsers = append(p.PushUsers, "rust-timer")
		}
	}
	slices.Sort(p.PushUsers)
	return p
}

// protectionChanges returns the field-wise differences, empty when equal.
func protectionChanges(have, want *Protection) []string {
	var out []string
	if !slices.Equal(sortedClone(have.Checks), sortedClone(want.Checks)) {
		out = append(out, fmt.Sprintf("ci-checks %v -> %v", have.Checks, want.Checks))
	}
	if have.DismissStaleReview != want.DismissStaleReview {
		out = append(out, fmt.Sprintf("dismiss-stale-review %v -> %v", have.DismissStaleReview, want.DismissStaleReview))
	}
	if have.PRRequired != want.PRRequired {
		out = append(out, fmt.Sprintf("pr-required %v -> %v", have.PRRequired, want.PRRequired))
	}
	if have.RequiredApprovals != want.RequiredApprovals {
		out = append(out, fmt.Sprintf("required-approvals %d -> %d", have.RequiredApprovals, want.RequiredApprovals))
	}
	if !slices.Equal(sortedClone(have.PushTeams), sortedClone(want.PushTeams)) {
		out = append(out, fmt.Sprintf("push teams %v -> %v", have.PushTeams, want.PushTeams))
	}
	if !slices.Equal(sortedClone(have.PushUsers), sortedClone(want.PushUsers)) {
		out = append(out, fmt.Sprintf("push users %v -> %v", have.PushUsers, want.PushUsers))
	}
	if !slices.Equal(sortedClone(have.PushApps), sortedClone(want.PushApps)) {
		out = append(out, fmt.Sprintf("push apps %v -> %v", have.PushApps, want.PushApps))
	}
	return out
}

func (d *differ) bucket(kind reconcile.Kind, op *reconcile.Operation) {
	switch kind {
	case reconcile.KindCreate:
		d.creates = append(d.creates, op)
	case reconcile.KindUpdate:
		d.updates = append(d.updates, op)
	default:
		d.deletes = append(d.deletes, op)
	}
}

func afterOps(op *reconcile.Operation) []*reconcile.Operation {
	if op == nil {
		return nil
	}
	return []*reconcile.Operation{op}
}

func sortedClone(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
