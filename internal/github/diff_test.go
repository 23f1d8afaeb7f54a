package github

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/corpus"
	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// fakeRemote implements Read and Write over in-memory state, so a plan can
// be applied and re-planned against the mutated snapshot.
type fakeRemote struct {
	teams         map[string]*RemoteTeam                 // by name
	members       map[string]map[string]model.TeamRole   // by slug
	invites       map[string][]string                    // by slug
	repos         map[string]*RemoteRepo                 // by name
	repoTeams     map[string]map[string]Permission       // repo -> team name -> permission
	collaborators map[string]map[string]Permission       // repo -> login -> permission
	protections   map[string]map[string]*Protection      // repo -> pattern -> rule

	touched map[string]bool // team slugs passed to any read beyond the org listing
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		teams:         map[string]*RemoteTeam{},
		members:       map[string]map[string]model.TeamRole{},
		invites:       map[string][]string{},
		repos:         map[string]*RemoteRepo{},
		repoTeams:     map[string]map[string]Permission{},
		collaborators: map[string]map[string]Permission{},
		protections:   map[string]map[string]*Protection{},
		touched:       map[string]bool{},
	}
}

func (f *fakeRemote) addTeam(name string, members map[string]model.TeamRole) {
	slug := slugify(name)
	f.teams[name] = &RemoteTeam{Name: name, Slug: slug, Description: DefaultDescription, Privacy: DefaultPrivacy}
	f.members[slug] = members
}

func (f *fakeRemote) OrgTeams(ctx context.Context, org string) (map[string]*RemoteTeam, error) {
	out := map[string]*RemoteTeam{}
	for name, t := range f.teams {
		out[name] = t
	}
	return out, nil
}

func (f *fakeRemote) TeamMembers(ctx context.Context, org, slug string) (map[string]model.TeamRole, error) {
	f.touched[slug] = true
	out := map[string]model.TeamRole{}
	for login, role := range f.members[slug] {
		out[strings.ToLower(login)] = role
	}
	return out, nil
}

func (f *fakeRemote) TeamInvitations(ctx context.Context, org, slug string) ([]string, error) {
	return f.invites[slug], nil
}

func (f *fakeRemote) Repo(ctx context.Context, org, name string) (*RemoteRepo, error) {
	return f.repos[name], nil
}

func (f *fakeRemote) RepoTeams(ctx context.Context, org, name string) (map[string]Permission, error) {
	out := map[string]Permission{}
	for team, p := range f.repoTeams[name] {
		out[team] = p
	}
	return out, nil
}

func (f *fakeRemote) RepoCollaborators(ctx context.Context, org, name string) (map[string]Permission, error) {
	out := map[string]Permission{}
	for login, p := range f.collaborators[name] {
		out[strings.ToLower(login)] = p
	}
	return out, nil
}

func (f *fakeRemote) BranchProtections(ctx context.Context, org, name string) (map[string]*Protection, error) {
	out := map[string]*Protection{}
	for pattern, p := range f.protections[name] {
		out[pattern] = p
	}
	return out, nil
}

func (f *fakeRemote) CreateTeam(ctx context.Context, org, name, description, privacy string) error {
	slug := slugify(name)
	f.teams[name] = &RemoteTeam{Name: name, Slug: slug, Description: description, Privacy: privacy}
	if f.members[slug] == nil {
		f.members[slug] = map[string]model.TeamRole{}
	}
	return nil
}

func (f *fakeRemote) DeleteTeam(ctx context.Context, org, slug string) error {
	for name, t := range f.teams {
		if t.Slug == slug {
			delete(f.teams, name)
		}
	}
	delete(f.members, slug)
	return nil
}

func (f *fakeRemote) EditTeam(ctx context.Context, org, slug, name, description, privacy string) error {
	for old, t := range f.teams {
		if t.Slug == slug {
			delete(f.teams, old)
			f.teams[name] = &RemoteTeam{Name: name, Slug: slug, Description: description, Privacy: privacy}
			return nil
		}
	}
	return nil
}

func (f *fakeRemote) SetTeamMembership(ctx context.Context, org, slug, user string, role model.TeamRole) error {
	if f.members[slug] == nil {
		f.members[slug] = map[string]model.TeamRole{}
	}
	f.members[slug][strings.ToLower(user)] = role
	return nil
}

func (f *fakeRemote) RemoveTeamMembership(ctx context.Context, org, slug, user string) error {
	delete(f.members[slug], strings.ToLower(user))
	return nil
}

func (f *fakeRemote) CreateRepo(ctx context.Context, org, name string, s *RepoSettings) error {
	f.repos[name] = &RemoteRepo{Name: name, Description: s.Description, Homepage: s.Homepage, Private: s.Private, AutoMerge: s.AutoMerge}
	return nil
}

func (f *fakeRemote) EditRepo(ctx context.Context, org, name string, s *RepoSettings) error {
	f.repos[name] = &RemoteRepo{Name: name, Description: s.Description, Homepage: s.Homepage, Archived: s.Archived, Private: s.Private, AutoMerge: s.AutoMerge}
	return nil
}

func (f *fakeRemote) SetTeamPermission(ctx context.Context, org, repo, team string, p Permission) error {
	if f.repoTeams[repo] == nil {
		f.repoTeams[repo] = map[string]Permission{}
	}
	f.repoTeams[repo][team] = p
	return nil
}

func (f *fakeRemote) RemoveTeamFromRepo(ctx context.Context, org, repo, team string) error {
	delete(f.repoTeams[repo], team)
	return nil
}

func (f *fakeRemote) SetCollaboratorPermission(ctx context.Context, org, repo, user string, p Permission) error {
	if f.collaborators[repo] == nil {
		f.collaborators[repo] = map[string]Permission{}
	}
	f.collaborators[repo][strings.ToLower(user)] = p
	return nil
}

func (f *fakeRemote) RemoveCollaborator(ctx context.Context, org, repo, user string) error {
	delete(f.collaborators[repo], strings.ToLower(user))
	return nil
}

func (f *fakeRemote) UpsertBranchProtection(ctx context.Context, org, repo string, p *Protection) error {
	if f.protections[repo] == nil {
		f.protections[repo] = map[string]*Protection{}
	}
	f.protections[repo][p.Pattern] = p
	return nil
}

func (f *fakeRemote) DeleteBranchProtection(ctx context.Context, org, repo, pattern string) error {
	delete(f.protections[repo], pattern)
	return nil
}

// testModel builds a model with team lang (lead alice, member bob) in org
// acme and repo acme/widget.
func testModel(t *testing.T, mutate func(c *corpus.Corpus)) *model.Model {
	t.Helper()
	c := &corpus.Corpus{
		People: map[string]*corpus.Person{
			"alice": {GitHub: "alice", GitHubID: 1},
			"bob":   {GitHub: "bob", GitHubID: 2},
			"carol": {GitHub: "carol", GitHubID: 3},
		},
		Teams: map[string]*corpus.Team{
			"lang": {
				Name: "lang", Kind: corpus.KindTeam,
				Leads:   []string{"alice"},
				Members: []corpus.TeamMember{{GitHub: "alice"}, {GitHub: "bob"}},
				Alumni:  []string{},
				GitHub:  &corpus.GitHubIntegration{Orgs: []string{"acme"}},
			},
		},
		Repos: map[string]*corpus.Repo{
			"acme/widget": {
				Org: "acme", Name: "widget", Description: "The widget",
				TeamAccess:       map[string]corpus.RepoRole{"lang": corpus.RoleMaintain},
				IndividualAccess: map[string]corpus.RepoRole{},
			},
		},
	}
	if mutate != nil {
		mutate(c)
	}
	return model.New(c)
}

// convergedRemote returns a fake already matching testModel's desired state.
func convergedRemote() *fakeRemote {
	f := newFakeRemote()
	f.addTeam("lang", map[string]model.TeamRole{
		"alice": model.RoleMaintainer,
		"bob":   model.RoleMember,
	})
	f.repos["widget"] = &RemoteRepo{Name: "widget", Description: "The widget"}
	f.repoTeams["widget"] = map[string]Permission{"lang": PermMaintain}
	return f
}

func testAdapter(f *fakeRemote) *Adapter {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Adapter{
		Log: log,
		Factory: func(org, token string) (Read, Write, error) {
			return f, f, nil
		},
		TokenLookup: func(string) string { return "token" },
	}
}

func planFor(t *testing.T, f *fakeRemote, m *model.Model) *reconcile.Plan {
	t.Helper()
	plan, err := testAdapter(f).Plan(context.Background(), m)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Skipped) > 0 {
		t.Fatalf("unexpected skipped tenants: %v", plan.Skipped)
	}
	return plan
}

func applyPlan(t *testing.T, plan *reconcile.Plan) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	runner := &reconcile.Runner{Log: log, InitialInterval: time.Millisecond, MaxElapsed: time.Second}
	res := runner.Apply(context.Background(), plan)
	if res.Failed() {
		t.Fatalf("apply failed:\n%s", res.Summary())
	}
}

func descriptions(plan *reconcile.Plan) []string {
	var out []string
	for _, op := range plan.Ops {
		out = append(out, op.Desc)
	}
	return out
}

func TestConvergedRemoteYieldsEmptyPlan(t *testing.T) {
	plan := planFor(t, convergedRemote(), testModel(t, nil))
	if !plan.Empty() {
		t.Fatalf("want empty plan, got:\n%s", strings.Join(descriptions(plan), "\n"))
	}
}

func TestAddMember(t *testing.T) {
	f := convergedRemote()
	delete(f.members["lang"], "bob")

	m := testModel(t, nil)
	plan := planFor(t, f, m)
	if len(plan.Ops) != 1 {
		t.Fatalf("want exactly one op, got:\n%s", strings.Join(descriptions(plan), "\n"))
	}
	op := plan.Ops[0]
	if op.Kind != reconcile.KindCreate || !strings.Contains(op.Desc, "add bob to team acme/lang (member)") {
		t.Fatalf("unexpected op: [%s] %s", op.Kind, op.Desc)
	}

	applyPlan(t, plan)
	if replan := planFor(t, f, m); !replan.Empty() {
		t.Fatalf("re-plan not empty:\n%s", strings.Join(descriptions(replan), "\n"))
	}
}

func TestPromoteToLead(t *testing.T) {
	f := convergedRemote()
	f.members["lang"]["alice"] = model.RoleMember

	m := testModel(t, nil)
	plan := planFor(t, f, m)
	if len(plan.Ops) != 1 {
		t.Fatalf("want exactly one op, got:\n%s", strings.Join(descriptions(plan), "\n"))
	}
	if !strings.Contains(plan.Ops[0].Desc, "change role of alice in team acme/lang: member -> maintainer") {
		t.Fatalf("unexpected op: %s", plan.Ops[0].Desc)
	}

	applyPlan(t, plan)
	if f.members["lang"]["alice"] != model.RoleMaintainer {
		t.Error("alice not promoted")
	}
	if f.members["lang"]["bob"] != model.RoleMember {
		t.Error("bob role changed")
	}
}

func TestInvitedMemberNotReAdded(t *testing.T) {
	f := convergedRemote()
	delete(f.members["lang"], "bob")
	f.invites["lang"] = []string{"bob"}

	plan := planFor(t, f, testModel(t, nil))
	if !plan.Empty() {
		t.Fatalf("pending invite should suppress the add:\n%s", strings.Join(descriptions(plan), "\n"))
	}
}

func TestCreateTeamOrdersMembershipAfterCreate(t *testing.T) {
	f := newFakeRemote()
	f.repos["widget"] = &RemoteRepo{Name: "widget", Description: "The widget"}
	f.repoTeams["widget"] = map[string]Permission{"lang": PermMaintain}

	m := testModel(t, nil)
	plan := planFor(t, f, m)

	var create *reconcile.Operation
	for _, op := range plan.Ops {
		if strings.Contains(op.Desc, "create team acme/lang") {
			create = op
		}
		if strings.Contains(op.Desc, "add alice") {
			if len(op.Requires) != 1 || op.Requires[0] != create {
				t.Error("membership op must require the team create")
			}
		}
	}
	if create == nil {
		t.Fatal("no create team op")
	}

	applyPlan(t, plan)
	if replan := planFor(t, f, m); !replan.Empty() {
		t.Fatalf("re-plan not empty:\n%s", strings.Join(descriptions(replan), "\n"))
	}
}

func TestOwnershipSafety(t *testing.T) {
	f := convergedRemote()
	f.addTeam("infra-admins", map[string]model.TeamRole{"mallory": model.RoleMaintainer})
	// No managed-description stamp: this team was created by hand.
	f.teams["infra-admins"].Description = "Infrastructure administrators"

	plan := planFor(t, f, testModel(t, nil))
	for _, desc := range descriptions(plan) {
		if strings.Contains(desc, "infra-admins") {
			t.Fatalf("plan touches unowned team: %s", desc)
		}
	}
	if f.touched["infra-admins"] {
		t.Error("unowned team was read beyond the org listing")
	}
}

func TestStaleManagedTeamDeleted(t *testing.T) {
	f := convergedRemote()
	// addTeam stamps the managed description, so this reads as a team the
	// tool created for a corpus team that has since been removed.
	f.addTeam("old-team", map[string]model.TeamRole{"alice": model.RoleMember})

	m := testModel(t, nil)
	plan := planFor(t, f, m)
	if len(plan.Ops) != 1 {
		t.Fatalf("want exactly one op, got:\n%s", strings.Join(descriptions(plan), "\n"))
	}
	op := plan.Ops[0]
	if op.Kind != reconcile.KindDelete || !strings.Contains(op.Desc, "delete team acme/old-team") {
		t.Fatalf("unexpected op: [%s] %s", op.Kind, op.Desc)
	}

	applyPlan(t, plan)
	if _, ok := f.teams["old-team"]; ok {
		t.Error("stale team not deleted")
	}
	if replan := planFor(t, f, m); !replan.Empty() {
		t.Fatalf("re-plan not empty:\n%s", strings.Join(descriptions(replan), "\n"))
	}
}

func TestTransitiveInclusionAddsMember(t *testing.T) {
	mutate := func(c *corpus.Corpus) {
		c.Teams["all"] = &corpus.Team{
			Name: "all", Kind: corpus.KindTeam,
			Alumni:            []string{},
			IncludeAllMembers: true,
			GitHub:            &corpus.GitHubIntegration{Orgs: []string{"acme"}},
		}
	}
	f := convergedRemote()
	f.addTeam("all", map[string]model.TeamRole{
		"alice": model.RoleMember,
		"bob":   model.RoleMember,
	})

	if plan := planFor(t, f, testModel(t, mutate)); !plan.Empty() {
		t.Fatalf("baseline not converged:\n%s", strings.Join(descriptions(plan), "\n"))
	}

	// Adding carol to lang must surface in the next plan for `all`.
	withCarol := func(c *corpus.Corpus) {
		mutate(c)
		c.Teams["lang"].Members = append(c.Teams["lang"].Members, corpus.TeamMember{GitHub: "carol"})
	}
	plan := planFor(t, f, testModel(t, withCarol))
	found := false
	for _, desc := range descriptions(plan) {
		if strings.Contains(desc, "add carol to team acme/all") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected carol in team all:\n%s", strings.Join(descriptions(plan), "\n"))
	}
}

func TestBranchProtectionUpdateOnlyChangedField(t *testing.T) {
	approvals := 2
	m := testModel(t, func(c *corpus.Corpus) {
		c.Repos["acme/widget"].BranchProtections = []corpus.BranchProtection{{
			Pattern:           "master",
			RequiredApprovals: &approvals,
		}}
	})
	f := convergedRemote()
	f.protections["widget"] = map[string]*Protection{
		"master": {Pattern: "master", PRRequired: true, RequiredApprovals: 1},
	}

	plan := planFor(t, f, m)
	if len(plan.Ops) != 1 {
		t.Fatalf("want exactly one op, got:\n%s", strings.Join(descriptions(plan), "\n"))
	}
	desc := plan.Ops[0].Desc
	if !strings.Contains(desc, "required-approvals 1 -> 2") {
		t.Fatalf("missing approvals change: %s", desc)
	}
	for _, field := range []string{"ci-checks", "dismiss-stale-review", "pr-required", "push"} {
		if strings.Contains(desc, field) {
			t.Errorf("unchanged field %q mentioned: %s", field, desc)
		}
	}

	applyPlan(t, plan)
	if replan := planFor(t, f, m); !replan.Empty() {
		t.Fatalf("re-plan not empty:\n%s", strings.Join(descriptions(replan), "\n"))
	}
}

func TestMergeBotProtection(t *testing.T) {
	m := testModel(t, func(c *corpus.Corpus) {
		c.Repos["acme/widget"].Bots = []string{"bors"}
		c.Repos["acme/widget"].BranchProtections = []corpus.BranchProtection{{
			Pattern:           "master",
			MergeBots:         []string{"homu"},
			AllowedMergeTeams: []string{"lang"},
		}}
	})
	f := convergedRemote()
	f.collaborators["widget"] = map[string]Permission{"bors": PermWrite}

	plan := planFor(t, f, m)
	applyPlan(t, plan)

	prot := f.protections["widget"]["master"]
	if prot == nil {
		t.Fatal("protection not created")
	}
	if prot.PRRequired || prot.RequiredApprovals != 0 {
		t.Errorf("merge-bot branch must not require PRs: %+v", prot)
	}
	if len(prot.PushUsers) != 1 || prot.PushUsers[0] != "bors" {
		t.Errorf("push users = %v, want [bors]", prot.PushUsers)
	}
	if len(prot.PushTeams) != 1 || prot.PushTeams[0] != "lang" {
		t.Errorf("push teams = %v, want [lang]", prot.PushTeams)
	}

	if replan := planFor(t, f, m); !replan.Empty() {
		t.Fatalf("re-plan not empty:\n%s", strings.Join(descriptions(replan), "\n"))
	}
}

func TestUnexpectedProtectionDeleted(t *testing.T) {
	f := convergedRemote()
	f.protections["widget"] = map[string]*Protection{
		"stray": {Pattern: "stray", PRRequired: true, RequiredApprovals: 1},
	}

	m := testModel(t, nil)
	plan := planFor(t, f, m)
	if len(plan.Ops) != 1 || plan.Ops[0].Kind != reconcile.KindDelete {
		t.Fatalf("want one delete op, got:\n%s", strings.Join(descriptions(plan), "\n"))
	}
	applyPlan(t, plan)
	if len(f.protections["widget"]) != 0 {
		t.Error("stray protection not deleted")
	}
}

func TestArchivedRepoLeftAlone(t *testing.T) {
	m := testModel(t, func(c *corpus.Corpus) {
		c.Repos["acme/widget"].Archived = true
	})
	f := convergedRemote()
	f.repos["widget"].Archived = true
	// Drift behind the archive must not produce operations.
	f.repoTeams["widget"] = map[string]Permission{}

	if plan := planFor(t, f, m); !plan.Empty() {
		t.Fatalf("archived repo must be untouched:\n%s", strings.Join(descriptions(plan), "\n"))
	}
}

func TestMissingCredentialSkipsOrg(t *testing.T) {
	adapter := testAdapter(convergedRemote())
	adapter.TokenLookup = func(string) string { return "" }
	plan, err := adapter.Plan(context.Background(), testModel(t, nil))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].Tenant != "acme" {
		t.Fatalf("want acme skipped, got %+v", plan.Skipped)
	}
}

func TestTokenEnvVar(t *testing.T) {
	if got := TokenEnvVar("acme-corp"); got != "GITHUB_TOKEN_ACME_CORP" {
		t.Fatalf("TokenEnvVar = %s", got)
	}
}
