package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
)

// Client implements Read and Write on the GitHub REST API. One client is
// built per organisation, with that organisation's token.
type Client struct {
	gh *gh.Client
}

// NewClient builds the production client for one org's credential.
func NewClient(_ string, token string) (Read, Write, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	c := &Client{gh: gh.NewClient(oauth2.NewClient(context.Background(), ts))}
	return c, c, nil
}

// classify wraps retryable remote failures so the runner backs off instead
// of failing the operation: rate limits, 5xx and network timeouts.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rate *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &rate) || errors.As(err, &abuse) {
		return reconcile.Transient(err)
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		if code >= 500 || code == http.StatusTooManyRequests {
			return reconcile.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return reconcile.Transient(err)
	}
	return err
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil &&
		ghErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) OrgTeams(ctx context.Context, org string) (map[string]*RemoteTeam, error) {
	out := map[string]*RemoteTeam{}
	opts := &gh.ListOptions{PerPage: 100}
	for {
		teams, resp, err := c.gh.Teams.ListTeams(ctx, org, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, t := range teams {
			out[t.GetName()] = &RemoteTeam{
				Name:        t.GetName(),
				Slug:        t.GetSlug(),
				Description: t.GetDescription(),
				Privacy:     t.GetPrivacy(),
			}
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) TeamMembers(ctx context.Context, org, slug string) (map[string]model.TeamRole, error) {
	out := map[string]model.TeamRole{}
	for _, role := range []model.TeamRole{model.RoleMember, model.RoleMaintainer} {
		opts := &gh.TeamListTeamMembersOptions{
			Role:        string(role),
			ListOptions: gh.ListOptions{PerPage: 100},
		}
		for {
			users, resp, err := c.gh.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
			if err != nil {
				return nil, classify(err)
			}
			for _, u := range users {
				out[strings.ToLower(u.GetLogin())] = role
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}
	return out, nil
}

func (c *Client) TeamInvitations(ctx context.Context, org, slug string) ([]string, error) {
	var out []string
	opts := &gh.ListOptions{PerPage: 100}
	for {
		invites, resp, err := c.gh.Teams.ListPendingTeamInvitationsBySlug(ctx, org, slug, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, inv := range invites {
			if login := inv.GetLogin(); login != "" {
				out = append(out, strings.ToLower(login))
			}
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) Repo(ctx context.Context, org, name string) (*RemoteRepo, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, org, name)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &RemoteRepo{
		Name:        repo.GetName(),
		Description: repo.GetDescription(),
		Homepage:    repo.GetHomepage(),
		Archived:    repo.GetArchived(),
		Private:     repo.GetPrivate(),
		AutoMerge:   repo.GetAllowAutoMerge(),
	}, nil
}

func (c *Client) RepoTeams(ctx context.Context, org, name string) (map[string]Permission, error) {
	out := map[string]Permission{}
	opts := &gh.ListOptions{PerPage: 100}
	for {
		teams, resp, err := c.gh.Repositories.ListTeams(ctx, org, name, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, t := range teams {
			out[t.GetName()] = Permission(t.GetPermission())
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) RepoCollaborators(ctx context.Context, org, name string) (map[string]Permission, error) {
	out := map[string]Permission{}
	opts := &gh.ListCollaboratorsOptions{
		Affiliation: "direct",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		users, resp, err := c.gh.Repositories.ListCollaborators(ctx, org, name, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, u := range users {
			out[strings.ToLower(u.GetLogin())] = collaboratorPermission(u.GetPermissions())
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// collaboratorPermission collapses the permission map returned for a
// collaborator into the highest granted level.
func collaboratorPermission(perms map[string]bool) Permission {
	switch {
	case perms["admin"]:
		return PermAdmin
	case perms["maintain"]:
		return PermMaintain
	case perms["push"]:
		return PermWrite
	default:
		return PermTriage
	}
}

// BranchProtections reads every protected branch of the repo. The REST
// protection surface is keyed by branch name, which doubles as the pattern
// in the diff.
func (c *Client) BranchProtections(ctx context.Context, org, name string) (map[string]*Protection, error) {
	out := map[string]*Protection{}
	opts := &gh.BranchListOptions{
		Protected:   gh.Ptr(true),
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		branches, resp, err := c.gh.Repositories.ListBranches(ctx, org, name, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, b := range branches {
			prot, _, err := c.gh.Repositories.GetBranchProtection(ctx, org, name, b.GetName())
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return nil, classify(err)
			}
			out[b.GetName()] = convertProtection(b.GetName(), prot)
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func convertProtection(pattern string, prot *gh.Protection) *Protection {
	p := &Protection{Pattern: pattern}
	if checks := prot.GetRequiredStatusChecks(); checks != nil && checks.Checks != nil {
		for _, chk := range *checks.Checks {
			p.Checks = append(p.Checks, chk.Context)
		}
	}
	if reviews := prot.GetRequiredPullRequestReviews(); reviews != nil {
		p.PRRequired = true
		p.DismissStaleReview = reviews.DismissStaleReviews
		p.RequiredApprovals = reviews.RequiredApprovingReviewCount
	}
	if restr := prot.GetRestrictions(); restr != nil {
		for _, t := range restr.Teams {
			p.PushTeams = append(p.PushTeams, t.GetName())
		}
		for _, u := range restr.Users {
			p.PushUsers = append(p.PushUsers, u.GetLogin())
		}
		for _, a := range restr.Apps {
			p.PushApps = append(p.PushApps, a.GetSlug())
		}
	}
	return p
}

func (c *Client) CreateTeam(ctx context.Context, org, name, description, privacy string) error {
	_, _, err := c.gh.Teams.CreateTeam(ctx, org, gh.NewTeam{
		Name:        name,
		Description: gh.Ptr(description),
		Privacy:     gh.Ptr(privacy),
	})
	return classify(err)
}

func (c *Client) EditTeam(ctx context.Context, org, slug, name, description, privacy string) error {
	_, _, err := c.gh.Teams.EditTeamBySlug(ctx, org, slug, gh.NewTeam{
		Name:        name,
		Description: gh.Ptr(description),
		Privacy:     gh.Ptr(privacy),
	}, false)
	return classify(err)
}

func (c *Client) DeleteTeam(ctx context.Context, org, slug string) error {
	_, err := c.gh.Teams.DeleteTeamBySlug(ctx, org, slug)
	return classify(err)
}

func (c *Client) SetTeamMembership(ctx context.Context, org, slug, user string, role model.TeamRole) error {
	_, _, err := c.gh.Teams.AddTeamMembershipBySlug(ctx, org, slug, user, &gh.TeamAddTeamMembershipOptions{
		Role: string(role),
	})
	return classify(err)
}

func (c *Client) RemoveTeamMembership(ctx context.Context, org, slug, user string) error {
	_, err := c.gh.Teams.RemoveTeamMembershipBySlug(ctx, org, slug, user)
	return classify(err)
}

func (c *Client) CreateRepo(ctx context.Context, org, name string, settings *RepoSettings) error {
	_, _, err := c.gh.Repositories.Create(ctx, org, &gh.Repository{
		Name:           gh.Ptr(name),
		Description:    gh.Ptr(settings.Description),
		Homepage:       gh.Ptr(settings.Homepage),
		Private:        gh.Ptr(settings.Private),
		AllowAutoMerge: gh.Ptr(settings.AutoMerge),
	})
	return classify(err)
}

func (c *Client) EditRepo(ctx context.Context, org, name string, settings *RepoSettings) error {
	_, _, err := c.gh.Repositories.Edit(ctx, org, name, &gh.Repository{
		Description:    gh.Ptr(settings.Description),
		Homepage:       gh.Ptr(settings.Homepage),
		Private:        gh.Ptr(settings.Private),
		Archived:       gh.Ptr(settings.Archived),
		AllowAutoMerge: gh.Ptr(settings.AutoMerge),
	})
	return classify(err)
}

func (c *Client) SetTeamPermission(ctx context.Context, org, repo, team string, p Permission) error {
	_, err := c.gh.Teams.AddTeamRepoBySlug(ctx, org, slugify(team), org, repo, &gh.TeamAddTeamRepoOptions{
		Permission: string(p),
	})
	return classify(err)
}

func (c *Client) RemoveTeamFromRepo(ctx context.Context, org, repo, team string) error {
	_, err := c.gh.Teams.RemoveTeamRepoBySlug(ctx, org, slugify(team), org, repo)
	return classify(err)
}

func (c *Client) SetCollaboratorPermission(ctx context.Context, org, repo, user string, p Permission) error {
	_, _, err := c.gh.Repositories.AddCollaborator(ctx, org, repo, user, &gh.RepositoryAddCollaboratorOptions{
		Permission: string(p),
	})
	return classify(err)
}

func (c *Client) RemoveCollaborator(ctx context.Context, org, repo, user string) error {
	_, err := c.gh.Repositories.RemoveCollaborator(ctx, org, repo, user)
	return classify(err)
}

func (c *Client) UpsertBranchProtection(ctx context.Context, org, repo string, p *Protection) error {
	req := &gh.ProtectionRequest{
		EnforceAdmins: true,
	}
	if len(p.Checks) > 0 {
		checks := make([]*gh.RequiredStatusCheck, 0, len(p.Checks))
		for _, name := range p.Checks {
			checks = append(checks, &gh.RequiredStatusCheck{Context: name})
		}
		req.RequiredStatusChecks = &gh.RequiredStatusChecks{
			Strict: false,
			Checks: &checks,
		}
	}
	if p.PRRequired {
		req.RequiredPullRequestReviews = &gh.PullRequestReviewsEnforcementRequest{
			DismissStaleReviews:          p.DismissStaleReview,
			RequiredApprovingReviewCount: p.RequiredApprovals,
		}
	}
	if len(p.PushTeams) > 0 || len(p.PushUsers) > 0 || len(p.PushApps) > 0 {
		req.Restrictions = &gh.BranchRestrictionsRequest{
			Teams: teamSlugs(p.PushTeams),
			Users: append([]string{}, p.PushUsers...),
			Apps:  append([]string{}, p.PushApps...),
		}
	}
	_, _, err := c.gh.Repositories.UpdateBranchProtection(ctx, org, repo, p.Pattern, req)
	return classify(err)
}

func (c *Client) DeleteBranchProtection(ctx context.Context, org, repo, pattern string) error {
	_, err := c.gh.Repositories.RemoveBranchProtection(ctx, org, repo, pattern)
	return classify(err)
}

func teamSlugs(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, slugify(name))
	}
	return out
}
