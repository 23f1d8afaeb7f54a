package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// file schemas, decoded strictly: unknown keys are rejected so that typos in
// a security-sensitive corpus cannot silently drop access rules. Fields
// whose TOML value is a union (string-or-bool, string-or-table) are decoded
// as `any` and normalized afterwards.

type personFile struct {
	Name        string         `toml:"name"`
	GitHub      string         `toml:"github"`
	GitHubID    int64          `toml:"github-id"`
	ZulipID     *int64         `toml:"zulip-id"`
	DiscordID   *int64         `toml:"discord-id"`
	IRC         string         `toml:"irc"`
	Matrix      string         `toml:"matrix"`
	Email       any            `toml:"email"`
	Permissions map[string]any `toml:"permissions"`
}

type teamPeopleFile struct {
	Leads                    []string  `toml:"leads"`
	Members                  []any     `toml:"members"`
	Alumni                   *[]string `toml:"alumni"`
	IncludedTeams            []string  `toml:"included-teams"`
	IncludeTeamLeads         bool      `toml:"include-team-leads"`
	IncludeWGLeads           bool      `toml:"include-wg-leads"`
	IncludeProjectGroupLeads bool      `toml:"include-project-group-leads"`
	IncludeAllMembers        bool      `toml:"include-all-team-members"`
	IncludeAllAlumni         bool      `toml:"include-all-alumni"`
}

type teamFile struct {
	Name             string              `toml:"name"`
	Kind             string              `toml:"kind"`
	SubteamOf        string              `toml:"subteam-of"`
	TopLevel         bool                `toml:"top-level"`
	People           teamPeopleFile      `toml:"people"`
	Roles            []Role              `toml:"roles"`
	Permissions      map[string]any      `toml:"permissions"`
	LeadsPermissions map[string]any      `toml:"leads-permissions"`
	GitHub           *GitHubIntegration  `toml:"github"`
	Lists            []ListConfig        `toml:"lists"`
	ZulipGroups      []ZulipGroupConfig  `toml:"zulip-groups"`
	ZulipStreams     []ZulipStreamConfig `toml:"zulip-streams"`
	DiscordRoles     []DiscordRoleConfig `toml:"discord-roles"`
	Website          *WebsiteConfig      `toml:"website"`
	ReviewBot        *ReviewBotConfig    `toml:"review-bot"`
}

type repoAccessFile struct {
	Teams       map[string]string `toml:"teams"`
	Individuals map[string]string `toml:"individuals"`
}

type repoFile struct {
	Org               string             `toml:"org"`
	Name              string             `toml:"name"`
	Description       string             `toml:"description"`
	Homepage          string             `toml:"homepage"`
	Bots              []string           `toml:"bots"`
	Archived          bool               `toml:"archived"`
	Private           bool               `toml:"private"`
	AutoMerge         bool               `toml:"auto-merge"`
	Access            repoAccessFile     `toml:"access"`
	BranchProtections []BranchProtection `toml:"branch-protections"`
}

// Load walks the corpus rooted at dir (people/, teams/, repos/<org>/) and
// returns the raw record collections. It fails on the first structural
// problem: a missing people/ or teams/ subtree, TOML syntax errors, unknown
// keys, duplicate or mismatched primary keys. A missing repos/ subtree
// yields an empty repo collection.
func Load(dir string) (*Corpus, error) {
	c := &Corpus{
		People: map[string]*Person{},
		Teams:  map[string]*Team{},
		Repos:  map[string]*Repo{},
	}

	if err := loadPeople(filepath.Join(dir, "people"), c); err != nil {
		return nil, err
	}
	if err := loadTeams(filepath.Join(dir, "teams"), c); err != nil {
		return nil, err
	}
	if err := loadRepos(filepath.Join(dir, "repos"), c); err != nil {
		return nil, err
	}
	return c, nil
}

func loadPeople(dir string, c *Corpus) error {
	return eachTOML(dir, func(path, base string) error {
		var pf personFile
		if err := decodeStrict(path, &pf); err != nil {
			return err
		}
		p, err := pf.normalize(path, base)
		if err != nil {
			return err
		}
		key := lowerASCII(p.GitHub)
		if prev, ok := c.People[key]; ok {
			return &ParseError{Path: path, Err: fmt.Errorf("duplicate person %q (already defined in %s)", p.GitHub, prev.SourcePath)}
		}
		c.People[key] = p
		return nil
	})
}

func loadTeams(dir string, c *Corpus) error {
	return eachTOML(dir, func(path, base string) error {
		var tf teamFile
		if err := decodeStrict(path, &tf); err != nil {
			return err
		}
		t, err := tf.normalize(path, base)
		if err != nil {
			return err
		}
		if prev, ok := c.Teams[t.Name]; ok {
			return &ParseError{Path: path, Err: fmt.Errorf("duplicate team %q (already defined in %s)", t.Name, prev.SourcePath)}
		}
		c.Teams[t.Name] = t
		return nil
	})
}

func loadRepos(dir string, c *Corpus) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, org := range entries {
		if !org.IsDir() {
			return &ParseError{Path: filepath.Join(dir, org.Name()), Err: fmt.Errorf("repos/ must contain one directory per org")}
		}
		orgName := org.Name()
		err := eachTOML(filepath.Join(dir, orgName), func(path, base string) error {
			var rf repoFile
			if err := decodeStrict(path, &rf); err != nil {
				return err
			}
			r, err := rf.normalize(path, orgName, base)
			if err != nil {
				return err
			}
			if prev, ok := c.Repos[r.FullName()]; ok {
				return &ParseError{Path: path, Err: fmt.Errorf("duplicate repo %q (already defined in %s)", r.FullName(), prev.SourcePath)}
			}
			c.Repos[r.FullName()] = r
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// eachTOML calls fn for every *.toml file directly under dir, passing the
// path and the extension-less basename.
func eachTOML(dir string, fn func(path, base string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := fn(path, strings.TrimSuffix(e.Name(), ".toml")); err != nil {
			return err
		}
	}
	return nil
}

func decodeStrict(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return &ParseError{Path: path, Err: fmt.Errorf("unknown keys:\n%s", strict.String())}
		}
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

func (pf *personFile) normalize(path, base string) (*Person, error) {
	if pf.GitHub == "" {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("missing github handle")}
	}
	if !strings.EqualFold(pf.GitHub, base) {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("github handle %q does not match filename %q", pf.GitHub, base)}
	}
	p := &Person{
		Name:       pf.Name,
		GitHub:     pf.GitHub,
		GitHubID:   pf.GitHubID,
		ZulipID:    pf.ZulipID,
		DiscordID:  pf.DiscordID,
		IRC:        pf.IRC,
		Matrix:     pf.Matrix,
		SourcePath: path,
	}
	switch v := pf.Email.(type) {
	case nil:
	case string:
		p.Email = v
		p.EmailSet = true
	case bool:
		if v {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("email must be an address or false, not true")}
		}
		p.EmailOptOut = true
	default:
		return nil, &ParseError{Path: path, Err: fmt.Errorf("email must be an address or false")}
	}
	perms, err := parsePermissions(pf.Permissions, path)
	if err != nil {
		return nil, err
	}
	p.Permissions = perms
	return p, nil
}

func (tf *teamFile) normalize(path, base string) (*Team, error) {
	if tf.Name == "" {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("missing team name")}
	}
	if tf.Name != base {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("team name %q does not match filename %q", tf.Name, base)}
	}
	kind := TeamKind(tf.Kind)
	if tf.Kind == "" {
		kind = KindTeam
	}
	switch kind {
	case KindTeam, KindWorkingGroup, KindProjectGroup, KindMarkerTeam:
	default:
		return nil, &ParseError{Path: path, Err: fmt.Errorf("unknown team kind %q", tf.Kind)}
	}

	t := &Team{
		Name:                     tf.Name,
		Kind:                     kind,
		SubteamOf:                tf.SubteamOf,
		TopLevel:                 tf.TopLevel,
		Leads:                    tf.People.Leads,
		IncludedTeams:            tf.People.IncludedTeams,
		IncludeTeamLeads:         tf.People.IncludeTeamLeads,
		IncludeWGLeads:           tf.People.IncludeWGLeads,
		IncludeProjectGroupLeads: tf.People.IncludeProjectGroupLeads,
		IncludeAllMembers:        tf.People.IncludeAllMembers,
		IncludeAllAlumni:         tf.People.IncludeAllAlumni,
		Roles:                    tf.Roles,
		GitHub:                   tf.GitHub,
		Lists:                    tf.Lists,
		ZulipGroups:              tf.ZulipGroups,
		ZulipStreams:             tf.ZulipStreams,
		DiscordRoles:             tf.DiscordRoles,
		Website:                  tf.Website,
		ReviewBot:                tf.ReviewBot,
		SourcePath:               path,
	}
	if tf.People.Alumni != nil {
		t.Alumni = *tf.People.Alumni
		if t.Alumni == nil {
			t.Alumni = []string{}
		}
	}
	for _, raw := range tf.People.Members {
		m, err := parseMember(raw, path)
		if err != nil {
			return nil, err
		}
		t.Members = append(t.Members, m)
	}
	var err error
	if t.Permissions, err = parsePermissions(tf.Permissions, path); err != nil {
		return nil, err
	}
	if t.LeadsPermissions, err = parsePermissions(tf.LeadsPermissions, path); err != nil {
		return nil, err
	}
	return t, nil
}

// parseMember accepts either a bare handle or a { github, roles } table.
func parseMember(raw any, path string) (TeamMember, error) {
	switch v := raw.(type) {
	case string:
		return TeamMember{GitHub: v}, nil
	case map[string]any:
		var m TeamMember
		for key, val := range v {
			switch key {
			case "github":
				s, ok := val.(string)
				if !ok {
					return m, &ParseError{Path: path, Err: fmt.Errorf("member github must be a string")}
				}
				m.GitHub = s
			case "roles":
				list, ok := val.([]any)
				if !ok {
					return m, &ParseError{Path: path, Err: fmt.Errorf("member roles must be an array of strings")}
				}
				for _, item := range list {
					s, ok := item.(string)
					if !ok {
						return m, &ParseError{Path: path, Err: fmt.Errorf("member roles must be an array of strings")}
					}
					m.Roles = append(m.Roles, s)
				}
			default:
				return m, &ParseError{Path: path, Err: fmt.Errorf("unknown member key %q", key)}
			}
		}
		if m.GitHub == "" {
			return m, &ParseError{Path: path, Err: fmt.Errorf("member table missing github handle")}
		}
		return m, nil
	default:
		return TeamMember{}, &ParseError{Path: path, Err: fmt.Errorf("member entries must be handles or { github, roles } tables")}
	}
}

func (rf *repoFile) normalize(path, org, base string) (*Repo, error) {
	if rf.Name == "" {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("missing repo name")}
	}
	if rf.Name != base {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("repo name %q does not match filename %q", rf.Name, base)}
	}
	if rf.Org != "" && rf.Org != org {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("repo org %q does not match directory %q", rf.Org, org)}
	}
	if rf.Description == "" {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("missing repo description")}
	}
	r := &Repo{
		Org:               org,
		Name:              rf.Name,
		Description:       rf.Description,
		Homepage:          rf.Homepage,
		Bots:              rf.Bots,
		Archived:          rf.Archived,
		Private:           rf.Private,
		AutoMerge:         rf.AutoMerge,
		TeamAccess:        map[string]RepoRole{},
		IndividualAccess:  map[string]RepoRole{},
		BranchProtections: rf.BranchProtections,
		SourcePath:        path,
	}
	for team, role := range rf.Access.Teams {
		rr, err := parseRepoRole(role, path)
		if err != nil {
			return nil, err
		}
		r.TeamAccess[team] = rr
	}
	for handle, role := range rf.Access.Individuals {
		rr, err := parseRepoRole(role, path)
		if err != nil {
			return nil, err
		}
		r.IndividualAccess[handle] = rr
	}
	return r, nil
}

func parseRepoRole(s, path string) (RepoRole, error) {
	switch r := RepoRole(s); r {
	case RoleTriage, RoleWrite, RoleMaintain, RoleAdmin:
		return r, nil
	default:
		return "", &ParseError{Path: path, Err: fmt.Errorf("unknown access role %q", s)}
	}
}

// parsePermissions normalizes a raw [permissions] table: boolean grants at
// the top level, plus the nested bors table of per-repo { review, try }
// grants.
func parsePermissions(raw map[string]any, path string) (*Permissions, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	p := &Permissions{Bools: map[string]bool{}, Bors: map[string]BorsACL{}}
	for key, val := range raw {
		if key == "bors" {
			table, ok := val.(map[string]any)
			if !ok {
				return nil, &ParseError{Path: path, Err: fmt.Errorf("permissions.bors must be a table of repos")}
			}
			for repo, rawACL := range table {
				acl, ok := rawACL.(map[string]any)
				if !ok {
					return nil, &ParseError{Path: path, Err: fmt.Errorf("permissions.bors.%q must be a table", repo)}
				}
				var out BorsACL
				for aclKey, aclVal := range acl {
					b, ok := aclVal.(bool)
					if !ok {
						return nil, &ParseError{Path: path, Err: fmt.Errorf("permissions.bors.%q.%s must be a boolean", repo, aclKey)}
					}
					switch aclKey {
					case "review":
						out.Review = b
					case "try":
						out.Try = b
					default:
						return nil, &ParseError{Path: path, Err: fmt.Errorf("unknown bors grant %q for %q", aclKey, repo)}
					}
				}
				p.Bors[repo] = out
			}
			continue
		}
		b, ok := val.(bool)
		if !ok {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("permission %q must be a boolean", key)}
		}
		p.Bools[key] = b
	}
	return p, nil
}
