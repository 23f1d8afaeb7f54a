package discord

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/corpus"
	"github.com/ziadkadry99/team-sync/internal/model"
)

type fakeGuild struct {
	roles map[string]*Role
}

func (f *fakeGuild) Roles(ctx context.Context) (map[string]*Role, error) { return f.roles, nil }

func (f *fakeGuild) CreateRole(ctx context.Context, name string, color int) error {
	f.roles[name] = &Role{ID: name + "-id", Name: name, Color: color}
	return nil
}

func (f *fakeGuild) EditRole(ctx context.Context, id, name string, color int) error {
	for _, r := range f.roles {
		if r.ID == id {
			r.Name = name
			r.Color = color
		}
	}
	return nil
}

func roleModel(t *testing.T) *model.Model {
	t.Helper()
	c := &corpus.Corpus{
		People: map[string]*corpus.Person{},
		Teams: map[string]*corpus.Team{
			"lang": {
				Name: "lang", Kind: corpus.KindTeam,
				Alumni:       []string{},
				DiscordRoles: []corpus.DiscordRoleConfig{{Name: "lang", Color: "#ff0000"}},
			},
		},
		Repos: map[string]*corpus.Repo{},
	}
	return model.New(c)
}

func testAdapter(f *fakeGuild) *Adapter {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Adapter{
		Log:     log,
		GuildID: "g1",
		Factory: func(token string) (Read, Write, error) {
			return f, f, nil
		},
		TokenLookup: func(string) string { return "bot-token" },
	}
}

func TestParseColor(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
		ok   bool
	}{
		{"#ff0000", 0xff0000, true},
		{"00ff00", 0x00ff00, true},
		{"red", 0, false},
		{"#ff00", 0, false},
	} {
		got, err := ParseColor(tc.in)
		if tc.ok != (err == nil) || got != tc.want {
			t.Errorf("ParseColor(%q) = %d, %v", tc.in, got, err)
		}
	}
}

func TestRoleCreateAndRecolor(t *testing.T) {
	f := &fakeGuild{roles: map[string]*Role{}}
	plan, err := testAdapter(f).Plan(context.Background(), roleModel(t))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 1 || !strings.Contains(plan.Ops[0].Desc, "create role lang") {
		t.Fatalf("unexpected plan: %+v", plan.Ops)
	}
	if err := plan.Ops[0].Run(context.Background()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	f.roles["lang"].Color = 0x0000ff
	plan, err = testAdapter(f).Plan(context.Background(), roleModel(t))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Ops) != 1 || !strings.Contains(plan.Ops[0].Desc, "recolor role lang") {
		t.Fatalf("unexpected plan: %+v", plan.Ops)
	}
	if err := plan.Ops[0].Run(context.Background()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.roles["lang"].Color != 0xff0000 {
		t.Errorf("color = %#x", f.roles["lang"].Color)
	}

	plan, err = testAdapter(f).Plan(context.Background(), roleModel(t))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Empty() {
		t.Fatal("re-plan not empty")
	}
}

func TestUndeclaredRolesUntouched(t *testing.T) {
	f := &fakeGuild{roles: map[string]*Role{
		"lang":      {ID: "1", Name: "lang", Color: 0xff0000},
		"moderator": {ID: "2", Name: "moderator", Color: 0x123456},
	}}
	plan, err := testAdapter(f).Plan(context.Background(), roleModel(t))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, op := range plan.Ops {
		if strings.Contains(op.Desc, "moderator") {
			t.Fatalf("plan touches undeclared role: %s", op.Desc)
		}
	}
}
