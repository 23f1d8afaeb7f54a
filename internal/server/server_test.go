package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/corpus"
	"github.com/ziadkadry99/team-sync/internal/model"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	c := &corpus.Corpus{
		People: map[string]*corpus.Person{
			"alice": {GitHub: "alice", GitHubID: 1, Email: "alice@example.com", EmailSet: true},
		},
		Teams: map[string]*corpus.Team{
			"lang": {
				Name: "lang", Kind: corpus.KindTeam,
				Leads:   []string{"alice"},
				Members: []corpus.TeamMember{{GitHub: "alice"}},
				Alumni:  []string{},
				Lists:   []corpus.ListConfig{{Address: "lang@example.com"}},
			},
		},
		Repos: map[string]*corpus.Repo{
			"acme/widget": {
				Org: "acme", Name: "widget", Description: "The widget",
				TeamAccess:       map[string]corpus.RepoRole{"lang": corpus.RoleWrite},
				IndividualAccess: map[string]corpus.RepoRole{},
			},
		},
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(Config{Port: 0}, log, model.New(c))
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestGetTeam(t *testing.T) {
	s := testServer(t)
	rec := get(t, s, "/v1/teams/lang")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view model.TeamView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if view.Name != "lang" || len(view.Members) != 1 || !view.Members[0].IsLead {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestGetUnknownTeamIs404(t *testing.T) {
	if rec := get(t, testServer(t), "/v1/teams/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetPersonOmitsProvenance(t *testing.T) {
	rec := get(t, testServer(t), "/v1/people/Alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if raw["github"] != "alice" {
		t.Errorf("github = %v", raw["github"])
	}
	if _, ok := raw["SourcePath"]; ok {
		t.Error("internal provenance leaked into the API")
	}
}

func TestGetRepoAndList(t *testing.T) {
	s := testServer(t)
	if rec := get(t, s, "/v1/repos/acme/widget"); rec.Code != http.StatusOK {
		t.Fatalf("repo status = %d", rec.Code)
	}
	rec := get(t, s, "/v1/lists/lang@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var view model.ListView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(view.Members) != 1 || view.Members[0] != "alice@example.com" {
		t.Errorf("list members = %v", view.Members)
	}
}

func TestHealthz(t *testing.T) {
	if rec := get(t, testServer(t), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
