package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/team-sync/internal/model"
)

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	out := map[string]*model.TeamView{}
	for _, name := range s.model.TeamNames() {
		out[name] = s.model.TeamView(name)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	view := s.model.TeamView(chi.URLParam(r, "name"))
	if view == nil {
		s.notFound(w, "team")
		return
	}
	s.writeJSON(w, view)
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	out := map[string]*model.PersonView{}
	for _, handle := range s.model.PeopleHandles() {
		view := s.model.PersonView(handle)
		out[view.GitHub] = view
	}
	s.writeJSON(w, out)
}

func (s *Server) handlePerson(w http.ResponseWriter, r *http.Request) {
	view := s.model.PersonView(chi.URLParam(r, "handle"))
	if view == nil {
		s.notFound(w, "person")
		return
	}
	s.writeJSON(w, view)
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	out := map[string]*model.RepoView{}
	for _, key := range s.model.RepoNames() {
		org, name := splitKey(key)
		out[key] = s.model.RepoView(org, name)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	view := s.model.RepoView(chi.URLParam(r, "org"), chi.URLParam(r, "name"))
	if view == nil {
		s.notFound(w, "repo")
		return
	}
	s.writeJSON(w, view)
}

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	out := map[string]*model.ListView{}
	for _, address := range s.model.ListAddresses() {
		out[address] = s.model.ListView(address)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	view := s.model.ListView(chi.URLParam(r, "address"))
	if view == nil {
		s.notFound(w, "list")
		return
	}
	s.writeJSON(w, view)
}

func (s *Server) handleZulipGroups(w http.ResponseWriter, r *http.Request) {
	out := map[string]*model.ZulipGroupView{}
	for _, name := range s.model.ZulipGroupNames() {
		out[name] = s.model.ZulipGroupView(name)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleZulipStreams(w http.ResponseWriter, r *http.Request) {
	out := map[string]*model.ZulipGroupView{}
	for _, name := range s.model.ZulipStreamNames() {
		out[name] = s.model.ZulipStreamView(name)
	}
	s.writeJSON(w, out)
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
