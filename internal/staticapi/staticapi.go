// Package staticapi emits JSON snapshots of the materialised model: one
// file per team, person, repo and list, plus aggregate indexes. The output
// shape is the compatibility contract consumed by the website collaborator.
package staticapi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/team-sync/internal/model"
)

// Generate writes the snapshot tree under outDir. Existing files are
// overwritten; nothing else in outDir is touched.
func Generate(m *model.Model, outDir string) error {
	teams := map[string]*model.TeamView{}
	for _, name := range m.TeamNames() {
		view := m.TeamView(name)
		teams[name] = view
		if err := writeJSON(filepath.Join(outDir, "teams", name+".json"), view); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(outDir, "teams.json"), teams); err != nil {
		return err
	}

	people := map[string]*model.PersonView{}
	for _, handle := range m.PeopleHandles() {
		view := m.PersonView(handle)
		people[view.GitHub] = view
		if err := writeJSON(filepath.Join(outDir, "people", view.GitHub+".json"), view); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(outDir, "people.json"), people); err != nil {
		return err
	}

	repos := map[string]*model.RepoView{}
	for _, key := range m.RepoNames() {
		r := m.Repo(splitRepoKey(key))
		view := m.RepoView(r.Org, r.Name)
		repos[key] = view
		if err := writeJSON(filepath.Join(outDir, "repos", r.Org, r.Name+".json"), view); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(outDir, "repos.json"), repos); err != nil {
		return err
	}

	lists := map[string]*model.ListView{}
	for _, address := range m.ListAddresses() {
		view := m.ListView(address)
		lists[address] = view
		if err := writeJSON(filepath.Join(outDir, "lists", address+".json"), view); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(outDir, "lists.json"), lists); err != nil {
		return err
	}

	groups := map[string]*model.ZulipGroupView{}
	for _, name := range m.ZulipGroupNames() {
		groups[name] = m.ZulipGroupView(name)
	}
	if err := writeJSON(filepath.Join(outDir, "zulip-groups.json"), groups); err != nil {
		return err
	}
	streams := map[string]*model.ZulipGroupView{}
	for _, name := range m.ZulipStreamNames() {
		streams[name] = m.ZulipStreamView(name)
	}
	return writeJSON(filepath.Join(outDir, "zulip-streams.json"), streams)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func splitRepoKey(key string) (org, name string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
