package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "teamsync.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Src != "." {
		t.Errorf("src = %q", cfg.Src)
	}
	if cfg.Server.Port != 8391 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamsync.yml")
	content := `
src: /srv/team
mailgun:
  domains:
    - example.com
zulip:
  base_url: https://chat.example.org
discord:
  guild_id: "123"
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Src != "/srv/team" {
		t.Errorf("src = %q", cfg.Src)
	}
	if len(cfg.Mailgun.Domains) != 1 || cfg.Mailgun.Domains[0] != "example.com" {
		t.Errorf("domains = %v", cfg.Mailgun.Domains)
	}
	if cfg.Zulip.BaseURL != "https://chat.example.org" {
		t.Errorf("base_url = %q", cfg.Zulip.BaseURL)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TEAMSYNC_SRC", "/elsewhere")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Src != "/elsewhere" {
		t.Errorf("src = %q", cfg.Src)
	}
}

func TestParseServices(t *testing.T) {
	all, err := ParseServices(nil)
	if err != nil || len(all) != len(AllServices) {
		t.Fatalf("ParseServices(nil) = %v, %v", all, err)
	}
	got, err := ParseServices([]string{"github", "Zulip"})
	if err != nil {
		t.Fatalf("ParseServices: %v", err)
	}
	if got[0] != ServiceGitHub || got[1] != ServiceZulip {
		t.Errorf("services = %v", got)
	}
	if _, err := ParseServices([]string{"gitlab"}); err == nil {
		t.Error("unknown service accepted")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamsync.yml")
	cfg := DefaultConfig()
	cfg.Src = "/srv/team"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Src != "/srv/team" {
		t.Errorf("src = %q", loaded.Src)
	}
}
