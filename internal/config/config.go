package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfig returns the built-in defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Src: ".",
		Server: ServerConfig{
			Port: 8391,
		},
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (TEAMSYNC_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// TEAMSYNC_MAILGUN_DOMAINS -> mailgun.domains, etc.
	if err := k.Load(env.Provider("TEAMSYNC_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "TEAMSYNC_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validServices is the set of recognized service values.
var validServices = map[ServiceName]bool{
	ServiceGitHub:  true,
	ServiceMailgun: true,
	ServiceZulip:   true,
	ServiceDiscord: true,
}

// ParseServices validates a --services list; an empty list means all.
func ParseServices(names []string) ([]ServiceName, error) {
	if len(names) == 0 {
		return AllServices, nil
	}
	var out []ServiceName
	for _, name := range names {
		svc := ServiceName(strings.ToLower(strings.TrimSpace(name)))
		if !validServices[svc] {
			return nil, fmt.Errorf("unknown service %q: must be one of github, mailgun, zulip, discord", name)
		}
		out = append(out, svc)
	}
	return out, nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Src == "" {
		return fmt.Errorf("src is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	return nil
}
