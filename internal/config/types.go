package config

// ServiceName identifies one reconcilable remote service.
type ServiceName string

const (
	ServiceGitHub  ServiceName = "github"
	ServiceMailgun ServiceName = "mailgun"
	ServiceZulip   ServiceName = "zulip"
	ServiceDiscord ServiceName = "discord"
)

// AllServices is the default --services set, in reconciliation order.
var AllServices = []ServiceName{ServiceGitHub, ServiceMailgun, ServiceZulip, ServiceDiscord}

// Config is the top-level teamsync configuration, corresponding to
// teamsync.yml. Credentials never live here; they come from the
// environment.
type Config struct {
	// Src is the corpus directory (people/, teams/, repos/).
	Src string `yaml:"src" koanf:"src"`

	Mailgun MailgunConfig `yaml:"mailgun" koanf:"mailgun"`
	Zulip   ZulipConfig   `yaml:"zulip" koanf:"zulip"`
	Discord DiscordConfig `yaml:"discord" koanf:"discord"`
	Server  ServerConfig  `yaml:"server" koanf:"server"`
}

// MailgunConfig scopes the mail adapter to the domains it owns.
type MailgunConfig struct {
	Domains []string `yaml:"domains" koanf:"domains"`
}

// ZulipConfig points the chat adapter at one site.
type ZulipConfig struct {
	BaseURL string `yaml:"base_url" koanf:"base_url"`
}

// DiscordConfig points the role adapter at one guild.
type DiscordConfig struct {
	GuildID string `yaml:"guild_id" koanf:"guild_id"`
}

// ServerConfig holds the read-only API server settings.
type ServerConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all" koanf:"allow_all"`
}
