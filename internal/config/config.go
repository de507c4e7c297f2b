// Package config loads and validates multi-bot configuration.
//
// Configuration comes from a YAML file with ${VAR} environment variable
// interpolation, or from legacy single-bot environment variables when no
// file is present. Loading is strict: a missing interpolation variable or
// a malformed document fails before any bot is started.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Bot is one configured bot identity. Immutable after load.
type Bot struct {
	// Name is the display name used in logs and as the bot key in the
	// store. Must be unique across the config.
	Name string `yaml:"name"`

	// Token is the opaque gateway credential. Never logged.
	Token string `yaml:"token"`

	// GuildID is the optional shared-namespace scope. Bots with the same
	// GuildID are overlap-checked at startup; empty means global scope.
	GuildID string `yaml:"guild_id"`

	// Commands is the allowlist of command names this bot may register.
	// Empty or absent means unrestricted.
	Commands []string `yaml:"commands"`

	// DefaultPersona overrides the built-in default persona for this bot.
	DefaultPersona string `yaml:"default_persona"`

	// Model overrides the process-wide completion model for this bot.
	Model string `yaml:"model"`

	// StartupNotification toggles the first-ready announcement per bot.
	// Nil means enabled.
	StartupNotification *bool `yaml:"startup_notification"`

	// Legacy marks a bot synthesized from single-bot environment variables.
	// Its rows in the store use the legacy key rather than the bot name.
	Legacy bool `yaml:"-"`
}

// EffectiveModel returns the per-bot model override, or the global default.
func (b Bot) EffectiveModel(global string) string {
	if b.Model != "" {
		return b.Model
	}
	return global
}

// Unrestricted reports whether the bot has no explicit command allowlist.
func (b Bot) Unrestricted() bool { return len(b.Commands) == 0 }

// StartupNotificationEnabled reports the per-bot announcement toggle.
func (b Bot) StartupNotificationEnabled() bool {
	return b.StartupNotification == nil || *b.StartupNotification
}

// Config holds all process configuration: the bot list plus the settings
// shared by every runtime.
type Config struct {
	Bots []Bot `yaml:"bots"`

	// OpenAIAPIKey is the shared outbound API credential used by all bots.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// OpenAIBaseURL overrides the API host, e.g. for a proxy. Empty uses
	// the public endpoint.
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// DatabasePath locates the shared SQLite store.
	DatabasePath string `yaml:"database_path"`

	// GatewayURL is the websocket endpoint bots connect to.
	GatewayURL string `yaml:"gateway_url"`

	// Model is the default completion model; bots may override it.
	Model string `yaml:"model"`

	// NotifyChannel receives first-ready announcements. Empty disables them.
	NotifyChannel string `yaml:"notify_channel"`

	LogLevel string `yaml:"log_level"`

	// MaxConnectAttempts bounds each runtime's reconnect budget. This is a
	// supervisor-level policy value so operators can tune it without
	// touching connection code.
	MaxConnectAttempts int `yaml:"max_connect_attempts"`

	// CooldownWindow is the per-(bot, user) interaction throttle.
	CooldownWindow Duration `yaml:"cooldown_window"`

	// ShutdownGracePeriod bounds how long the supervisor waits for runtimes
	// to unwind after a shutdown signal.
	ShutdownGracePeriod Duration `yaml:"shutdown_grace_period"`

	// ReminderPollInterval controls each bot's reminder poller cadence.
	ReminderPollInterval Duration `yaml:"reminder_poll_interval"`

	// OTEL settings.
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Load reads a YAML config file, interpolating ${VAR} and ${VAR:-default}
// references against the environment before parsing.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	interpolated, err := interpolate(string(raw))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AutoLoad resolves the configuration source in priority order: the
// PERSONA_CONFIG path if set, then ./persona.yaml if present, then legacy
// single-bot environment variables.
func AutoLoad() (Config, error) {
	if path := os.Getenv("PERSONA_CONFIG"); path != "" {
		return Load(path)
	}
	if _, err := os.Stat("persona.yaml"); err == nil {
		return Load("persona.yaml")
	}
	return FromEnv()
}

// FromEnv builds a single-bot configuration from legacy environment
// variables. The synthesized bot is marked Legacy so its store rows keep
// the pre-migration key.
func FromEnv() (Config, error) {
	token := os.Getenv("PERSONA_BOT_TOKEN")
	if token == "" {
		return Config{}, fmt.Errorf("config: PERSONA_BOT_TOKEN is required when no config file is present")
	}

	cfg := Config{
		Bots: []Bot{{
			Name:    "default",
			Token:   token,
			GuildID: os.Getenv("PERSONA_GUILD_ID"),
			Legacy:  true,
		}},
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		DatabasePath:  os.Getenv("PERSONA_DATABASE_PATH"),
		GatewayURL:    os.Getenv("PERSONA_GATEWAY_URL"),
		LogLevel:      os.Getenv("PERSONA_LOG_LEVEL"),
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = "persona.db"
	}
	if c.GatewayURL == "" {
		c.GatewayURL = "ws://localhost:8443/gateway"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = 5
	}
	if c.CooldownWindow == 0 {
		c.CooldownWindow = Duration(5 * time.Second)
	}
	if c.ShutdownGracePeriod == 0 {
		c.ShutdownGracePeriod = Duration(10 * time.Second)
	}
	if c.ReminderPollInterval == 0 {
		c.ReminderPollInterval = Duration(30 * time.Second)
	}
	if c.ServiceName == "" {
		c.ServiceName = "persona"
	}
}

// Validate checks structural requirements. Allowlist overlap checking is a
// separate startup gate (internal/allowlist); this only rejects configs the
// gate could not reason about.
func (c Config) Validate() error {
	if len(c.Bots) == 0 {
		return fmt.Errorf("config: at least one bot is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("config: openai_api_key is required")
	}

	seen := make(map[string]bool, len(c.Bots))
	for i, b := range c.Bots {
		if b.Name == "" {
			return fmt.Errorf("config: bot %d has no name", i)
		}
		if b.Token == "" {
			return fmt.Errorf("config: bot %q has no token", b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("config: duplicate bot name %q", b.Name)
		}
		seen[b.Name] = true

		for _, cmd := range b.Commands {
			if strings.TrimSpace(cmd) == "" {
				return fmt.Errorf("config: bot %q has an empty command name in its allowlist", b.Name)
			}
		}
	}

	if c.MaxConnectAttempts < 1 {
		return fmt.Errorf("config: max_connect_attempts must be at least 1")
	}
	if c.CooldownWindow < 0 {
		return fmt.Errorf("config: cooldown_window must not be negative")
	}
	return nil
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// interpolate substitutes environment variable references. All missing
// variables are collected so the operator sees every problem in one pass.
func interpolate(content string) (string, error) {
	var missing []string

	result := envPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name := groups[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		// ${VAR:-default} falls back; a bare ${VAR} is an error.
		if strings.HasPrefix(match, "${"+name+":-") {
			return groups[2]
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}
