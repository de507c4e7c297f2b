package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
openai_api_key: sk-test
cooldown_window: 2s
bots:
  - name: chat
    token: tok-chat
    guild_id: G1
    commands: [ping, help]
    default_persona: chef
  - name: admin
    token: tok-admin
    guild_id: G1
    commands: [settings, toggle]
    model: gpt-4o
    startup_notification: false
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Bots, 2)
	chat, admin := cfg.Bots[0], cfg.Bots[1]
	assert.Equal(t, "chat", chat.Name)
	assert.Equal(t, []string{"ping", "help"}, chat.Commands)
	assert.Equal(t, "chef", chat.DefaultPersona)
	assert.True(t, chat.StartupNotificationEnabled())
	assert.False(t, admin.StartupNotificationEnabled())
	assert.False(t, chat.Legacy)

	// Per-bot model override against the global default.
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "gpt-4o-mini", chat.EffectiveModel(cfg.Model))
	assert.Equal(t, "gpt-4o", admin.EffectiveModel(cfg.Model))

	// Durations parse from strings; unset ones pick defaults.
	assert.Equal(t, 2*time.Second, cfg.CooldownWindow.Std())
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod.Std())
	assert.Equal(t, "persona.db", cfg.DatabasePath)
	assert.Equal(t, 5, cfg.MaxConnectAttempts)
}

func TestLoadInterpolation(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "tok-from-env")

	cfg, err := Load(writeConfig(t, `
openai_api_key: ${TEST_OPENAI_KEY:-sk-default}
database_path: ${TEST_UNSET_PATH:-/tmp/p.db}
bots:
  - name: chat
    token: ${TEST_BOT_TOKEN}
`))
	require.NoError(t, err)
	assert.Equal(t, "tok-from-env", cfg.Bots[0].Token)
	assert.Equal(t, "sk-default", cfg.OpenAIAPIKey)
	assert.Equal(t, "/tmp/p.db", cfg.DatabasePath)
}

func TestLoadMissingVariablesCollected(t *testing.T) {
	_, err := Load(writeConfig(t, `
openai_api_key: ${MISSING_ONE}
bots:
  - name: chat
    token: ${MISSING_TWO}
`))
	require.Error(t, err)
	// Both problems in one pass, not one crash per variable.
	assert.Contains(t, err.Error(), "MISSING_ONE")
	assert.Contains(t, err.Error(), "MISSING_TWO")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
openai_api_key: sk-test
cooldown_window: fast
bots:
  - name: chat
    token: tok
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}

func TestValidateErrors(t *testing.T) {
	base := func() Config {
		c := Config{
			Bots:         []Bot{{Name: "chat", Token: "tok"}},
			OpenAIAPIKey: "sk",
		}
		c.applyDefaults()
		return c
	}

	t.Run("no bots", func(t *testing.T) {
		c := base()
		c.Bots = nil
		assert.ErrorContains(t, c.Validate(), "at least one bot")
	})

	t.Run("missing api key", func(t *testing.T) {
		c := base()
		c.OpenAIAPIKey = ""
		assert.ErrorContains(t, c.Validate(), "openai_api_key")
	})

	t.Run("duplicate names", func(t *testing.T) {
		c := base()
		c.Bots = append(c.Bots, Bot{Name: "chat", Token: "tok2"})
		assert.ErrorContains(t, c.Validate(), "duplicate bot name")
	})

	t.Run("missing token", func(t *testing.T) {
		c := base()
		c.Bots[0].Token = ""
		assert.ErrorContains(t, c.Validate(), "no token")
	})

	t.Run("blank allowlist entry", func(t *testing.T) {
		c := base()
		c.Bots[0].Commands = []string{"ping", "  "}
		assert.ErrorContains(t, c.Validate(), "empty command name")
	})

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}

func TestFromEnvLegacySingleBot(t *testing.T) {
	t.Setenv("PERSONA_BOT_TOKEN", "tok-legacy")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("PERSONA_GUILD_ID", "G9")
	t.Setenv("PERSONA_LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Len(t, cfg.Bots, 1)
	b := cfg.Bots[0]
	assert.Equal(t, "default", b.Name)
	assert.Equal(t, "tok-legacy", b.Token)
	assert.Equal(t, "G9", b.GuildID)
	assert.True(t, b.Legacy)
	assert.True(t, b.Unrestricted())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnvRequiresToken(t *testing.T) {
	t.Setenv("PERSONA_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERSONA_BOT_TOKEN")
}

func TestAutoLoadPrefersExplicitPath(t *testing.T) {
	t.Chdir(t.TempDir()) // make sure no stray persona.yaml is picked up
	t.Setenv("PERSONA_CONFIG", writeConfig(t, validYAML))

	cfg, err := AutoLoad()
	require.NoError(t, err)
	assert.Len(t, cfg.Bots, 2)
}

func TestAutoLoadFallsBackToEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PERSONA_CONFIG", "")
	t.Setenv("PERSONA_BOT_TOKEN", "tok")
	t.Setenv("OPENAI_API_KEY", "sk")

	cfg, err := AutoLoad()
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 1)
	assert.True(t, cfg.Bots[0].Legacy)
}
