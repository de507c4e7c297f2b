package allowlist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persona-hq/persona/internal/config"
)

func TestValidateOverlapConflict(t *testing.T) {
	bots := []config.Bot{
		{Name: "chat", GuildID: "G1", Commands: []string{"ping", "hey"}},
		{Name: "admin", GuildID: "G1", Commands: []string{"ping", "settings"}},
	}

	report := Validate(bots)
	require.False(t, report.OK())
	require.Len(t, report.Conflicts, 1)

	c := report.Conflicts[0]
	assert.Equal(t, "G1", c.GuildID)
	assert.Equal(t, "chat", c.BotA)
	assert.Equal(t, "admin", c.BotB)
	assert.Equal(t, []string{"ping"}, c.Commands)
	assert.Empty(t, report.Missing)
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), `"chat"`)
	assert.Contains(t, report.Err().Error(), "ping")
}

func TestValidateMissingAllowlist(t *testing.T) {
	bots := []config.Bot{
		{Name: "chat", GuildID: "G1", Commands: []string{"ping"}},
		{Name: "admin", GuildID: "G1"},
	}

	report := Validate(bots)
	require.False(t, report.OK())
	require.Len(t, report.Missing, 1)
	assert.Equal(t, "admin", report.Missing[0].BotWithout)
	assert.Equal(t, "chat", report.Missing[0].BotWith)
	// Rule 2 never runs for a mixed group.
	assert.Empty(t, report.Conflicts)
}

func TestValidateDisjointGuildsSucceed(t *testing.T) {
	bots := []config.Bot{
		{Name: "chat", GuildID: "G1", Commands: []string{"ping", "hey"}},
		{Name: "admin", GuildID: "G2", Commands: []string{"ping", "settings"}},
	}

	report := Validate(bots)
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
}

func TestValidateGlobalScopeSkipped(t *testing.T) {
	bots := []config.Bot{
		{Name: "a", Commands: []string{"ping"}},
		{Name: "b", Commands: []string{"ping"}},
		{Name: "c", GuildID: "G1", Commands: []string{"ping"}},
	}

	report := Validate(bots)
	assert.True(t, report.OK())
}

func TestValidateAllUnrestrictedGroupSucceeds(t *testing.T) {
	bots := []config.Bot{
		{Name: "a", GuildID: "G1"},
		{Name: "b", GuildID: "G1"},
	}

	assert.True(t, Validate(bots).OK())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	bots := []config.Bot{
		{Name: "a", GuildID: "G1", Commands: []string{"ping", "remind"}},
		{Name: "b", GuildID: "G1", Commands: []string{"ping", "help"}},
		{Name: "c", GuildID: "G1", Commands: []string{"remind", "help"}},
		{Name: "d", GuildID: "G2", Commands: []string{"status"}},
		{Name: "e", GuildID: "G2"},
	}

	report := Validate(bots)
	require.False(t, report.OK())
	// Every pairwise overlap in G1 plus the missing allowlist in G2.
	assert.Len(t, report.Conflicts, 3)
	require.Len(t, report.Missing, 1)
	assert.Equal(t, "e", report.Missing[0].BotWithout)
}

func TestValidateDeterministicOrder(t *testing.T) {
	bots := []config.Bot{
		{Name: "x", GuildID: "G2", Commands: []string{"ping"}},
		{Name: "y", GuildID: "G2", Commands: []string{"ping"}},
		{Name: "a", GuildID: "G1", Commands: []string{"help"}},
		{Name: "b", GuildID: "G1", Commands: []string{"help"}},
	}

	first := Validate(bots)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Validate(bots))
	}
	require.Len(t, first.Conflicts, 2)
	assert.Equal(t, "G1", first.Conflicts[0].GuildID)
	assert.Equal(t, "G2", first.Conflicts[1].GuildID)
}

// A clean report must mean what it claims: no two restricted bots in any
// guild share a command. Cross-check against a naive recomputation over
// randomized configs.
func TestValidateCleanReportImpliesDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	commands := []string{"ping", "help", "forget", "status", "remind", "toggle"}
	guilds := []string{"", "G1", "G2", "G3"}

	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(5)
		bots := make([]config.Bot, n)
		for i := range bots {
			var cmds []string
			for _, c := range commands {
				if rng.Intn(3) == 0 {
					cmds = append(cmds, c)
				}
			}
			bots[i] = config.Bot{
				Name:     string(rune('a' + i)),
				GuildID:  guilds[rng.Intn(len(guilds))],
				Commands: cmds,
			}
		}

		report := Validate(bots)
		if !report.OK() {
			continue
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				a, b := bots[i], bots[j]
				if a.GuildID == "" || a.GuildID != b.GuildID {
					continue
				}
				if a.Unrestricted() || b.Unrestricted() {
					continue
				}
				assert.Emptyf(t, intersect(a.Commands, b.Commands),
					"trial %d: clean report but bots %q/%q overlap in %s",
					trial, a.Name, b.Name, a.GuildID)
			}
		}
	}
}
