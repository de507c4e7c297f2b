// Package allowlist statically validates that bots sharing a guild
// namespace never register overlapping command names.
//
// The check runs once at startup, before the first connection attempt, and
// is all-or-nothing: any conflict or missing allowlist anywhere in the
// config stops the process. Validation runs to completion so the operator
// sees every problem in a single pass rather than one crash loop at a time.
package allowlist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/persona-hq/persona/internal/config"
)

// Conflict records two bots in the same guild whose allowlists intersect.
type Conflict struct {
	GuildID  string
	BotA     string
	BotB     string
	Commands []string // every overlapping command name, sorted
}

func (c Conflict) String() string {
	return fmt.Sprintf("guild %s: bots %q and %q both register: %s",
		c.GuildID, c.BotA, c.BotB, strings.Join(c.Commands, ", "))
}

// MissingAllowlist records the degenerate case where one bot in a shared
// guild carries an explicit allowlist and a sibling does not. The
// unrestricted sibling would silently claim the commands the other bot
// intended to own exclusively, so this is a full failure, not a warning.
type MissingAllowlist struct {
	GuildID    string
	BotWith    string // a bot in the guild that has an explicit allowlist
	BotWithout string // the bot that has none
}

func (m MissingAllowlist) String() string {
	return fmt.Sprintf("guild %s: bot %q has no command allowlist while %q restricts its commands; all bots sharing a guild must have explicit allowlists",
		m.GuildID, m.BotWithout, m.BotWith)
}

// Report is the complete validation result.
type Report struct {
	Conflicts []Conflict
	Missing   []MissingAllowlist
}

// OK reports whether the configuration is safe to start.
func (r Report) OK() bool {
	return len(r.Conflicts) == 0 && len(r.Missing) == 0
}

// Err returns nil when the report is clean, or an error carrying the full
// line-itemized diagnostic.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	lines := make([]string, 0, len(r.Missing)+len(r.Conflicts))
	for _, m := range r.Missing {
		lines = append(lines, m.String())
	}
	for _, c := range r.Conflicts {
		lines = append(lines, c.String())
	}
	return fmt.Errorf("allowlist: command allowlist validation failed:\n  - %s",
		strings.Join(lines, "\n  - "))
}

// Validate groups bots by guild and proves no pairwise allowlist overlap.
//
// Bots without a guild ID are global-scope and never participate in overlap
// checks, neither with each other nor with guild-scoped bots. Within a
// guild, either every bot carries an explicit allowlist or none does; mixed
// groups fail with MissingAllowlist before any intersection is computed.
// Pure: no side effects, no I/O.
func Validate(bots []config.Bot) Report {
	byGuild := make(map[string][]config.Bot)
	for _, b := range bots {
		if b.GuildID == "" {
			continue
		}
		byGuild[b.GuildID] = append(byGuild[b.GuildID], b)
	}

	guilds := make([]string, 0, len(byGuild))
	for g := range byGuild {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds) // deterministic diagnostics

	var report Report
	for _, guild := range guilds {
		group := byGuild[guild]
		if len(group) < 2 {
			continue
		}

		var restricted, unrestricted []config.Bot
		for _, b := range group {
			if b.Unrestricted() {
				unrestricted = append(unrestricted, b)
			} else {
				restricted = append(restricted, b)
			}
		}

		// Rule 1: a mixed group fails outright. Rule 2 only makes sense
		// once every list in the group is a concrete set of names.
		if len(restricted) > 0 && len(unrestricted) > 0 {
			for _, b := range unrestricted {
				report.Missing = append(report.Missing, MissingAllowlist{
					GuildID:    guild,
					BotWith:    restricted[0].Name,
					BotWithout: b.Name,
				})
			}
			continue
		}
		if len(restricted) == 0 {
			// All unrestricted: nothing to intersect. Whether two fully
			// unrestricted bots sharing a guild should conflict is an open
			// product question; today it is permitted.
			continue
		}

		for i := 0; i < len(restricted); i++ {
			for j := i + 1; j < len(restricted); j++ {
				overlap := intersect(restricted[i].Commands, restricted[j].Commands)
				if len(overlap) > 0 {
					report.Conflicts = append(report.Conflicts, Conflict{
						GuildID:  guild,
						BotA:     restricted[i].Name,
						BotB:     restricted[j].Name,
						Commands: overlap,
					})
				}
			}
		}
	}
	return report
}

// intersect returns the sorted, de-duplicated set intersection of a and b.
func intersect(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, name := range a {
		inA[name] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, name := range b {
		if inA[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
