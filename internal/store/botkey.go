package store

// BotKey scopes store rows to one bot identity. There are exactly two kinds
// of key: a named key derived from a configured bot, and the legacy key used
// by databases written before multi-bot support existed. Making the legacy
// case a distinct constructor keeps "default" from being a magic string
// scattered across call sites.
type BotKey struct {
	legacy bool
	id     string
}

// KeyFor returns the key for a configured bot identity.
func KeyFor(botID string) BotKey { return BotKey{id: botID} }

// LegacyKey returns the key legacy single-bot databases were written under.
func LegacyKey() BotKey { return BotKey{legacy: true} }

// String returns the column value rows are stored under.
func (k BotKey) String() string {
	if k.legacy {
		return "default"
	}
	return k.id
}

// IsLegacy reports whether this is the pre-multi-bot key.
func (k BotKey) IsLegacy() bool { return k.legacy }
