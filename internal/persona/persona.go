// Package persona resolves which system prompt a bot speaks with.
//
// Resolution order: the user's stored override, then the bot's configured
// default, then the built-in fallback. The manager holds no per-request
// state and is shared by every runtime.
package persona

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/persona-hq/persona/internal/store"
)

// Fallback is the persona used when nothing else is configured.
const Fallback = "obi"

// Persona is one selectable voice.
type Persona struct {
	Name   string
	System string
}

// builtins is the closed set of selectable personas.
var builtins = map[string]Persona{
	"obi": {
		Name:   "obi",
		System: "You are a calm, patient mentor. Answer briefly and kindly.",
	},
	"muppet": {
		Name:   "muppet",
		System: "You are an excitable, theatrical character. Keep answers short and silly.",
	},
	"chef": {
		Name:   "chef",
		System: "You are a seasoned chef. Relate answers to cooking where natural.",
	},
	"teacher": {
		Name:   "teacher",
		System: "You are a rigorous teacher. Explain step by step and check understanding.",
	},
	"analyst": {
		Name:   "analyst",
		System: "You are a terse analyst. Lead with the conclusion, then the evidence.",
	},
}

// ErrUnknown is returned when a persona name is not in the built-in set.
var ErrUnknown = errors.New("persona: unknown persona")

// Manager resolves personas against the shared store.
type Manager struct {
	store *store.Store
}

// NewManager returns a Manager backed by s.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Names returns the built-in persona names, sorted.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns a built-in persona by name.
func Lookup(name string) (Persona, error) {
	p, ok := builtins[name]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return p, nil
}

// Resolve picks the persona for one user talking to one bot. botDefault is
// the bot's configured default persona, empty when unconfigured. A stored
// override naming a persona that no longer exists falls through to the next
// layer rather than failing the interaction.
func (m *Manager) Resolve(ctx context.Context, key store.BotKey, userID, botDefault string) (Persona, error) {
	override, err := m.store.UserPersona(ctx, key, userID)
	switch {
	case err == nil:
		if p, ok := builtins[override]; ok {
			return p, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return Persona{}, fmt.Errorf("persona: resolve override: %w", err)
	}

	if p, ok := builtins[botDefault]; ok {
		return p, nil
	}
	return builtins[Fallback], nil
}

// Set stores a user's persona override after validating the name.
func (m *Manager) Set(ctx context.Context, key store.BotKey, userID, name string) error {
	if _, err := Lookup(name); err != nil {
		return err
	}
	return m.store.SetUserPersona(ctx, key, userID, name)
}

// Forget clears a user's persona override.
func (m *Manager) Forget(ctx context.Context, key store.BotKey, userID string) error {
	return m.store.ClearUserPersona(ctx, key, userID)
}
