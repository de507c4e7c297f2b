// Package registry bundles the resources every bot runtime shares.
//
// The registry is built once from validated config and passed by reference
// into each runtime. It also owns the per-bot first-ready state, so "has
// this bot announced itself yet" lives in one obvious place instead of a
// package-level flag.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/persona-hq/persona/internal/config"
	"github.com/persona-hq/persona/internal/openai"
	"github.com/persona-hq/persona/internal/persona"
	"github.com/persona-hq/persona/internal/ratelimit"
	"github.com/persona-hq/persona/internal/store"
)

// Registry is the shared resource set. Fields are exported so tests can
// assemble a registry from fakes without going through New.
type Registry struct {
	Store    *store.Store
	Personas *persona.Manager
	OpenAI   *openai.Client
	Limiter  ratelimit.Limiter

	logger *slog.Logger

	mu       sync.Mutex
	notified map[string]bool
}

// New builds the registry from config. The caller owns Close.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Registry, error) {
	s, err := store.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.CooldownWindow > 0 {
		limiter = ratelimit.NewCooldownLimiter(cfg.CooldownWindow.Std())
	}

	return &Registry{
		Store:    s,
		Personas: persona.NewManager(s),
		OpenAI:   openai.New(cfg.OpenAIAPIKey, cfg.Model).WithBaseURL(cfg.OpenAIBaseURL),
		Limiter:  limiter,
		logger:   logger,
		notified: make(map[string]bool),
	}, nil
}

// FirstReady reports whether this is the bot's first successful connection
// in this process, and marks it. Reconnects return false.
func (r *Registry) FirstReady(botID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.notified == nil {
		r.notified = make(map[string]bool)
	}
	if r.notified[botID] {
		return false
	}
	r.notified[botID] = true
	return true
}

// ClearReady forgets the first-ready mark, so an announcement that could not
// be delivered is retried on the bot's next connection.
func (r *Registry) ClearReady(botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notified, botID)
}

// Close releases the registry's resources.
func (r *Registry) Close() error {
	var errs []error
	if r.Limiter != nil {
		if err := r.Limiter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
