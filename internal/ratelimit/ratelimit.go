// Package ratelimit provides a pluggable rate limiting interface.
//
// The supervisor ships an in-memory cooldown limiter keyed by bot identity
// and user. Other deployments can substitute a shared implementation — the
// Limiter interface is the contract.
package ratelimit

import "context"

// Limiter decides whether an interaction identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the interaction should proceed.
	// The key is opaque — callers construct it (see KeyFor).
	// Returning an error signals a limiter malfunction; callers should
	// treat errors as fail-open (permit the interaction) rather than
	// blocking traffic.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every interaction. Used when the cooldown window is zero.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// KeyFor builds the limiter key for one user interacting with one bot.
// Scoping by bot identity keeps every bot's throttle independent: the same
// user talking to two bots consumes two budgets.
func KeyFor(botID, userID string) string {
	return botID + ":" + userID
}
