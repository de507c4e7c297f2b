package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserPersona returns the user's persona override for this bot.
// Returns ErrNotFound when the user has none.
func (s *Store) UserPersona(ctx context.Context, key BotKey, userID string) (string, error) {
	var persona string
	err := s.db.QueryRowContext(ctx,
		`SELECT persona FROM user_personas WHERE bot_key = ? AND user_id = ?`,
		key.String(), userID).Scan(&persona)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: query user persona: %w", err)
	}
	return persona, nil
}

// SetUserPersona upserts the user's persona override for this bot.
func (s *Store) SetUserPersona(ctx context.Context, key BotKey, userID, persona string) error {
	_, err := s.write(ctx,
		`INSERT INTO user_personas (bot_key, user_id, persona) VALUES (?, ?, ?)
		 ON CONFLICT (bot_key, user_id) DO UPDATE SET persona = excluded.persona,
		 updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		key.String(), userID, persona)
	if err != nil {
		return fmt.Errorf("store: set user persona: %w", err)
	}
	return nil
}

// ClearUserPersona removes the user's persona override for this bot.
// Clearing an absent override is not an error.
func (s *Store) ClearUserPersona(ctx context.Context, key BotKey, userID string) error {
	_, err := s.write(ctx,
		`DELETE FROM user_personas WHERE bot_key = ? AND user_id = ?`,
		key.String(), userID)
	if err != nil {
		return fmt.Errorf("store: clear user persona: %w", err)
	}
	return nil
}
