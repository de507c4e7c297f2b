package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GuildSetting returns a guild-scoped setting value for this bot.
// Returns ErrNotFound when unset.
func (s *Store) GuildSetting(ctx context.Context, key BotKey, guildID, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM guild_settings WHERE bot_key = ? AND guild_id = ? AND name = ?`,
		key.String(), guildID, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: query guild setting: %w", err)
	}
	return value, nil
}

// SetGuildSetting upserts a guild-scoped setting for this bot.
func (s *Store) SetGuildSetting(ctx context.Context, key BotKey, guildID, name, value string) error {
	_, err := s.write(ctx,
		`INSERT INTO guild_settings (bot_key, guild_id, name, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (bot_key, guild_id, name) DO UPDATE SET value = excluded.value`,
		key.String(), guildID, name, value)
	if err != nil {
		return fmt.Errorf("store: set guild setting: %w", err)
	}
	return nil
}

// BotSetting returns a process-wide setting for this bot.
// Returns ErrNotFound when unset.
func (s *Store) BotSetting(ctx context.Context, key BotKey, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM bot_settings WHERE bot_key = ? AND name = ?`,
		key.String(), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: query bot setting: %w", err)
	}
	return value, nil
}

// SetBotSetting upserts a process-wide setting for this bot.
func (s *Store) SetBotSetting(ctx context.Context, key BotKey, name, value string) error {
	_, err := s.write(ctx,
		`INSERT INTO bot_settings (bot_key, name, value) VALUES (?, ?, ?)
		 ON CONFLICT (bot_key, name) DO UPDATE SET value = excluded.value`,
		key.String(), name, value)
	if err != nil {
		return fmt.Errorf("store: set bot setting: %w", err)
	}
	return nil
}

// FeatureEnabled reads a boolean feature flag for this bot. Absent flags
// default to enabled so a fresh database behaves like the full catalog.
func (s *Store) FeatureEnabled(ctx context.Context, key BotKey, feature string) (bool, error) {
	value, err := s.BotSetting(ctx, key, "feature:"+feature)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return value == "enabled", nil
}

// SetFeatureEnabled writes a boolean feature flag for this bot.
func (s *Store) SetFeatureEnabled(ctx context.Context, key BotKey, feature string, enabled bool) error {
	value := "disabled"
	if enabled {
		value = "enabled"
	}
	return s.SetBotSetting(ctx, key, "feature:"+feature, value)
}
