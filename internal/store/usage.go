package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// LogUsage records one completion exchange for later accounting.
func (s *Store) LogUsage(ctx context.Context, key BotKey, userID, model string, promptChars, replyChars int) error {
	_, err := s.write(ctx,
		`INSERT INTO usage_log (id, bot_key, user_id, model, prompt_chars, reply_chars)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), key.String(), userID, model, promptChars, replyChars)
	if err != nil {
		return fmt.Errorf("store: log usage: %w", err)
	}
	return nil
}

// UsageCount returns how many exchanges have been logged for this bot.
func (s *Store) UsageCount(ctx context.Context, key BotKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_log WHERE bot_key = ?`, key.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count usage: %w", err)
	}
	return n, nil
}
