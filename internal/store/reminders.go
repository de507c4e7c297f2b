package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reminder is a scheduled message owned by one bot.
type Reminder struct {
	ID        string
	BotKey    string
	UserID    string
	ChannelID string
	Message   string
	DueAt     time.Time
}

// AddReminder schedules a reminder for this bot and returns its ID.
func (s *Store) AddReminder(ctx context.Context, key BotKey, userID, channelID, message string, dueAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.write(ctx,
		`INSERT INTO reminders (id, bot_key, user_id, channel_id, message, due_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, key.String(), userID, channelID, message, dueAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store: add reminder: %w", err)
	}
	return id, nil
}

// DueReminders returns this bot's incomplete reminders due at or before now,
// oldest first. Other bots' reminders are never returned.
func (s *Store) DueReminders(ctx context.Context, key BotKey, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_key, user_id, channel_id, message, due_at
		 FROM reminders
		 WHERE bot_key = ? AND completed = 0 AND due_at <= ?
		 ORDER BY due_at`,
		key.String(), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store: query due reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		var due string
		if err := rows.Scan(&r.ID, &r.BotKey, &r.UserID, &r.ChannelID, &r.Message, &due); err != nil {
			return nil, fmt.Errorf("store: scan reminder: %w", err)
		}
		r.DueAt, err = time.Parse(time.RFC3339Nano, due)
		if err != nil {
			return nil, fmt.Errorf("store: parse reminder due_at: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate reminders: %w", err)
	}
	return out, nil
}

// CompleteReminder marks a reminder delivered. Only this bot's reminders are
// affected; completing another bot's reminder silently does nothing.
func (s *Store) CompleteReminder(ctx context.Context, key BotKey, id string) error {
	_, err := s.write(ctx,
		`UPDATE reminders SET completed = 1 WHERE bot_key = ? AND id = ?`,
		key.String(), id)
	if err != nil {
		return fmt.Errorf("store: complete reminder: %w", err)
	}
	return nil
}

// DeleteReminder removes a reminder. Returns false when the ID does not
// exist under this bot's key, so one bot can never delete another's rows.
func (s *Store) DeleteReminder(ctx context.Context, key BotKey, id string) (bool, error) {
	res, err := s.write(ctx,
		`DELETE FROM reminders WHERE bot_key = ? AND id = ?`,
		key.String(), id)
	if err != nil {
		return false, fmt.Errorf("store: delete reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete reminder rows affected: %w", err)
	}
	return n > 0, nil
}

// UserReminders returns a user's incomplete reminders under this bot,
// soonest first.
func (s *Store) UserReminders(ctx context.Context, key BotKey, userID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_key, user_id, channel_id, message, due_at
		 FROM reminders
		 WHERE bot_key = ? AND user_id = ? AND completed = 0
		 ORDER BY due_at`,
		key.String(), userID)
	if err != nil {
		return nil, fmt.Errorf("store: query user reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		var due string
		if err := rows.Scan(&r.ID, &r.BotKey, &r.UserID, &r.ChannelID, &r.Message, &due); err != nil {
			return nil, fmt.Errorf("store: scan reminder: %w", err)
		}
		r.DueAt, err = time.Parse(time.RFC3339Nano, due)
		if err != nil {
			return nil, fmt.Errorf("store: parse reminder due_at: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate reminders: %w", err)
	}
	return out, nil
}
