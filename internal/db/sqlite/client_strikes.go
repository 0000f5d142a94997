package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (c *sqliteClient) GetStrikes(ctx context.Context, chatID, userID int64) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT count FROM strikes
		WHERE chat_id = ? AND user_id = ? AND expires_at > ?
	`, chatID, userID, c.nowMillis())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get strikes for %d/%d: %w", chatID, userID, err)
	}
	return count, nil
}

// IncrementStrikes creates the record at 1 or bumps it in one statement.
// An expired record restarts from 1.
func (c *sqliteClient) IncrementStrikes(ctx context.Context, chatID, userID int64, ttl time.Duration) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.nowMillis()
	query := `
		INSERT INTO strikes (chat_id, user_id, count, last_offense_at, expires_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
		count = CASE WHEN strikes.expires_at <= excluded.last_offense_at THEN 1 ELSE strikes.count + 1 END,
		last_offense_at = excluded.last_offense_at,
		expires_at = excluded.expires_at
		RETURNING count
	`
	var count int
	if err := c.db.GetContext(ctx, &count, query, chatID, userID, now, now+ttl.Milliseconds()); err != nil {
		return 0, fmt.Errorf("failed to increment strikes for %d/%d: %w", chatID, userID, err)
	}
	return count, nil
}

func (c *sqliteClient) ResetStrikes(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM strikes WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
		return fmt.Errorf("failed to reset strikes for %d/%d: %w", chatID, userID, err)
	}
	return nil
}
