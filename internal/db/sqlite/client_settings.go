package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/strikeguard/internal/db"
)

type settingsRow struct {
	ID         int64 `db:"id"`
	StrictMode bool  `db:"strict_mode"`
	CreatedAt  int64 `db:"created_at"`
	UpdatedAt  int64 `db:"updated_at"`
}

// GetSettings returns the chat settings, creating the default row on first access.
func (c *sqliteClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.nowMillis()
	if _, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chats (id, strict_mode, created_at, updated_at)
		VALUES (?, 0, ?, ?)
	`, chatID, now, now); err != nil {
		return nil, fmt.Errorf("failed to init settings for %d: %w", chatID, err)
	}

	row := settingsRow{}
	if err := c.db.GetContext(ctx, &row, `SELECT id, strict_mode, created_at, updated_at FROM chats WHERE id = ?`, chatID); err != nil {
		return nil, fmt.Errorf("failed to get settings for %d: %w", chatID, err)
	}
	return &db.Settings{
		ID:         row.ID,
		StrictMode: row.StrictMode,
		CreatedAt:  time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(row.UpdatedAt).UTC(),
	}, nil
}

// ToggleStrictMode flips the flag in one statement and returns the new value.
func (c *sqliteClient) ToggleStrictMode(ctx context.Context, chatID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.nowMillis()
	query := `
		INSERT INTO chats (id, strict_mode, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		strict_mode = 1 - chats.strict_mode,
		updated_at = excluded.updated_at
		RETURNING strict_mode
	`
	var strict bool
	if err := c.db.GetContext(ctx, &strict, query, chatID, now, now); err != nil {
		return false, fmt.Errorf("failed to toggle strict mode for %d: %w", chatID, err)
	}
	return strict, nil
}
