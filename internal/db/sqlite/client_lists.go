package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamwavecut/strikeguard/internal/db"
)

func (c *sqliteClient) SetListEntry(ctx context.Context, chatID, userID int64, kind db.ListKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown list kind %q", kind)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO chat_lists (chat_id, user_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
		kind = excluded.kind
	`
	if _, err := c.db.ExecContext(ctx, query, chatID, userID, string(kind), c.nowMillis()); err != nil {
		return fmt.Errorf("failed to set list entry for %d/%d: %w", chatID, userID, err)
	}
	return nil
}

func (c *sqliteClient) RemoveListEntry(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM chat_lists WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
		return fmt.Errorf("failed to remove list entry for %d/%d: %w", chatID, userID, err)
	}
	return nil
}

func (c *sqliteClient) GetListEntry(ctx context.Context, chatID, userID int64) (db.ListKind, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var kind string
	err := c.db.GetContext(ctx, &kind, `SELECT kind FROM chat_lists WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.ListNone, nil
		}
		return db.ListNone, fmt.Errorf("failed to get list entry for %d/%d: %w", chatID, userID, err)
	}
	return db.ListKind(kind), nil
}
