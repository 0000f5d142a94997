package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// MarkProcessed inserts the key or revives an expired one. The conflicting
// update only fires for an expired row, so RETURNING yields nothing for a live duplicate.
func (c *sqliteClient) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.nowMillis()
	query := `
		INSERT INTO dedup (dedup_key, expires_at)
		VALUES (?, ?)
		ON CONFLICT(dedup_key) DO UPDATE SET
		expires_at = excluded.expires_at
		WHERE dedup.expires_at <= ?
		RETURNING dedup_key
	`
	var stored string
	err := c.db.GetContext(ctx, &stored, query, key, now+ttl.Milliseconds(), now)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to mark %s processed: %w", key, err)
	}

	if c.dedupWrites.Add(1)%purgeEvery == 0 {
		if res, err := c.db.ExecContext(ctx, `DELETE FROM dedup WHERE expires_at <= ?`, now); err != nil {
			log.WithField("object", "SQLiteClient").WithError(err).Warn("cant purge expired dedup keys")
		} else if n, _ := res.RowsAffected(); n > 0 {
			log.WithField("object", "SQLiteClient").WithField("purged", n).Debug("purged expired dedup keys")
		}
	}
	return true, nil
}
