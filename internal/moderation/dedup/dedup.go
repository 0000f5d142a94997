package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/iamwavecut/strikeguard/internal/config"
	"github.com/iamwavecut/strikeguard/internal/db"
	"github.com/iamwavecut/strikeguard/internal/moderation/features"
)

// Fingerprint is the hex murmur3 hash of the normalized content, so case,
// spacing, zero-width characters and URL spelling variants map onto one value.
func Fingerprint(content string) string {
	canonical := features.CanonicalizeLinks(features.Fold(content))
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(canonical)))
}

func Key(scope string, chatID, userID int64, fingerprint string) string {
	if scope == config.DedupScopeUser {
		return fmt.Sprintf("%d:%d:%s", chatID, userID, fingerprint)
	}
	return fmt.Sprintf("%d:%s", chatID, fingerprint)
}

// Cache gives at-most-once semantics per key within the ttl window.
type Cache struct {
	store db.DedupStore
}

// New accepts a nil store, in which case every check proceeds.
func New(store db.DedupStore) *Cache {
	return &Cache{store: store}
}

// CheckAndMark reports true when this is the first sighting of the content.
func (c *Cache) CheckAndMark(ctx context.Context, scope string, chatID, userID int64, fingerprint string, ttl time.Duration) (bool, error) {
	if c == nil || c.store == nil {
		return true, nil
	}
	return c.store.MarkProcessed(ctx, Key(scope, chatID, userID, fingerprint), ttl)
}
