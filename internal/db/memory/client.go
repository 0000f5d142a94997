// Package memory is a single-process db.Client for development and tests.
// Its state is lost on restart and is not shared between replicas.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iamwavecut/strikeguard/internal/db"
)

type (
	strikeEntry struct {
		count         int
		lastOffenseAt time.Time
		expiresAt     time.Time
	}

	listKey struct {
		chatID int64
		userID int64
	}
)

type memoryClient struct {
	mu  sync.Mutex
	now func() time.Time

	strikes  *expirable.LRU[string, strikeEntry]
	dedup    *expirable.LRU[string, time.Time]
	settings map[int64]*db.Settings
	lists    map[listKey]db.ListKind
}

// NewMemoryClient bounds strike and dedup entries to capacity each,
// evicting the least recently used ones first.
func NewMemoryClient(capacity int) *memoryClient {
	return &memoryClient{
		now:      time.Now,
		strikes:  expirable.NewLRU[string, strikeEntry](capacity, nil, 0),
		dedup:    expirable.NewLRU[string, time.Time](capacity, nil, 0),
		settings: make(map[int64]*db.Settings),
		lists:    make(map[listKey]db.ListKind),
	}
}

func strikeKey(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

func (c *memoryClient) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (c *memoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strikes.Purge()
	c.dedup.Purge()
	return nil
}

func (c *memoryClient) GetStrikes(ctx context.Context, chatID, userID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strikeKey(chatID, userID)
	entry, ok := c.strikes.Peek(key)
	if !ok {
		return 0, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.strikes.Remove(key)
		return 0, nil
	}
	return entry.count, nil
}

func (c *memoryClient) IncrementStrikes(ctx context.Context, chatID, userID int64, ttl time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := strikeKey(chatID, userID)
	entry, ok := c.strikes.Get(key)
	if !ok || !now.Before(entry.expiresAt) {
		entry = strikeEntry{}
	}
	entry.count++
	entry.lastOffenseAt = now
	entry.expiresAt = now.Add(ttl)
	c.strikes.Add(key, entry)
	return entry.count, nil
}

func (c *memoryClient) ResetStrikes(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strikes.Remove(strikeKey(chatID, userID))
	return nil
}

func (c *memoryClient) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expiresAt, ok := c.dedup.Peek(key); ok && now.Before(expiresAt) {
		return false, nil
	}
	c.dedup.Add(key, now.Add(ttl))
	return true, nil
}

func (c *memoryClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.settingsLocked(chatID)
	copied := *s
	return &copied, nil
}

func (c *memoryClient) ToggleStrictMode(ctx context.Context, chatID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.settingsLocked(chatID)
	s.StrictMode = !s.StrictMode
	s.UpdatedAt = c.now().UTC()
	return s.StrictMode, nil
}

func (c *memoryClient) settingsLocked(chatID int64) *db.Settings {
	s, ok := c.settings[chatID]
	if !ok {
		s = db.DefaultSettings(chatID)
		s.CreatedAt = c.now().UTC()
		s.UpdatedAt = s.CreatedAt
		c.settings[chatID] = s
	}
	return s
}

func (c *memoryClient) SetListEntry(ctx context.Context, chatID, userID int64, kind db.ListKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown list kind %q", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[listKey{chatID, userID}] = kind
	return nil
}

func (c *memoryClient) RemoveListEntry(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, listKey{chatID, userID})
	return nil
}

func (c *memoryClient) GetListEntry(ctx context.Context, chatID, userID int64) (db.ListKind, error) {
	if err := ctx.Err(); err != nil {
		return db.ListNone, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists[listKey{chatID, userID}], nil
}
