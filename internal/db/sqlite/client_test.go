package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/strikeguard/internal/db/dbtest"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSQLiteClient(t *testing.T) {
	t.Parallel()

	dbtest.RunClientSuite(t, func(t *testing.T) dbtest.Harness {
		client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
		if err != nil {
			t.Fatalf("new sqlite client: %v", err)
		}
		t.Cleanup(func() { _ = client.Close() })

		clock := &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
		client.now = clock.Now
		return dbtest.Harness{Client: client, Advance: clock.Advance}
	})
}
