package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/strikeguard/internal/db/memory"
)

func TestRecordOffenseCountsUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := New(memory.NewMemoryClient(100))

	for want := 1; want <= 3; want++ {
		got, err := l.RecordOffense(ctx, -100, 1, time.Hour)
		if err != nil {
			t.Fatalf("record offense: %v", err)
		}
		if got != want {
			t.Fatalf("offense #%d returned count %d", want, got)
		}
	}

	active, err := l.ActiveCount(ctx, -100, 1)
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if active != 3 {
		t.Fatalf("expected 3 active strikes, got %d", active)
	}

	if err := l.Reset(ctx, -100, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if active, _ := l.ActiveCount(ctx, -100, 1); active != 0 {
		t.Fatalf("expected reset to clear strikes, got %d", active)
	}
}

func TestRecordOffenseIsAtomicUnderContention(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := New(memory.NewMemoryClient(100))

	const offenses = 50
	seen := make(map[int]bool, offenses)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < offenses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, err := l.RecordOffense(ctx, -100, 1, time.Hour)
			if err != nil {
				t.Errorf("record offense: %v", err)
				return
			}
			mu.Lock()
			seen[count] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i := 1; i <= offenses; i++ {
		if !seen[i] {
			t.Fatalf("count %d was never observed, increments were lost or duplicated", i)
		}
	}
}
