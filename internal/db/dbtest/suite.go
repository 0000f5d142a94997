// Package dbtest holds behaviour checks shared by every db.Client backend.
package dbtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/strikeguard/internal/db"
)

type Harness struct {
	Client db.Client
	// Advance moves the backend clock forward. Nil when the backend runs on wall time.
	Advance func(d time.Duration)
}

func RunClientSuite(t *testing.T, newHarness func(t *testing.T) Harness) {
	tests := map[string]func(t *testing.T, h Harness){
		"StrikesIncrement":           testStrikesIncrement,
		"StrikesExpire":              testStrikesExpire,
		"StrikesTTLRefreshes":        testStrikesTTLRefreshes,
		"StrikesReset":               testStrikesReset,
		"StrikesConcurrentIncrement": testStrikesConcurrentIncrement,
		"DedupFirstWins":             testDedupFirstWins,
		"DedupExpires":               testDedupExpires,
		"DedupConcurrentMark":        testDedupConcurrentMark,
		"SettingsToggle":             testSettingsToggle,
		"Lists":                      testLists,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			fn(t, h)
		})
	}
}

func testStrikesIncrement(t *testing.T, h Harness) {
	ctx := context.Background()
	assert := assert.New(t)

	count, err := h.Client.GetStrikes(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(0, count)

	for want := 1; want <= 3; want++ {
		got, err := h.Client.IncrementStrikes(ctx, -100, 1, time.Hour)
		require.NoError(t, err)
		assert.Equal(want, got)
	}

	count, err = h.Client.GetStrikes(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(3, count)

	other, err := h.Client.GetStrikes(ctx, -100, 2)
	require.NoError(t, err)
	assert.Equal(0, other)
	otherChat, err := h.Client.GetStrikes(ctx, -200, 1)
	require.NoError(t, err)
	assert.Equal(0, otherChat)
}

func testStrikesExpire(t *testing.T, h Harness) {
	if h.Advance == nil {
		t.Skip("backend clock cannot be advanced")
	}
	ctx := context.Background()

	_, err := h.Client.IncrementStrikes(ctx, -100, 1, 10*time.Minute)
	require.NoError(t, err)
	_, err = h.Client.IncrementStrikes(ctx, -100, 1, 10*time.Minute)
	require.NoError(t, err)

	h.Advance(10*time.Minute + time.Second)

	count, err := h.Client.GetStrikes(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "expired record must read as absent")

	count, err = h.Client.IncrementStrikes(ctx, -100, 1, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "expired record must restart from one")
}

func testStrikesTTLRefreshes(t *testing.T, h Harness) {
	if h.Advance == nil {
		t.Skip("backend clock cannot be advanced")
	}
	ctx := context.Background()

	_, err := h.Client.IncrementStrikes(ctx, -100, 1, 10*time.Minute)
	require.NoError(t, err)
	h.Advance(8 * time.Minute)
	_, err = h.Client.IncrementStrikes(ctx, -100, 1, 10*time.Minute)
	require.NoError(t, err)
	h.Advance(8 * time.Minute)

	count, err := h.Client.GetStrikes(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "ttl must be anchored on the latest offense")
}

func testStrikesReset(t *testing.T, h Harness) {
	ctx := context.Background()

	_, err := h.Client.IncrementStrikes(ctx, -100, 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.Client.ResetStrikes(ctx, -100, 1))
	require.NoError(t, h.Client.ResetStrikes(ctx, -100, 42))

	count, err := h.Client.GetStrikes(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = h.Client.IncrementStrikes(ctx, -100, 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testStrikesConcurrentIncrement(t *testing.T, h Harness) {
	ctx := context.Background()
	const workers = 32

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, err := h.Client.IncrementStrikes(ctx, -100, 7, time.Hour)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, count)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Ints(results)
	for i, got := range results {
		assert.Equal(t, i+1, got, "every increment must observe a distinct count")
	}

	count, err := h.Client.GetStrikes(ctx, -100, 7)
	require.NoError(t, err)
	assert.Equal(t, workers, count)
}

func testDedupFirstWins(t *testing.T, h Harness) {
	ctx := context.Background()

	first, err := h.Client.MarkProcessed(ctx, "chat:-100:abc", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := h.Client.MarkProcessed(ctx, "chat:-100:abc", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := h.Client.MarkProcessed(ctx, "chat:-100:def", time.Hour)
	require.NoError(t, err)
	assert.True(t, other)
}

func testDedupExpires(t *testing.T, h Harness) {
	if h.Advance == nil {
		t.Skip("backend clock cannot be advanced")
	}
	ctx := context.Background()

	first, err := h.Client.MarkProcessed(ctx, "chat:-100:abc", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	h.Advance(5 * time.Minute)
	dup, err := h.Client.MarkProcessed(ctx, "chat:-100:abc", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, dup, "duplicate must not extend or reset the window")

	h.Advance(5*time.Minute + time.Second)
	again, err := h.Client.MarkProcessed(ctx, "chat:-100:abc", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func testDedupConcurrentMark(t *testing.T, h Harness) {
	ctx := context.Background()
	const workers = 32

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
		errs   []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := h.Client.MarkProcessed(ctx, "chat:-100:race", time.Hour)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if first {
				firsts++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, firsts)
}

func testSettingsToggle(t *testing.T, h Harness) {
	ctx := context.Background()

	settings, err := h.Client.GetSettings(ctx, -100)
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, int64(-100), settings.ID)
	assert.False(t, settings.StrictMode)

	for i, want := range []bool{true, false, true} {
		got, err := h.Client.ToggleStrictMode(ctx, -100)
		require.NoError(t, err)
		assert.Equal(t, want, got, fmt.Sprintf("toggle #%d", i+1))
	}

	settings, err = h.Client.GetSettings(ctx, -100)
	require.NoError(t, err)
	assert.True(t, settings.StrictMode)

	fresh, err := h.Client.ToggleStrictMode(ctx, -300)
	require.NoError(t, err)
	assert.True(t, fresh, "first toggle on an unknown chat enables strict mode")
}

func testLists(t *testing.T, h Harness) {
	ctx := context.Background()

	kind, err := h.Client.GetListEntry(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, db.ListNone, kind)

	require.NoError(t, h.Client.SetListEntry(ctx, -100, 1, db.ListAllow))
	kind, err = h.Client.GetListEntry(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, db.ListAllow, kind)

	require.NoError(t, h.Client.SetListEntry(ctx, -100, 1, db.ListDeny))
	kind, err = h.Client.GetListEntry(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, db.ListDeny, kind)

	kind, err = h.Client.GetListEntry(ctx, -200, 1)
	require.NoError(t, err)
	assert.Equal(t, db.ListNone, kind, "lists are per chat")

	require.NoError(t, h.Client.RemoveListEntry(ctx, -100, 1))
	kind, err = h.Client.GetListEntry(ctx, -100, 1)
	require.NoError(t, err)
	assert.Equal(t, db.ListNone, kind)

	assert.Error(t, h.Client.SetListEntry(ctx, -100, 1, db.ListKind("maybe")))
}
