package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
)

type checkerFunc func(ctx context.Context, chatID, userID int64) (bool, error)

func (f checkerFunc) IsAdminOrOwner(ctx context.Context, chatID, userID int64) (bool, error) {
	return f(ctx, chatID, userID)
}

func TestIsPrivileged(t *testing.T) {
	t.Parallel()

	admins := map[int64]bool{1: true}
	g := New(checkerFunc(func(_ context.Context, _ int64, userID int64) (bool, error) {
		return admins[userID], nil
	}), time.Second)

	ok, err := g.IsPrivileged(context.Background(), -100, 1)
	if err != nil || !ok {
		t.Fatalf("admin: got %v, %v", ok, err)
	}
	ok, err = g.IsPrivileged(context.Background(), -100, 2)
	if err != nil || ok {
		t.Fatalf("member: got %v, %v", ok, err)
	}
}

func TestIsPrivilegedFailsClosedOnError(t *testing.T) {
	t.Parallel()

	g := New(checkerFunc(func(context.Context, int64, int64) (bool, error) {
		return false, errors.New("Bad Request: chat not found")
	}), time.Second)

	ok, err := g.IsPrivileged(context.Background(), -100, 2)
	if !ok {
		t.Fatalf("guard must fail closed")
	}
	if !errors.Is(err, sgerrors.ErrGuardUnavailable) {
		t.Fatalf("expected ErrGuardUnavailable, got %v", err)
	}
}

func TestIsPrivilegedFailsClosedOnTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	g := New(checkerFunc(func(context.Context, int64, int64) (bool, error) {
		<-release
		return false, nil
	}), 20*time.Millisecond)

	start := time.Now()
	ok, err := g.IsPrivileged(context.Background(), -100, 2)
	if !ok || !errors.Is(err, sgerrors.ErrGuardUnavailable) {
		t.Fatalf("timeout must fail closed, got %v, %v", ok, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("guard did not honour its timeout: %v", elapsed)
	}
}

func TestIsPrivilegedWithoutChecker(t *testing.T) {
	t.Parallel()

	ok, err := New(nil, time.Second).IsPrivileged(context.Background(), -100, 2)
	if !ok || !errors.Is(err, sgerrors.ErrGuardUnavailable) {
		t.Fatalf("missing checker must fail closed, got %v, %v", ok, err)
	}
}

func TestIsPrivilegedWithoutTimeout(t *testing.T) {
	t.Parallel()

	for _, timeout := range []time.Duration{0, -time.Second} {
		g := New(checkerFunc(func(ctx context.Context, _ int64, _ int64) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			time.Sleep(5 * time.Millisecond)
			return false, nil
		}), timeout)

		ok, err := g.IsPrivileged(context.Background(), -100, 2)
		if err != nil || ok {
			t.Fatalf("timeout %v: member must be checked, got %v, %v", timeout, ok, err)
		}
	}
}
