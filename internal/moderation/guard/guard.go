package guard

import (
	"context"
	"time"

	"github.com/pkg/errors"

	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
)

// MembershipChecker answers whether a user administers or owns a chat.
type MembershipChecker interface {
	IsAdminOrOwner(ctx context.Context, chatID, userID int64) (bool, error)
}

type Guard struct {
	checker MembershipChecker
	timeout time.Duration
}

// New bounds every lookup by timeout; a non-positive timeout leaves lookups
// bounded only by the caller's context.
func New(checker MembershipChecker, timeout time.Duration) *Guard {
	return &Guard{checker: checker, timeout: timeout}
}

type answer struct {
	privileged bool
	err        error
}

// IsPrivileged fails closed: when the checker errors or does not answer in
// time the user is reported as privileged together with ErrGuardUnavailable.
func (g *Guard) IsPrivileged(ctx context.Context, chatID, userID int64) (bool, error) {
	if g.checker == nil {
		return true, errors.Wrap(sgerrors.ErrGuardUnavailable, "no membership checker")
	}
	cancel := context.CancelFunc(func() {})
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	defer cancel()

	ch := make(chan answer, 1)
	go func() {
		privileged, err := g.checker.IsAdminOrOwner(ctx, chatID, userID)
		ch <- answer{privileged: privileged, err: err}
	}()

	select {
	case <-ctx.Done():
		return true, errors.Wrap(sgerrors.ErrGuardUnavailable, ctx.Err().Error())
	case a := <-ch:
		if a.err != nil {
			return true, errors.Wrap(sgerrors.ErrGuardUnavailable, a.err.Error())
		}
		return a.privileged, nil
	}
}
