package ledger

import (
	"context"
	"time"

	"github.com/iamwavecut/strikeguard/internal/db"
)

// Ledger counts offenses per chat member. Counts expire a fixed time after
// the latest offense. All mutations are delegated to a single atomic store call.
type Ledger struct {
	store db.StrikeStore
}

func New(store db.StrikeStore) *Ledger {
	return &Ledger{store: store}
}

// ActiveCount returns 0 for a member without strikes or with expired ones.
func (l *Ledger) ActiveCount(ctx context.Context, chatID, userID int64) (int, error) {
	return l.store.GetStrikes(ctx, chatID, userID)
}

// RecordOffense returns the count including this offense. The count before
// the offense is the result minus one.
func (l *Ledger) RecordOffense(ctx context.Context, chatID, userID int64, expiry time.Duration) (int, error) {
	return l.store.IncrementStrikes(ctx, chatID, userID, expiry)
}

func (l *Ledger) Reset(ctx context.Context, chatID, userID int64) error {
	return l.store.ResetStrikes(ctx, chatID, userID)
}
