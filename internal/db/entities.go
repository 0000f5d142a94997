package db

import "time"

type (
	Settings struct {
		ID         int64     `db:"id"`
		StrictMode bool      `db:"strict_mode"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	StrikeRecord struct {
		ChatID        int64     `db:"chat_id"`
		UserID        int64     `db:"user_id"`
		Count         int       `db:"count"`
		LastOffenseAt time.Time `db:"last_offense_at"`
		ExpiresAt     time.Time `db:"expires_at"`
	}

	ListKind string
)

const (
	ListNone  ListKind = ""
	ListAllow ListKind = "allow"
	ListDeny  ListKind = "deny"
)

func (k ListKind) Valid() bool {
	return k == ListAllow || k == ListDeny
}

// Active reports whether the record still counts at the given moment.
func (r *StrikeRecord) Active(now time.Time) bool {
	return r != nil && r.Count > 0 && now.Before(r.ExpiresAt)
}
