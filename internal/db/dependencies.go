package db

import (
	"context"
	"time"
)

// StrikeStore keeps per chat and user offense counters. Every mutation is a
// single atomic operation on the backend.
type StrikeStore interface {
	GetStrikes(ctx context.Context, chatID, userID int64) (int, error)
	IncrementStrikes(ctx context.Context, chatID, userID int64, ttl time.Duration) (int, error)
	ResetStrikes(ctx context.Context, chatID, userID int64) error
}

// DedupStore remembers keys for a limited time. MarkProcessed reports true
// only for the first caller within the ttl window.
type DedupStore interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context, chatID int64) (*Settings, error)
	ToggleStrictMode(ctx context.Context, chatID int64) (bool, error)
}

type ListStore interface {
	SetListEntry(ctx context.Context, chatID, userID int64, kind ListKind) error
	RemoveListEntry(ctx context.Context, chatID, userID int64) error
	GetListEntry(ctx context.Context, chatID, userID int64) (ListKind, error)
}

type Client interface {
	StrikeStore
	DedupStore
	SettingsStore
	ListStore
	Ping(ctx context.Context) error
	Close() error
}
