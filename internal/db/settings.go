package db

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

func DefaultSettings(chatID int64) *Settings {
	now := time.Now().UTC()
	return &Settings{
		ID:         chatID,
		StrictMode: false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
