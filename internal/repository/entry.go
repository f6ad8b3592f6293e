package repository

import (
	"context"

	"journal-keeper/internal/domain"
)

// EntryRepository persists journal entries owned by a single user.
type EntryRepository interface {
	Put(ctx context.Context, username string, entry domain.Entry) error
	// List returns every entry of username in storage order.
	List(ctx context.Context, username string) ([]domain.Entry, error)
	Exists(ctx context.Context, username string, timestamp int64) (bool, error)
	Delete(ctx context.Context, username string, timestamp int64) error
}
