package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Store is the key-value backend consumed by the repositories. Single-key
// operations are atomic; List is only eventually consistent with writes.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalPutter is implemented by backends that can insert a key only when
// it is absent in a single atomic step.
type ConditionalPutter interface {
	PutIfAbsent(ctx context.Context, key, value string) (bool, error)
}
