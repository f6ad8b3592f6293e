package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"journal-keeper/internal/domain"
	"journal-keeper/internal/repository"
	"journal-keeper/internal/storage"
)

const (
	entryKeyPrefix = "entry:"
	// maxParallelFetch bounds concurrent Gets while listing.
	maxParallelFetch = 8
)

// EntryRepository stores each entry as JSON under entry:<username>:<timestamp>.
type EntryRepository struct {
	store  storage.Store
	logger logrus.FieldLogger
}

func NewEntryRepository(store storage.Store, logger logrus.FieldLogger) repository.EntryRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EntryRepository{store: store, logger: logger}
}

func entryPrefix(username string) string {
	return entryKeyPrefix + username + ":"
}

func entryKey(username string, timestamp int64) string {
	return entryPrefix(username) + strconv.FormatInt(timestamp, 10)
}

func (r *EntryRepository) Put(ctx context.Context, username string, entry domain.Entry) error {
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.store.Put(ctx, entryKey(username, entry.Timestamp), string(payload)); err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

func (r *EntryRepository) List(ctx context.Context, username string) ([]domain.Entry, error) {
	prefix := entryPrefix(username)
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	var (
		mu      sync.Mutex
		entries = make([]domain.Entry, 0, len(keys))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetch)
	for _, key := range keys {
		g.Go(func() error {
			value, err := r.store.Get(gctx, key)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					// deleted between list and get
					return nil
				}
				return fmt.Errorf("get entry %s: %w", key, err)
			}
			entry, ok := r.decodeEntry(prefix, key, value)
			if !ok {
				return nil
			}
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// decodeEntry parses a stored value. Values that are not JSON predate the
// structured schema and are surfaced as plain content stamped with the key suffix.
func (r *EntryRepository) decodeEntry(prefix, key, value string) (domain.Entry, bool) {
	timestamp, tsErr := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)

	var entry domain.Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		if tsErr != nil {
			r.logger.WithField("key", key).Warn("skipping legacy entry with unparsable key")
			return domain.Entry{}, false
		}
		return domain.Entry{Content: value, Tags: []string{}, Timestamp: timestamp}, true
	}

	if entry.Timestamp == 0 && tsErr == nil {
		entry.Timestamp = timestamp
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	return entry, true
}

func (r *EntryRepository) Exists(ctx context.Context, username string, timestamp int64) (bool, error) {
	if _, err := r.store.Get(ctx, entryKey(username, timestamp)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get entry: %w", err)
	}
	return true, nil
}

func (r *EntryRepository) Delete(ctx context.Context, username string, timestamp int64) error {
	if err := r.store.Delete(ctx, entryKey(username, timestamp)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}
