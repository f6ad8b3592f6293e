package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"journal-keeper/internal/domain"
	"journal-keeper/internal/repository"
	"journal-keeper/internal/storage"
)

const (
	userKeyPrefix     = "user:"
	userMetaKeyPrefix = "usermeta:"
)

type userMeta struct {
	RegisteredAt time.Time `json:"registeredAt"`
}

// UserRepository stores the bare credential under user:<username>, which keeps
// records written by earlier deployments readable, and the registration time
// under usermeta:<username>.
type UserRepository struct {
	store  storage.Store
	logger logrus.FieldLogger
}

func NewUserRepository(store storage.Store, logger logrus.FieldLogger) repository.UserRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserRepository{store: store, logger: logger}
}

func userKey(username string) string {
	return userKeyPrefix + username
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.RegisteredAt.IsZero() {
		user.RegisteredAt = time.Now().UTC()
	}
	key := userKey(user.Username)

	if cp, ok := r.store.(storage.ConditionalPutter); ok {
		created, err := cp.PutIfAbsent(ctx, key, user.Credential)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if !created {
			return repository.ErrAlreadyExists
		}
	} else {
		// Not atomic: two concurrent registrations may both pass the check.
		if _, err := r.store.Get(ctx, key); err == nil {
			return repository.ErrAlreadyExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("lookup user: %w", err)
		}
		if err := r.store.Put(ctx, key, user.Credential); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	}

	meta, err := json.Marshal(userMeta{RegisteredAt: user.RegisteredAt})
	if err != nil {
		return fmt.Errorf("encode user metadata: %w", err)
	}
	if err := r.store.Put(ctx, userMetaKeyPrefix+user.Username, string(meta)); err != nil {
		r.logger.WithError(err).WithField("username", user.Username).Warn("store user metadata")
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	credential, err := r.store.Get(ctx, userKey(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	user := &domain.User{Username: username, Credential: credential}

	raw, err := r.store.Get(ctx, userMetaKeyPrefix+username)
	switch {
	case err == nil:
		var meta userMeta
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			user.RegisteredAt = meta.RegisteredAt
		}
	case !errors.Is(err, storage.ErrNotFound):
		r.logger.WithError(err).WithField("username", username).Warn("load user metadata")
	}

	return user, nil
}
