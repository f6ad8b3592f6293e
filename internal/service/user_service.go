package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"journal-keeper/internal/domain"
	"journal-keeper/internal/repository"
	"journal-keeper/internal/token"
)

// PasswordStorage selects how a client supplied digest is persisted.
type PasswordStorage string

const (
	// PasswordStorageDigest stores the SHA-256 hex digest as sent by the client.
	PasswordStorageDigest PasswordStorage = "digest"
	// PasswordStorageBcrypt stores a bcrypt hash of the digest.
	PasswordStorageBcrypt PasswordStorage = "bcrypt"
)

// ParsePasswordStorage validates a configured storage mode; empty means digest.
func ParsePasswordStorage(raw string) (PasswordStorage, error) {
	switch mode := PasswordStorage(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "", PasswordStorageDigest:
		return PasswordStorageDigest, nil
	case PasswordStorageBcrypt:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown password storage %q", raw)
	}
}

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	digestPattern   = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

type credentials struct {
	Username string `validate:"required,min=3,usernamechars"`
	Password string `validate:"required,sha256hex"`
}

var credentialMessages = map[string]string{
	"Username.required":      "username is required",
	"Username.min":           "username must be at least 3 characters long",
	"Username.usernamechars": "username may only contain letters, numbers, underscores and hyphens",
	"Password.required":      "password is required",
	"Password.sha256hex":     "password must be a SHA-256 hex digest",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("usernamechars", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("sha256hex", func(fl validator.FieldLevel) bool {
		return digestPattern.MatchString(fl.Field().String())
	})
	return v
}

// UserService handles registration and login.
type UserService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
}

type userService struct {
	users    repository.UserRepository
	tokens   *token.Codec
	storage  PasswordStorage
	validate *validator.Validate
	now      func() time.Time
}

func NewUserService(users repository.UserRepository, tokens *token.Codec, storage PasswordStorage) UserService {
	if storage == "" {
		storage = PasswordStorageDigest
	}
	return &userService{
		users:    users,
		tokens:   tokens,
		storage:  storage,
		validate: newValidator(),
		now:      time.Now,
	}
}

func (s *userService) validateCredentials(c credentials) error {
	err := s.validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return internalError("validate credentials", err)
	}
	first := verrs[0]
	if msg, ok := credentialMessages[first.Field()+"."+first.Tag()]; ok {
		return validationError(msg)
	}
	return validationError("invalid " + strings.ToLower(first.Field()))
}

// Register stores a new credential. The caller must log in separately.
func (s *userService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	c := credentials{Username: strings.TrimSpace(username), Password: password}
	if err := s.validateCredentials(c); err != nil {
		return nil, err
	}

	credential, err := s.storeCredential(c.Password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	user := &domain.User{
		Username:     c.Username,
		Credential:   credential,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrUsernameTaken
		}
		return nil, internalError("create user", err)
	}

	return &domain.User{Username: user.Username, RegisteredAt: user.RegisteredAt}, nil
}

// Login verifies the digest and returns a signed bearer token.
func (s *userService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", internalError("get user", err)
	}
	if !credentialMatches(user.Credential, password) {
		return "", ErrInvalidCredentials
	}

	if !s.tokens.Configured() {
		return "", ErrServerMisconfigured
	}
	tok, _, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", internalError("issue token", err)
	}
	return tok, nil
}

func (s *userService) storeCredential(digest string) (string, error) {
	if s.storage != PasswordStorageBcrypt {
		return digest, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(digest), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// credentialMatches picks the comparison from the stored format, so digest
// records keep working after bcrypt storage is switched on.
func credentialMatches(stored, supplied string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
