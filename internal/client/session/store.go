// Package session keeps the credential token and user profile that make up
// the client's login state, persisted across runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/PhotoKeeper/internal/models"
)

// Persisted key names. They are always written and cleared together.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrEmptyToken is returned when saving a session without a token.
var ErrEmptyToken = errors.New("session token is empty")

// Backend is a durable key/value store.
// PutAll and DeleteAll must apply all keys or none.
type Backend interface {
	PutAll(ctx context.Context, values map[string]string) error
	GetAll(ctx context.Context, keys ...string) (map[string]string, error)
	Has(ctx context.Context, key string) (bool, error)
	DeleteAll(ctx context.Context, keys ...string) error
}

// Store reads and writes a models.Session on top of a Backend.
type Store struct {
	backend Backend
}

// NewStore returns a Store persisting to backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Save persists token and user. Both keys are written before it returns.
func (s *Store) Save(ctx context.Context, sess models.Session) error {
	if sess.Token == "" {
		return ErrEmptyToken
	}
	user, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.backend.PutAll(ctx, map[string]string{
		KeyToken: sess.Token,
		KeyUser:  string(user),
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the stored session. ok is false when either key is missing
// or the user value does not decode; that case is not an error.
func (s *Store) Load(ctx context.Context) (sess models.Session, ok bool, err error) {
	values, err := s.backend.GetAll(ctx, KeyToken, KeyUser)
	if err != nil {
		return models.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	token, hasToken := values[KeyToken]
	raw, hasUser := values[KeyUser]
	if !hasToken || !hasUser {
		return models.Session{}, false, nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return models.Session{}, false, nil
	}
	return models.Session{Token: token, User: user}, true, nil
}

// Token returns the raw stored token regardless of the user value.
func (s *Store) Token(ctx context.Context) (string, bool, error) {
	values, err := s.backend.GetAll(ctx, KeyToken)
	if err != nil {
		return "", false, fmt.Errorf("load token: %w", err)
	}
	token, ok := values[KeyToken]
	return token, ok, nil
}

// Clear removes both keys.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.DeleteAll(ctx, KeyToken, KeyUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a token key is present. It does not
// check the token with the server.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.backend.Has(ctx, KeyToken)
}
