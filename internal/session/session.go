// Package session is quill's stand-in for authentication: any non-blank
// username and password logs in, and the resulting user is remembered in
// the same key-value backend as the posts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/store"
)

// Key is the slot the logged-in user is kept under.
const Key = "blog-user"

// userIDPrefix marks every derived user id.
const userIDPrefix = "user_"

var (
	// ErrNotLoggedIn is returned by Current when no user is stored.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrMissingCredentials rejects a login with a blank username or password.
	ErrMissingCredentials = errors.New("username and password are required")
)

// userNamespace scopes the name-based UUIDs user ids are derived from.
var userNamespace = uuid.MustParse("4f3c1d9a-7b2e-4c61-9a55-0e8d2b6f1c7a")

// Manager logs users in and out.
type Manager struct {
	backend store.Backend
	logger  *zap.Logger
}

// New creates a Manager. A nil logger discards output.
func New(backend store.Backend, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{backend: backend, logger: logger}
}

// UserID derives the stable id for a username. Case and surrounding space
// are ignored, so "Alice" and "alice " own the same posts.
func UserID(username string) string {
	name := strings.ToLower(strings.TrimSpace(username))
	return userIDPrefix + uuid.NewSHA1(userNamespace, []byte(name)).String()
}

// Login accepts any non-blank credentials and stores the user.
func (m *Manager) Login(ctx context.Context, username, password string) (posts.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return posts.User{}, ErrMissingCredentials
	}

	u := posts.User{ID: UserID(username), Username: username}
	data, err := json.Marshal(u)
	if err != nil {
		return posts.User{}, fmt.Errorf("login: %w", err)
	}
	if err := m.backend.Set(ctx, Key, data); err != nil {
		return posts.User{}, fmt.Errorf("login: %w", err)
	}

	m.logger.Info("logged in", zap.String("user", u.Username), zap.String("id", u.ID))
	return u, nil
}

// Current returns the logged-in user or ErrNotLoggedIn. An unreadable
// stored user counts as logged out.
func (m *Manager) Current(ctx context.Context) (posts.User, error) {
	data, found, err := m.backend.Get(ctx, Key)
	if err != nil {
		return posts.User{}, fmt.Errorf("current user: %w", err)
	}
	if !found {
		return posts.User{}, ErrNotLoggedIn
	}

	var u posts.User
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
		m.logger.Warn("ignoring unreadable session", zap.Error(err))
		return posts.User{}, ErrNotLoggedIn
	}
	return u, nil
}

// Logout forgets the current user. Logging out twice is harmless.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.backend.Delete(ctx, Key); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	m.logger.Info("logged out")
	return nil
}
