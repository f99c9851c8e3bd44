package session

import (
	"context"
	"sync"

	"github.com/atinyakov/PhotoKeeper/internal/models"
	"go.uber.org/zap"
)

// Context is the single in-process view of the login state. It is created
// once, loaded from the Store, and passed to every component that reads or
// changes the session. Writes reach the Store before the cached view is
// updated, so a failed write never shows up as a partial login.
type Context struct {
	store *Store
	log   *zap.Logger

	mu    sync.RWMutex
	token string
	user  *models.User

	listeners []func(authenticated bool)
}

// NewContext returns an empty Context backed by store. Call Reload to read
// the persisted state.
func NewContext(store *Store, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{store: store, log: log}
}

// Reload replaces the cached state with what the Store holds.
func (c *Context) Reload(ctx context.Context) error {
	token, _, err := c.store.Token(ctx)
	if err != nil {
		return err
	}
	sess, ok, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = token
	c.user = nil
	if ok {
		u := sess.User
		c.user = &u
	}
	c.mu.Unlock()

	if token != "" && !ok {
		c.log.Warn("stored token has no readable user profile")
	}
	return nil
}

// Establish persists sess and makes it current.
func (c *Context) Establish(ctx context.Context, sess models.Session) error {
	if err := c.store.Save(ctx, sess); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = sess.Token
	u := sess.User
	c.user = &u
	c.mu.Unlock()

	c.notify(true)
	return nil
}

// End clears the persisted session and the cached view.
func (c *Context) End(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.user = nil
	c.mu.Unlock()

	c.notify(false)
	return nil
}

// Token returns the bearer token, or "" when logged out.
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns the current user if a complete session is loaded.
func (c *Context) User() (models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return models.User{}, false
	}
	return *c.user, true
}

// Session returns the token and user when both are present.
func (c *Context) Session() (models.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || c.user == nil {
		return models.Session{}, false
	}
	return models.Session{Token: c.token, User: *c.user}, true
}

// IsAuthenticated reports whether a token is present.
func (c *Context) IsAuthenticated() bool {
	return c.Token() != ""
}

// OnChange registers fn to run after every Establish or End.
func (c *Context) OnChange(fn func(authenticated bool)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Context) notify(authenticated bool) {
	c.mu.RLock()
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(authenticated)
	}
}
