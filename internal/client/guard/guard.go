// Package guard decides, per navigation, whether a view may be shown for the
// current login state.
package guard

import (
	"net/url"
	"path"
	"sync"

	"github.com/atinyakov/PhotoKeeper/internal/models"
)

// State is the guard's view of the login state.
type State int

const (
	// Loading is the state before the first session check.
	Loading State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Access classifies a view.
type Access int

const (
	// Public views render in every state once loaded.
	Public Access = iota
	// PublicOnly views (login, registration) are for logged-out users.
	PublicOnly
	// Protected views require a session.
	Protected
)

// Action is the outcome of a navigation.
type Action int

const (
	Render Action = iota
	Redirect
	// Wait means the session check has not finished; show a neutral
	// indicator and ask again.
	Wait
	NotFound
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Wait:
		return "wait"
	case NotFound:
		return "not found"
	}
	return "unknown"
}

// Decision tells the caller what to show.
type Decision struct {
	Action Action
	// Target is the view to render or redirect to.
	Target string
}

// SessionSource reports the persisted session.
type SessionSource interface {
	Session() (models.Session, bool)
}

// Default view paths.
const (
	PathHome      = "/"
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
	PathGallery   = "/gallery"
	PathSearch    = "/search"
)

// DefaultViews is the view table of the client.
func DefaultViews() map[string]Access {
	return map[string]Access{
		PathHome:      Public,
		PathLogin:     PublicOnly,
		PathRegister:  PublicOnly,
		PathDashboard: Protected,
		PathGallery:   Protected,
		PathSearch:    Protected,
	}
}

// Guard is the per-process route guard.
type Guard struct {
	source  SessionSource
	views   map[string]Access
	login   string
	landing string

	mu       sync.Mutex
	state    State
	returnTo string
}

// Option configures a Guard.
type Option func(*Guard)

// WithLanding sets the view authenticated users land on by default.
func WithLanding(p string) Option {
	return func(g *Guard) { g.landing = p }
}

// WithViews replaces the view table.
func WithViews(views map[string]Access) Option {
	return func(g *Guard) { g.views = views }
}

// New returns a Guard in the Loading state.
func New(source SessionSource, opts ...Option) *Guard {
	g := &Guard{
		source:  source,
		views:   DefaultViews(),
		login:   PathLogin,
		landing: PathDashboard,
		state:   Loading,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Init performs the session check. It only reads local state.
func (g *Guard) Init() State {
	_, ok := g.source.Session()

	g.mu.Lock()
	defer g.mu.Unlock()
	if ok {
		g.state = Authenticated
	} else {
		g.state = Unauthenticated
	}
	return g.state
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Landing returns the default view for authenticated users.
func (g *Guard) Landing() string {
	return g.landing
}

// ReturnTo returns the recorded destination, if any.
func (g *Guard) ReturnTo() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.returnTo
}

// Navigate decides what to show for location (a path, optionally with a
// query string).
func (g *Guard) Navigate(location string) Decision {
	viewPath := normalize(location)
	access, ok := g.views[viewPath]
	if !ok {
		return Decision{Action: NotFound, Target: viewPath}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch access {
	case Protected:
		switch g.state {
		case Loading:
			return Decision{Action: Wait}
		case Unauthenticated:
			g.returnTo = location
			return Decision{Action: Redirect, Target: g.login}
		}
	case PublicOnly:
		switch g.state {
		case Loading:
			return Decision{Action: Wait}
		case Authenticated:
			return Decision{Action: Redirect, Target: g.landing}
		}
	}
	return Decision{Action: Render, Target: viewPath}
}

// LoginSucceeded moves to Authenticated and returns where to go next: the
// recorded destination, or the landing view.
func (g *Guard) LoginSucceeded() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = Authenticated
	target := g.returnTo
	g.returnTo = ""
	if target == "" || g.views[normalize(target)] != Protected {
		return g.landing
	}
	return target
}

// LoggedOut moves to Unauthenticated and forgets any recorded destination.
func (g *Guard) LoggedOut() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Unauthenticated
	g.returnTo = ""
}

// Unauthorized moves to Unauthenticated after the API rejected the token.
func (g *Guard) Unauthorized() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Loading {
		g.state = Unauthenticated
	}
}

// SessionChanged follows login-state changes; pass it to
// session.Context.OnChange.
func (g *Guard) SessionChanged(authenticated bool) {
	if authenticated {
		g.mu.Lock()
		g.state = Authenticated
		g.mu.Unlock()
		return
	}
	g.LoggedOut()
}

func normalize(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil {
		p = u.Path
	}
	if p == "" {
		return PathHome
	}
	return path.Clean("/" + p)
}
