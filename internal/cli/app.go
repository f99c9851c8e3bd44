package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/atinyakov/PhotoKeeper/internal/client/api"
	"github.com/atinyakov/PhotoKeeper/internal/client/auth"
	"github.com/atinyakov/PhotoKeeper/internal/client/gallery"
	"github.com/atinyakov/PhotoKeeper/internal/client/guard"
	"github.com/atinyakov/PhotoKeeper/internal/client/photo"
	"github.com/atinyakov/PhotoKeeper/internal/client/session"
	"github.com/atinyakov/PhotoKeeper/internal/client/upload"
	"github.com/atinyakov/PhotoKeeper/internal/config"
)

var (
	// ErrLoginRequired is returned by protected commands without a session.
	ErrLoginRequired = errors.New("not logged in, run `photokeeper login` first")
	// ErrAlreadyLoggedIn is returned by login and register with a session.
	ErrAlreadyLoggedIn = errors.New("already logged in, run `photokeeper logout` first")
)

// App wires the client components around one session.Context.
type App struct {
	Options *config.Options
	Log     *zap.Logger

	Session *session.Context
	Guard   *guard.Guard
	Client  *api.Client
	Auth    *auth.Gateway
	Photos  *photo.Gateway
	Gallery *gallery.Renderer
	Upload  *upload.Flow

	// KeepImages leaves the gallery's image files on disk at Close.
	KeepImages bool

	store io.Closer
}

// NewApp opens the session store, reads the persisted session and builds
// every component on top of it.
func NewApp(ctx context.Context, opts *config.Options, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, closer, err := session.Open(opts.StoreDriver, opts.StoreDSN)
	if err != nil {
		return nil, err
	}

	sc := session.NewContext(store, log)
	if err := sc.Reload(ctx); err != nil {
		closer.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}

	g := guard.New(sc, guard.WithLanding(opts.LandingView))
	sc.OnChange(g.SessionChanged)
	g.Init()

	hc, err := api.NewHTTPClient(opts.CAFile, opts.RequestTimeout)
	if err != nil {
		closer.Close()
		return nil, err
	}
	client := api.New(opts.APIURL, sc,
		api.WithHTTPClient(hc),
		api.WithLogger(log),
		api.WithUnauthorizedHook(g.Unauthorized),
	)

	photos := photo.NewGateway(client, sc)
	renderer, err := gallery.NewRenderer(photos, opts.BlobDir, log)
	if err != nil {
		closer.Close()
		return nil, err
	}

	return &App{
		Options: opts,
		Log:     log,
		Session: sc,
		Guard:   g,
		Client:  client,
		Auth:    auth.NewGateway(client, sc, auth.RegisterPolicy(opts.RegisterPolicy), log),
		Photos:  photos,
		Gallery: renderer,
		Upload:  upload.NewFlow(photos, renderer, log),
		store:   closer,
	}, nil
}

// Enter asks the guard whether location may be shown.
func (a *App) Enter(location string) error {
	d := a.Guard.Navigate(location)
	switch d.Action {
	case guard.Render:
		return nil
	case guard.Redirect:
		if d.Target == guard.PathLogin {
			return ErrLoginRequired
		}
		return ErrAlreadyLoggedIn
	case guard.NotFound:
		return fmt.Errorf("unknown view %q", d.Target)
	}
	return fmt.Errorf("session check pending for %q", location)
}

// Expired handles an API rejection of the stored token: the session is
// dropped so the next command asks for a login.
func (a *App) Expired(ctx context.Context, err error) error {
	if !api.IsUnauthorized(err) {
		return err
	}
	if endErr := a.Session.End(ctx); endErr != nil {
		a.Log.Warn("failed to clear expired session", zap.Error(endErr))
	}
	return fmt.Errorf("session expired, log in again: %w", err)
}

// Close releases gallery images and the session store.
func (a *App) Close() error {
	var errs []error
	if !a.KeepImages {
		errs = append(errs, a.Gallery.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
