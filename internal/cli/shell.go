package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/PhotoKeeper/internal/client/api"
	"github.com/atinyakov/PhotoKeeper/internal/client/auth"
	"github.com/atinyakov/PhotoKeeper/internal/client/gallery"
	"github.com/atinyakov/PhotoKeeper/internal/client/guard"
)

const (
	blobSweepInterval = 10 * time.Minute
	blobRetention     = time.Hour

	// maxHops bounds redirect chains within one navigation.
	maxHops = 5

	shellHelp = `Views:    home, login, register, dashboard, gallery, search <query>, go <path>
Upload:   select <file>..., unselect <name>, tags <a,b>, album <id>, upload [batch]
Session:  whoami, logout
Other:    help, exit`
)

func (c *cli) newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := c.open(ctx)
			if err != nil {
				return err
			}
			gallery.StartBlobSweeper(ctx, app.Options.BlobDir, blobSweepInterval, blobRetention, app.Gallery.InUse, app.Log)

			sh := &shell{cli: c, cmd: cmd, app: app, out: cmd.OutOrStdout()}
			return sh.run(ctx)
		},
	}
}

// shell is the interactive loop. Every view change goes through the guard.
type shell struct {
	cli *cli
	cmd *cobra.Command
	app *App
	out io.Writer
}

func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, "PhotoKeeper shell. Type 'help' for a list of commands.")
	s.navigate(ctx, guard.PathHome)

	for {
		line, err := s.cli.prompt.line("photokeeper> ")
		if errors.Is(err, errNoInput) {
			return nil
		}
		if err != nil {
			return err
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			fmt.Fprintln(s.out, shellHelp)
		case "home":
			s.navigate(ctx, guard.PathHome)
		case "login":
			s.navigate(ctx, guard.PathLogin)
		case "register":
			s.navigate(ctx, guard.PathRegister)
		case "dashboard":
			s.navigate(ctx, guard.PathDashboard)
		case "gallery":
			s.navigate(ctx, guard.PathGallery)
		case "search":
			s.navigate(ctx, searchLocation(strings.Join(args[1:], " ")))
		case "go":
			if len(args) < 2 {
				fmt.Fprintln(s.out, "Usage: go <path>")
				continue
			}
			s.navigate(ctx, args[1])
		case "whoami":
			if u, ok := s.app.Auth.CurrentUser(); ok {
				fmt.Fprintln(s.out, formatUser(u.Name, u.Email, u.ID))
			} else {
				fmt.Fprintln(s.out, "Not logged in")
			}
		case "logout":
			if err := s.app.Auth.Logout(ctx); err != nil {
				s.report(err)
				continue
			}
			fmt.Fprintln(s.out, "Logged out")
			s.navigate(ctx, guard.PathHome)
		case "select":
			for _, path := range args[1:] {
				if err := s.app.Upload.StagePath(path); err != nil {
					s.report(err)
				}
			}
			fmt.Fprintln(s.out, renderStaged(s.app.Upload.Staged()))
		case "unselect":
			if len(args) < 2 {
				fmt.Fprintln(s.out, "Usage: unselect <name>")
				continue
			}
			if err := s.app.Upload.Unstage(strings.Join(args[1:], " ")); err != nil {
				s.report(err)
			}
			fmt.Fprintln(s.out, renderStaged(s.app.Upload.Staged()))
		case "tags":
			s.app.Upload.SetTags(strings.Join(args[1:], " "))
			fmt.Fprintf(s.out, "Tags: %s\n", s.app.Upload.Tags())
		case "album":
			album := ""
			if len(args) > 1 {
				album = args[1]
			}
			s.app.Upload.SetAlbum(album)
		case "upload":
			s.upload(ctx, len(args) > 1 && args[1] == "batch")
		case "exit", "quit":
			fmt.Fprintln(s.out, "Bye")
			return nil
		default:
			fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// navigate follows guard decisions from location until a view renders.
func (s *shell) navigate(ctx context.Context, location string) {
	for range maxHops {
		d := s.app.Guard.Navigate(location)
		switch d.Action {
		case guard.Wait:
			fmt.Fprintln(s.out, "Loading...")
			s.app.Guard.Init()
			continue
		case guard.NotFound:
			fmt.Fprintf(s.out, "Page not found: %s\n", d.Target)
			return
		case guard.Redirect:
			if d.Target == guard.PathLogin {
				fmt.Fprintln(s.out, "Please log in to continue.")
			}
			location = d.Target
			continue
		}

		next, err := s.render(ctx, d.Target, location)
		if err != nil {
			s.report(err)
			if !api.IsUnauthorized(err) {
				return
			}
			if endErr := s.app.Session.End(ctx); endErr != nil {
				s.app.Log.Warn("failed to clear expired session", zap.Error(endErr))
			}
			next = location
		}
		if next == "" {
			return
		}
		location = next
	}
	s.app.Log.Warn("too many redirects", zap.String("location", location))
}

// render shows a view and returns where to go next, or "" to stay.
func (s *shell) render(ctx context.Context, viewPath, location string) (string, error) {
	switch viewPath {
	case guard.PathHome:
		fmt.Fprintln(s.out, titleStyle.Render("PhotoKeeper"))
		if u, ok := s.app.Auth.CurrentUser(); ok {
			fmt.Fprintf(s.out, "Logged in as %s. Try 'dashboard' or 'gallery'.\n", u.Email)
		} else {
			fmt.Fprintln(s.out, "Type 'login' or 'register' to get started.")
		}
		return "", nil

	case guard.PathLogin:
		next, err := s.cli.login(s.cmd, s.app, "")
		if err != nil {
			return "", s.formError(err)
		}
		return next, nil

	case guard.PathRegister:
		if err := s.cli.register(s.cmd, s.app, "", ""); err != nil {
			return "", s.formError(err)
		}
		if s.app.Session.IsAuthenticated() {
			return s.app.Guard.LoginSucceeded(), nil
		}
		return guard.PathLogin, nil

	case guard.PathDashboard:
		if u, ok := s.app.Auth.CurrentUser(); ok {
			fmt.Fprintln(s.out, titleStyle.Render("Dashboard of "+u.Name))
		}
		fmt.Fprintln(s.out, renderStaged(s.app.Upload.Staged()))
		if results := s.app.Upload.Results(); len(results) > 0 {
			fmt.Fprintln(s.out, renderResults(results))
		}
		if err := s.app.Gallery.Refresh(ctx); err != nil {
			return "", err
		}
		fmt.Fprintln(s.out, renderGallery("Your photos", s.app.Gallery.Images()))
		return "", nil

	case guard.PathGallery:
		if err := s.app.Gallery.Refresh(ctx); err != nil {
			return "", err
		}
		fmt.Fprintln(s.out, renderGallery("Your photos", s.app.Gallery.Images()))
		return "", nil

	case guard.PathSearch:
		query := ""
		if u, err := url.Parse(location); err == nil {
			query = u.Query().Get("query")
		}
		if strings.TrimSpace(query) == "" {
			fmt.Fprintln(s.out, "Usage: search <query>")
			return "", nil
		}
		return "", s.cli.search(s.cmd, s.app, query)
	}
	return "", fmt.Errorf("no renderer for %s", viewPath)
}

// formError shows a rejected form without leaving the view.
func (s *shell) formError(err error) error {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) || errors.Is(err, auth.ErrInvalidInput) {
		fmt.Fprintln(s.out, errStyle.Render(err.Error()))
		return nil
	}
	return err
}

func (s *shell) upload(ctx context.Context, batch bool) {
	if d := s.app.Guard.Navigate(guard.PathDashboard); d.Action != guard.Render {
		s.navigate(ctx, guard.PathDashboard)
		return
	}
	err := s.cli.runUpload(s.cmd, s.app, batch)
	if err != nil {
		s.report(err)
	}
	if !s.app.Session.IsAuthenticated() {
		s.navigate(ctx, guard.PathDashboard)
	}
}

func (s *shell) report(err error) {
	fmt.Fprintln(s.out, errStyle.Render("Error: "+err.Error()))
}
