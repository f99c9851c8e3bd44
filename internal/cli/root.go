// Package cli implements the photokeeper command tree and its interactive
// shell on top of the client components.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/atinyakov/PhotoKeeper/internal/config"
	"github.com/atinyakov/PhotoKeeper/internal/logger"
)

// BuildInfo is set through -ldflags in cmd/photokeeper.
type BuildInfo struct {
	Version string
	Date    string
}

// Streams are the standard streams of a run.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type cli struct {
	build   BuildInfo
	streams Streams
	prompt  *prompter
	logger  *logger.Logger

	flags *config.Options
	opts  *config.Options
	app   *App
}

// Run executes the command line args and releases everything the command
// opened.
func Run(ctx context.Context, build BuildInfo, args []string, streams Streams) error {
	c := &cli{
		build:   build,
		streams: streams,
		prompt:  newPrompter(streams.In, streams.Out),
		logger:  logger.New(),
	}
	root := c.newRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if c.app != nil {
		err = errors.Join(err, c.app.Close())
	}
	_ = c.logger.Log.Sync()
	return err
}

func (c *cli) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "photokeeper",
		Short: "Client for the PhotoKeeper photo storage API",
		Long: `photokeeper logs you in to a PhotoKeeper server, uploads photos and
shows your gallery in the terminal. Run "photokeeper shell" for an
interactive session.

Configuration is read from photokeeper.yaml, a .env file, PHOTOKEEPER_*
environment variables and flags, later sources winning.

Environment Variables:
  PHOTOKEEPER_API_URL          API base URL (default: http://localhost:8080/api)
  PHOTOKEEPER_STORE_DRIVER     session store: file | sqlite3 | postgres
  PHOTOKEEPER_STORE_DSN        session store path or connection string
  PHOTOKEEPER_REGISTER_POLICY  after registration: session | login`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := config.Load(cmd.Root().PersistentFlags(), c.flags)
			if err != nil {
				return err
			}
			if err := c.logger.Init(opts.LogLevel); err != nil {
				return err
			}
			c.opts = opts
			return nil
		},
	}
	c.flags = config.RegisterFlags(root.PersistentFlags())

	root.SetIn(c.streams.In)
	root.SetOut(c.streams.Out)
	root.SetErr(c.streams.Err)

	root.AddCommand(
		c.newVersionCmd(),
		c.newRegisterCmd(),
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newWhoamiCmd(),
		c.newPhotosCmd(),
		c.newUploadCmd(),
		c.newGalleryCmd(),
		c.newSearchCmd(),
		c.newURLCmd(),
		c.newShellCmd(),
	)
	return root
}

// open builds the App on first use.
func (c *cli) open(ctx context.Context) (*App, error) {
	if c.app != nil {
		return c.app, nil
	}
	app, err := NewApp(ctx, c.opts, c.logger.Log)
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build version and date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "PhotoKeeper Client\nVersion: %s\nBuild Date: %s\n", c.build.Version, c.build.Date)
		},
	}
}
