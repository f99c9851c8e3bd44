package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atinyakov/PhotoKeeper/internal/client/guard"
	"github.com/atinyakov/PhotoKeeper/internal/models"
)

func searchLocation(query string) string {
	return guard.PathSearch + "?query=" + url.QueryEscape(query)
}

func (c *cli) newPhotosCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "List your photo records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := app.Enter(guard.PathDashboard); err != nil {
				return err
			}
			photos, err := app.Photos.List(ctx)
			if err != nil {
				return app.Expired(ctx, err)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(photos, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPhotos(photos))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON instead of a table")
	return cmd
}

func (c *cli) newUploadCmd() *cobra.Command {
	var (
		tags    string
		albumID string
		batch   bool
	)
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload photos one by one or as a batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := app.Enter(guard.PathDashboard); err != nil {
				return err
			}
			for _, path := range args {
				if err := app.Upload.StagePath(path); err != nil {
					return err
				}
			}
			app.Upload.SetTags(tags)
			app.Upload.SetAlbum(albumID)
			return c.runUpload(cmd, app, batch)
		},
	}
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags for every file")
	cmd.Flags().StringVar(&albumID, "album", "", "album id")
	cmd.Flags().BoolVar(&batch, "batch", false, "send all files in one request")
	return cmd
}

// runUpload submits the staged files and prints each outcome. It fails when
// any file failed.
func (c *cli) runUpload(cmd *cobra.Command, app *App, batch bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	before := len(app.Upload.Results())
	total := len(app.Upload.Staged())

	app.Upload.OnProgress(func(res models.UploadResult, percent int) {
		fmt.Fprintf(out, "[%3d%%] %s\n", percent, renderResult(res))
	})
	defer app.Upload.OnProgress(nil)

	var err error
	if batch {
		err = app.Upload.UploadBatch(ctx)
	} else {
		err = app.Upload.UploadSequential(ctx)
	}
	if err != nil {
		return app.Expired(ctx, err)
	}

	failed := 0
	for _, res := range app.Upload.Results()[before:] {
		if res.Status == models.StatusError {
			failed++
		}
	}
	fmt.Fprintf(out, "Progress: %d%%, gallery has %d photos\n", app.Upload.Progress(), len(app.Gallery.Images()))
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, total)
	}
	return nil
}

func (c *cli) newGalleryCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Show your photos in three columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := app.Enter(guard.PathGallery); err != nil {
				return err
			}
			app.KeepImages = keep
			if err := app.Gallery.Refresh(ctx); err != nil {
				return app.Expired(ctx, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGallery("Your photos", app.Gallery.Images()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "leave downloaded images on disk after exit")
	return cmd
}

func (c *cli) newSearchCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find photos by tag",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := c.open(ctx)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			if err := app.Enter(searchLocation(query)); err != nil {
				return err
			}
			app.KeepImages = keep
			return c.search(cmd, app, query)
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "leave downloaded images on disk after exit")
	return cmd
}

func (c *cli) search(cmd *cobra.Command, app *App, query string) error {
	ctx := cmd.Context()
	photos, err := app.Photos.Search(ctx, query)
	if err != nil {
		return app.Expired(ctx, err)
	}
	app.Gallery.Show(ctx, photos)
	fmt.Fprintln(cmd.OutOrStdout(), renderGallery(fmt.Sprintf("Results for %q", query), app.Gallery.Images()))
	return nil
}

func (c *cli) newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url PHOTO_ID",
		Short: "Print a shareable image URL carrying the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Enter(guard.PathGallery); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Photos.ImageURL(args[0]))
			return nil
		},
	}
}
