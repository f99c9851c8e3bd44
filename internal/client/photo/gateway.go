// Package photo wraps the photo endpoints of the API: listing, uploading,
// searching and downloading image bytes.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/atinyakov/PhotoKeeper/internal/client/api"
	"github.com/atinyakov/PhotoKeeper/internal/client/session"
	"github.com/atinyakov/PhotoKeeper/internal/models"
)

// ErrNotAuthenticated is returned when an operation needs the user id and
// no complete session is loaded.
var ErrNotAuthenticated = errors.New("user not authenticated")

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("search query is empty")

const maxImageSize = 64 << 20

// File is one file to upload.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Metadata is shared by every file of an upload.
type Metadata struct {
	UserID  string
	AlbumID string
	// Tags is the comma-delimited tag list as typed by the user.
	Tags string
}

// Gateway exposes the photo operations.
type Gateway struct {
	client  *api.Client
	session *session.Context
}

// NewGateway returns a Gateway using client and the session's user id.
func NewGateway(client *api.Client, sess *session.Context) *Gateway {
	return &Gateway{client: client, session: sess}
}

// UserID returns the id of the logged-in user as used in API paths.
func (g *Gateway) UserID() (string, error) {
	u, ok := g.session.User()
	if !ok || u.ID == nil {
		return "", ErrNotAuthenticated
	}
	return strconv.FormatInt(*u.ID, 10), nil
}

// OwnerID returns the user id sent with uploads, or "" when the stored
// user carries none.
func (g *Gateway) OwnerID() string {
	id, err := g.UserID()
	if err != nil {
		return ""
	}
	return id
}

// List returns the current user's photos in server order.
func (g *Gateway) List(ctx context.Context) ([]models.Photo, error) {
	userID, err := g.UserID()
	if err != nil {
		return nil, err
	}
	return api.Call[[]models.Photo](ctx, g.client, http.MethodGet, "/photos/user/"+url.PathEscape(userID), nil)
}

// Upload sends a single file.
func (g *Gateway) Upload(ctx context.Context, file File, meta Metadata) (models.Photo, error) {
	form := api.NewForm().File("file", file.Name, file.Open)
	addMetadata(form, meta)
	return api.Call[models.Photo](ctx, g.client, http.MethodPost, "/photos", form)
}

// BatchUpload sends every file in one request. The server answers with one
// record per stored file, in submission order.
func (g *Gateway) BatchUpload(ctx context.Context, files []File, meta Metadata) ([]models.Photo, error) {
	if len(files) == 0 {
		return nil, errors.New("batch upload needs at least one file")
	}
	form := api.NewForm()
	for _, f := range files {
		form.File("files", f.Name, f.Open)
	}
	addMetadata(form, meta)
	return api.Call[[]models.Photo](ctx, g.client, http.MethodPost, "/photos/batch", form)
}

func addMetadata(form *api.Form, meta Metadata) {
	form.Field("userId", meta.UserID)
	if meta.AlbumID != "" {
		form.Field("albumId", meta.AlbumID)
	}
	form.Field("tags", meta.Tags)
}

// Search returns photos whose tags contain query.
func (g *Gateway) Search(ctx context.Context, query string) ([]models.Photo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return api.Call[[]models.Photo](ctx, g.client, http.MethodGet, "/photos/search?query="+url.QueryEscape(query), nil)
}

// FetchImage downloads the image bytes of a photo with the bearer header.
func (g *Gateway) FetchImage(ctx context.Context, photoID string) ([]byte, string, error) {
	resp, err := g.client.Do(ctx, http.MethodGet, imagePath(photoID), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", photoID, err)
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("image %s exceeds %d bytes", photoID, maxImageSize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ImageURL returns a link to the image that authenticates through the
// token query parameter, for use where headers cannot be set.
func (g *Gateway) ImageURL(photoID string) string {
	u := g.client.URL(imagePath(photoID))
	if token := g.session.Token(); token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func imagePath(photoID string) string {
	return "/photos/image/" + url.PathEscape(photoID)
}
