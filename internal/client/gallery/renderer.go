// Package gallery resolves the user's photos into local image files and
// lays them out in columns.
package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/PhotoKeeper/internal/models"
)

// Source lists photos and fetches their bytes. *photo.Gateway implements it.
type Source interface {
	List(ctx context.Context) ([]models.Photo, error)
	FetchImage(ctx context.Context, photoID string) ([]byte, string, error)
}

// Image is one resolved photo. Handle is the blob file path, empty when
// the image could not be fetched and a placeholder is shown instead.
type Image struct {
	Photo       models.Photo
	Handle      string
	ContentType string
}

// Placeholder reports whether the image failed to resolve.
func (i Image) Placeholder() bool {
	return i.Handle == ""
}

// Renderer holds the images of the latest refresh cycle.
type Renderer struct {
	source Source
	dir    string
	log    *zap.Logger

	mu     sync.Mutex
	images []Image
	live   map[string]struct{}
}

// NewRenderer creates dir if needed and returns an empty Renderer.
func NewRenderer(source Source, dir string, log *zap.Logger) (*Renderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Renderer{
		source: source,
		dir:    dir,
		log:    log,
		live:   map[string]struct{}{},
	}, nil
}

// Refresh re-fetches the photo list and resolves every image. On a list
// failure the previous cycle is kept and the error returned.
func (r *Renderer) Refresh(ctx context.Context) error {
	photos, err := r.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list photos: %w", err)
	}
	r.Show(ctx, photos)
	return nil
}

// Show replaces the current cycle with photos, in the given order. Images
// are fetched one after another; a failed fetch yields a placeholder. The
// previous cycle stays valid until the new one is complete.
func (r *Renderer) Show(ctx context.Context, photos []models.Photo) {
	images := make([]Image, 0, len(photos))
	live := make(map[string]struct{}, len(photos))
	for _, p := range photos {
		img := Image{Photo: p}
		handle, contentType, err := r.resolve(ctx, p.ID)
		if err != nil {
			r.log.Warn("image unavailable", zap.String("photo", p.ID), zap.Error(err))
		} else {
			img.Handle, img.ContentType = handle, contentType
			live[handle] = struct{}{}
		}
		images = append(images, img)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
	r.images = images
	r.live = live
}

func (r *Renderer) resolve(ctx context.Context, photoID string) (string, string, error) {
	data, contentType, err := r.source.FetchImage(ctx, photoID)
	if err != nil {
		return "", "", err
	}
	path := filepath.Join(r.dir, uuid.NewString()+".blob")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("write blob: %w", err)
	}
	return path, contentType, nil
}

// Images returns the current cycle in server order.
func (r *Renderer) Images() []Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Image(nil), r.images...)
}

// Columns lays the current cycle out in DefaultColumns columns.
func (r *Renderer) Columns() [][]Image {
	return Columns(r.Images(), DefaultColumns)
}

// InUse reports whether path is a live handle. The blob sweeper uses it to
// skip files this process still shows.
func (r *Renderer) InUse(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[path]
	return ok
}

// Close releases every live handle.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
	r.images = nil
	return nil
}

func (r *Renderer) releaseLocked() {
	for path := range r.live {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.Warn("failed to release image", zap.String("path", path), zap.Error(err))
		}
		delete(r.live, path)
	}
}
