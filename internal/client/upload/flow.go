// Package upload stages files and submits them to the photo API one by one
// or as a single batch, keeping an append-only log of per-file outcomes.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/atinyakov/PhotoKeeper/internal/client/api"
	"github.com/atinyakov/PhotoKeeper/internal/client/photo"
	"github.com/atinyakov/PhotoKeeper/internal/models"
)

var (
	// ErrUploadInProgress is returned when an upload is already running.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrNoFiles is returned when uploading with nothing staged.
	ErrNoFiles = errors.New("no files selected")
	// ErrDuplicateName is returned when staging a name already staged.
	ErrDuplicateName = errors.New("a file with this name is already selected")
	// ErrNotStaged is returned when unstaging an unknown name.
	ErrNotStaged = errors.New("file is not selected")
)

// Uploader submits files. *photo.Gateway implements it.
type Uploader interface {
	OwnerID() string
	Upload(ctx context.Context, file photo.File, meta photo.Metadata) (models.Photo, error)
	BatchUpload(ctx context.Context, files []photo.File, meta photo.Metadata) ([]models.Photo, error)
}

// Refresher reloads the gallery after an upload.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ProgressFunc observes progress after each recorded result.
type ProgressFunc func(result models.UploadResult, percent int)

// Flow owns the staged selection and the result log of one dashboard.
type Flow struct {
	uploader  Uploader
	refresher Refresher
	log       *zap.Logger
	inFlight  *semaphore.Weighted

	mu         sync.Mutex
	stage      Stage
	staged     []models.PendingUpload
	tags       string
	albumID    string
	results    []models.UploadResult
	progress   int
	onProgress ProgressFunc
}

// NewFlow returns an idle Flow. refresher may be nil.
func NewFlow(uploader Uploader, refresher Refresher, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		uploader:  uploader,
		refresher: refresher,
		log:       log,
		inFlight:  semaphore.NewWeighted(1),
	}
}

// OnProgress registers fn to run after every recorded result.
func (f *Flow) OnProgress(fn ProgressFunc) {
	f.mu.Lock()
	f.onProgress = fn
	f.mu.Unlock()
}

// StagePath stages a file from disk under its base name.
func (f *Flow) StagePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("stage %s: is a directory", path)
	}
	return f.StageReader(filepath.Base(path), info.Size(), func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// StageReader stages a file whose contents come from open.
func (f *Flow) StageReader(name string, size int64, open func() (io.ReadCloser, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := checkTransition(f.stage, Selecting); err != nil {
		return err
	}
	if slices.ContainsFunc(f.staged, func(p models.PendingUpload) bool { return p.DisplayName == name }) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	f.staged = append(f.staged, models.PendingUpload{
		ID:          uuid.NewString(),
		DisplayName: name,
		SizeBytes:   size,
		Open:        open,
	})
	f.stage = Selecting
	return nil
}

// Unstage removes a staged file by display name.
func (f *Flow) Unstage(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := slices.IndexFunc(f.staged, func(p models.PendingUpload) bool { return p.DisplayName == name })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotStaged, name)
	}
	next := Selecting
	if len(f.staged) == 1 {
		next = Idle
	}
	if err := checkTransition(f.stage, next); err != nil {
		return err
	}
	f.staged = slices.Delete(f.staged, i, i+1)
	f.stage = next
	return nil
}

// Reset drops the selection. The result log is kept.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stage == Idle {
		return nil
	}
	if err := checkTransition(f.stage, Idle); err != nil {
		return err
	}
	f.staged = nil
	f.stage = Idle
	return nil
}

// SetTags sets the comma-delimited tag list shared by the next upload.
// Blank entries are dropped and surrounding spaces trimmed.
func (f *Flow) SetTags(raw string) {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	f.mu.Lock()
	f.tags = strings.Join(tags, ",")
	f.mu.Unlock()
}

// Tags returns the normalized tag list.
func (f *Flow) Tags() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags
}

// SetAlbum sets the album id for the next upload; "" means none.
func (f *Flow) SetAlbum(id string) {
	f.mu.Lock()
	f.albumID = strings.TrimSpace(id)
	f.mu.Unlock()
}

// Staged returns the current selection in selection order.
func (f *Flow) Staged() []models.PendingUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.staged)
}

// Results returns the result log.
func (f *Flow) Results() []models.UploadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.results)
}

// Progress returns the percentage of files completed in the current or
// last upload.
func (f *Flow) Progress() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress
}

// Stage returns the current stage.
func (f *Flow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// IsUploading reports whether an upload is in flight.
func (f *Flow) IsUploading() bool {
	return f.Stage() == Uploading
}

// UploadSequential sends the staged files one request at a time, in
// selection order. A failed file is recorded and the loop continues; only
// precondition failures and the gallery refresh are returned as errors.
func (f *Flow) UploadSequential(ctx context.Context) (err error) {
	files, meta, err := f.begin()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.finish(ctx)) }()

	total := len(files)
	for i, p := range files {
		res := models.UploadResult{Name: p.DisplayName}
		rec, upErr := f.uploader.Upload(ctx, photo.File{Name: p.DisplayName, Open: p.Open}, meta)
		if upErr != nil {
			f.log.Warn("upload failed", zap.String("file", p.DisplayName), zap.Error(upErr))
			res.Status = models.StatusError
			res.Err = api.Message(upErr, upErr.Error())
		} else {
			res.Status = models.StatusSuccess
			res.ServerData = &rec
		}
		f.record(percent(i+1, total), res)
	}
	return nil
}

// UploadBatch sends all staged files in one request. Progress reaches 100
// once the request finishes. On failure no per-file results are recorded
// and the error is returned.
//
// The response is matched to the selection by position. Staged files past
// the end of a short response are recorded as errors under their own
// names; surplus response entries are recorded as "File N" (1-based).
func (f *Flow) UploadBatch(ctx context.Context) (err error) {
	files, meta, err := f.begin()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.finish(ctx)) }()

	batch := make([]photo.File, len(files))
	for i, p := range files {
		batch[i] = photo.File{Name: p.DisplayName, Open: p.Open}
	}

	records, err := f.uploader.BatchUpload(ctx, batch, meta)
	if err != nil {
		f.log.Warn("batch upload failed", zap.Int("files", len(files)), zap.Error(err))
		f.mu.Lock()
		f.progress = 100
		f.mu.Unlock()
		return fmt.Errorf("batch upload: %w", err)
	}

	for _, res := range MatchBatch(files, records) {
		f.record(100, res)
	}
	return nil
}

// MatchBatch maps a batch response onto the staged files by position.
func MatchBatch(files []models.PendingUpload, records []models.Photo) []models.UploadResult {
	n := max(len(files), len(records))
	out := make([]models.UploadResult, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(files) && i < len(records):
			rec := records[i]
			out = append(out, models.UploadResult{Name: files[i].DisplayName, Status: models.StatusSuccess, ServerData: &rec})
		case i < len(files):
			out = append(out, models.UploadResult{Name: files[i].DisplayName, Status: models.StatusError, Err: "missing from batch response"})
		default:
			rec := records[i]
			out = append(out, models.UploadResult{Name: fmt.Sprintf("File %d", i+1), Status: models.StatusSuccess, ServerData: &rec})
		}
	}
	return out
}

// begin takes the in-flight slot and snapshots the selection.
func (f *Flow) begin() ([]models.PendingUpload, photo.Metadata, error) {
	if !f.inFlight.TryAcquire(1) {
		return nil, photo.Metadata{}, ErrUploadInProgress
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.staged) == 0 {
		f.inFlight.Release(1)
		return nil, photo.Metadata{}, ErrNoFiles
	}
	if err := checkTransition(f.stage, Uploading); err != nil {
		f.inFlight.Release(1)
		return nil, photo.Metadata{}, err
	}
	f.stage = Uploading
	f.progress = 0

	meta := photo.Metadata{UserID: f.uploader.OwnerID(), AlbumID: f.albumID, Tags: f.tags}
	return slices.Clone(f.staged), meta, nil
}

// finish clears the selection, leaves the Uploading stage, releases the
// in-flight slot and refreshes the gallery. It runs whatever the outcome.
func (f *Flow) finish(ctx context.Context) error {
	f.mu.Lock()
	f.staged = nil
	f.stage = Done
	f.mu.Unlock()
	f.inFlight.Release(1)

	if f.refresher == nil {
		return nil
	}
	if err := f.refresher.Refresh(ctx); err != nil {
		f.log.Warn("gallery refresh after upload failed", zap.Error(err))
		return fmt.Errorf("refresh gallery: %w", err)
	}
	return nil
}

func (f *Flow) record(progress int, res models.UploadResult) {
	f.mu.Lock()
	f.results = append(f.results, res)
	f.progress = progress
	fn := f.onProgress
	f.mu.Unlock()

	if fn != nil {
		fn(res, progress)
	}
}

func percent(done, total int) int {
	return int(math.Round(100 * float64(done) / float64(total)))
}
