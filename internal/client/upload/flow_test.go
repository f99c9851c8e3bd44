package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/PhotoKeeper/internal/client/api"
	"github.com/atinyakov/PhotoKeeper/internal/client/photo"
	"github.com/atinyakov/PhotoKeeper/internal/client/session"
	"github.com/atinyakov/PhotoKeeper/internal/models"
	"github.com/atinyakov/PhotoKeeper/internal/testutil/fakeapi"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func newFlow(t *testing.T) (*fakeapi.Server, *Flow, *countingRefresher) {
	t.Helper()
	ctx := context.Background()
	srv := fakeapi.New(t)
	user := srv.AddUser("Ann", "ann@example.com", "pw")

	sc := session.NewContext(session.NewStore(session.NewFileBackend(filepath.Join(t.TempDir(), "s.json"))), zap.NewNop())
	require.NoError(t, sc.Establish(ctx, models.Session{Token: srv.IssueToken(user.Email), User: user}))

	ref := &countingRefresher{}
	gw := photo.NewGateway(api.New(srv.APIURL(), sc), sc)
	return srv, NewFlow(gw, ref, zap.NewNop()), ref
}

func stage(t *testing.T, f *Flow, names ...string) {
	t.Helper()
	for _, name := range names {
		content := "data-" + name
		require.NoError(t, f.StageReader(name, int64(len(content)), func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		}))
	}
}

func names(results []models.UploadResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Name
	}
	return out
}

func TestStaging(t *testing.T) {
	_, f, _ := newFlow(t)
	assert.Equal(t, Idle, f.Stage())

	stage(t, f, "a.jpg", "b.jpg")
	assert.Equal(t, Selecting, f.Stage())

	err := f.StageReader("a.jpg", 1, nil)
	assert.ErrorIs(t, err, ErrDuplicateName)

	staged := f.Staged()
	require.Len(t, staged, 2)
	assert.NotEqual(t, staged[0].ID, staged[1].ID)

	assert.ErrorIs(t, f.Unstage("nope.jpg"), ErrNotStaged)
	require.NoError(t, f.Unstage("a.jpg"))
	assert.Equal(t, Selecting, f.Stage())
	require.NoError(t, f.Unstage("b.jpg"))
	assert.Equal(t, Idle, f.Stage())
}

func TestStagePath(t *testing.T) {
	_, f, _ := newFlow(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("meow"), 0o600))

	require.NoError(t, f.StagePath(path))
	staged := f.Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, "cat.png", staged[0].DisplayName)
	assert.EqualValues(t, 4, staged[0].SizeBytes)

	assert.Error(t, f.StagePath(dir))
	assert.Error(t, f.StagePath(filepath.Join(dir, "missing.png")))
}

func TestSetTags(t *testing.T) {
	_, f, _ := newFlow(t)
	f.SetTags(" sea ,, sun , ")
	assert.Equal(t, "sea,sun", f.Tags())
	f.SetTags("")
	assert.Equal(t, "", f.Tags())
}

func TestUploadSequential_FailedFileDoesNotStopLoop(t *testing.T) {
	srv, f, ref := newFlow(t)
	srv.FailUploads["2.jpg"] = true

	var seen []int
	f.OnProgress(func(_ models.UploadResult, p int) { seen = append(seen, p) })

	stage(t, f, "1.jpg", "2.jpg", "3.jpg")
	require.NoError(t, f.UploadSequential(context.Background()))

	results := f.Results()
	require.Len(t, results, 3)
	assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg"}, names(results))
	assert.Equal(t, models.StatusSuccess, results[0].Status)
	assert.Equal(t, models.StatusError, results[1].Status)
	assert.Equal(t, "storage unavailable", results[1].Err)
	assert.Nil(t, results[1].ServerData)
	assert.Equal(t, models.StatusSuccess, results[2].Status)
	require.NotNil(t, results[2].ServerData)

	assert.Equal(t, []int{33, 67, 100}, seen)
	assert.Equal(t, 100, f.Progress())
	assert.Equal(t, 3, srv.Count("POST /api/photos"))

	assert.Empty(t, f.Staged())
	assert.Equal(t, Done, f.Stage())
	assert.False(t, f.IsUploading())
	assert.EqualValues(t, 1, ref.calls.Load())
}

func TestUploadSequential_SendsMetadata(t *testing.T) {
	srv, f, _ := newFlow(t)
	f.SetTags("sea, sun")
	f.SetAlbum("7")
	stage(t, f, "a.jpg")

	require.NoError(t, f.UploadSequential(context.Background()))

	photos := srv.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "7", photos[0].AlbumID)
	assert.Equal(t, []string{"sea", "sun"}, photos[0].Tags)
	assert.EqualValues(t, len("data-a.jpg"), photos[0].Size)
}

func TestUploadBatch_PreservesOrder(t *testing.T) {
	srv, f, ref := newFlow(t)
	stage(t, f, "c.jpg", "a.jpg", "b.jpg")

	require.NoError(t, f.UploadBatch(context.Background()))

	results := f.Results()
	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, names(results))
	for _, r := range results {
		assert.Equal(t, models.StatusSuccess, r.Status)
		require.NotNil(t, r.ServerData)
	}
	assert.Equal(t, "jpg", results[0].ServerData.Format)
	assert.Equal(t, 100, f.Progress())
	assert.Equal(t, 1, srv.Count("POST /api/photos/batch"))
	assert.Empty(t, f.Staged())
	assert.EqualValues(t, 1, ref.calls.Load())
}

func TestUploadBatch_ShortResponse(t *testing.T) {
	srv, f, _ := newFlow(t)
	srv.BatchLimit = 1
	stage(t, f, "a.jpg", "b.jpg")

	require.NoError(t, f.UploadBatch(context.Background()))

	results := f.Results()
	require.Len(t, results, 2)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names(results))
	assert.Equal(t, models.StatusSuccess, results[0].Status)
	assert.Equal(t, models.StatusError, results[1].Status)
}

func TestUploadBatch_ExtraResponseEntries(t *testing.T) {
	srv, f, _ := newFlow(t)
	srv.BatchExtra = 2
	stage(t, f, "a.jpg")

	require.NoError(t, f.UploadBatch(context.Background()))

	results := f.Results()
	assert.Equal(t, []string{"a.jpg", "File 2", "File 3"}, names(results))
	for _, r := range results {
		assert.Equal(t, models.StatusSuccess, r.Status)
	}
}

func TestUploadBatch_FailureLeavesLogUnchanged(t *testing.T) {
	srv, f, ref := newFlow(t)
	stage(t, f, "a.jpg")
	require.NoError(t, f.UploadSequential(context.Background()))
	before := f.Results()

	srv.FailBatch = true
	stage(t, f, "b.jpg", "c.jpg")
	err := f.UploadBatch(context.Background())
	require.Error(t, err)

	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "batch rejected", reqErr.Message)

	assert.Equal(t, before, f.Results())
	assert.Equal(t, 100, f.Progress())
	assert.Empty(t, f.Staged())
	assert.False(t, f.IsUploading())
	assert.EqualValues(t, 2, ref.calls.Load())
}

func TestUpload_NoFiles(t *testing.T) {
	_, f, ref := newFlow(t)
	assert.ErrorIs(t, f.UploadSequential(context.Background()), ErrNoFiles)
	assert.ErrorIs(t, f.UploadBatch(context.Background()), ErrNoFiles)
	assert.Zero(t, ref.calls.Load())

	// the slot must have been released
	stage(t, f, "a.jpg")
	assert.NoError(t, f.UploadSequential(context.Background()))
}

func TestUpload_UserWithoutID(t *testing.T) {
	ctx := context.Background()
	srv := fakeapi.New(t)
	srv.AddUser("Ann", "ann@example.com", "pw")

	sc := session.NewContext(session.NewStore(session.NewFileBackend(filepath.Join(t.TempDir(), "s.json"))), nil)
	require.NoError(t, sc.Establish(ctx, models.Session{
		Token: srv.IssueToken("ann@example.com"),
		User:  models.User{Name: "Ann", Email: "ann@example.com"},
	}))
	f := NewFlow(photo.NewGateway(api.New(srv.APIURL(), sc), sc), nil, nil)

	stage(t, f, "a.jpg", "b.jpg")
	require.NoError(t, f.UploadSequential(ctx))
	stage(t, f, "c.jpg")
	require.NoError(t, f.UploadBatch(ctx))

	results := f.Results()
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, names(results))
	for _, r := range results {
		assert.Equal(t, models.StatusSuccess, r.Status)
	}
	assert.Empty(t, f.Staged())
	assert.Equal(t, Done, f.Stage())
	for _, p := range srv.Photos() {
		assert.Empty(t, p.UserID)
	}
}

func TestUpload_NoSessionRecordsRejections(t *testing.T) {
	srv := fakeapi.New(t)
	sc := session.NewContext(session.NewStore(session.NewFileBackend(filepath.Join(t.TempDir(), "s.json"))), nil)
	f := NewFlow(photo.NewGateway(api.New(srv.APIURL(), sc), sc), nil, nil)
	stage(t, f, "a.jpg")

	require.NoError(t, f.UploadSequential(context.Background()))

	results := f.Results()
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusError, results[0].Status)
	assert.Equal(t, "invalid or expired token", results[0].Err)
	assert.Empty(t, f.Staged())
	assert.Empty(t, srv.Photos())
}

func TestUpload_SingleInFlight(t *testing.T) {
	srv, f, _ := newFlow(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	srv.UploadHook = func() {
		if once.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
	}

	stage(t, f, "a.jpg")
	done := make(chan error, 1)
	go func() { done <- f.UploadSequential(context.Background()) }()

	<-started
	assert.True(t, f.IsUploading())
	assert.ErrorIs(t, f.UploadSequential(context.Background()), ErrUploadInProgress)
	assert.ErrorIs(t, f.UploadBatch(context.Background()), ErrUploadInProgress)
	assert.ErrorIs(t, f.StageReader("late.jpg", 1, nil), ErrInvalidTransition)
	close(release)

	require.NoError(t, <-done)
	assert.False(t, f.IsUploading())
	assert.Len(t, f.Results(), 1)
}

func TestUpload_RefreshErrorReported(t *testing.T) {
	_, f, ref := newFlow(t)
	ref.err = errors.New("list failed")
	stage(t, f, "a.jpg")

	err := f.UploadSequential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ref.err)
	assert.Len(t, f.Results(), 1)
	assert.Equal(t, Done, f.Stage())
}

func TestStageAfterDone(t *testing.T) {
	_, f, _ := newFlow(t)
	stage(t, f, "a.jpg")
	require.NoError(t, f.UploadSequential(context.Background()))
	require.Equal(t, Done, f.Stage())

	stage(t, f, "a.jpg")
	assert.Equal(t, Selecting, f.Stage())
	require.NoError(t, f.Reset())
	assert.Equal(t, Idle, f.Stage())
	assert.Len(t, f.Results(), 1)
}

func TestMatchBatch(t *testing.T) {
	files := []models.PendingUpload{{DisplayName: "x"}, {DisplayName: "y"}}
	recs := []models.Photo{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	got := MatchBatch(files, recs)
	assert.Equal(t, []string{"x", "y", "File 3"}, names(got))
	assert.Equal(t, "3", got[2].ServerData.ID)

	got = MatchBatch(files, recs[:1])
	assert.Equal(t, []string{"x", "y"}, names(got))
	assert.Equal(t, models.StatusError, got[1].Status)

	assert.Empty(t, MatchBatch(nil, nil))
}

func TestCheckTransition(t *testing.T) {
	assert.NoError(t, checkTransition(Idle, Selecting))
	assert.ErrorIs(t, checkTransition(Idle, Uploading), ErrInvalidTransition)
	assert.ErrorIs(t, checkTransition(Uploading, Selecting), ErrInvalidTransition)
	assert.NoError(t, checkTransition(Uploading, Done))
	assert.Equal(t, "uploading", Uploading.String())
}
