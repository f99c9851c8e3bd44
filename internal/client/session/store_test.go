package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/PhotoKeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "session.json")
	return NewStore(NewFileBackend(path)), path
}

// failingBackend rejects every write.
type failingBackend struct {
	Backend
}

func (failingBackend) PutAll(context.Context, map[string]string) error {
	return errors.New("read-only")
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	sess := models.Session{
		Token: "tok-1",
		User:  models.User{ID: int64Ptr(7), Name: "Ann", Email: "ann@example.com"},
	}
	require.NoError(t, store.Save(ctx, sess))

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess, got)

	authed, err := store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, authed)

	// both keys are in the document, user serialized as a string value
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "tok-1", doc[KeyToken])
	assert.JSONEq(t, `{"id":7,"name":"Ann","email":"ann@example.com"}`, doc[KeyUser])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStore_SaveRejectsEmptyToken(t *testing.T) {
	store, _ := newFileStore(t)
	err := store.Save(context.Background(), models.Session{User: models.User{Name: "x"}})
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestStore_LoadMissing(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	authed, err := store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, authed)
}

func TestStore_LoadCorruptUser(t *testing.T) {
	ctx := context.Background()
	backend := NewFileBackend(filepath.Join(t.TempDir(), "session.json"))
	store := NewStore(backend)

	require.NoError(t, backend.PutAll(ctx, map[string]string{KeyToken: "tok", KeyUser: "{not json"}))

	_, ok, err := store.Load(ctx)
	require.NoError(t, err, "a bad user value is treated as absent")
	assert.False(t, ok)

	// token presence alone still counts
	authed, err := store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, authed)
}

func TestStore_LoadCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	_, ok, err := NewStore(NewFileBackend(path)).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	require.NoError(t, store.Save(ctx, models.Session{Token: "t", User: models.User{Name: "n"}}))
	require.NoError(t, store.Clear(ctx))

	authed, err := store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, authed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotContains(t, doc, KeyToken)
	assert.NotContains(t, doc, KeyUser)

	// clearing twice is harmless
	assert.NoError(t, store.Clear(ctx))
}

func TestStore_FailedSaveKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	backend := NewFileBackend(filepath.Join(t.TempDir(), "session.json"))
	prev := models.Session{Token: "old", User: models.User{Name: "old"}}
	require.NoError(t, NewStore(backend).Save(ctx, prev))

	store := NewStore(failingBackend{Backend: backend})
	err := store.Save(ctx, models.Session{Token: "new", User: models.User{Name: "new"}})
	require.Error(t, err)

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, prev, got)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		driver string
		dsn    string
	}{
		{"file", filepath.Join(dir, "session.json")},
		{"sqlite3", filepath.Join(dir, "session.db")},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			store, closer, err := Open(tt.driver, tt.dsn)
			require.NoError(t, err)
			defer closer.Close()

			sess := models.Session{Token: "abc", User: models.User{Name: "Bo", Email: "bo@example.com"}}
			require.NoError(t, store.Save(ctx, sess))

			got, ok, err := store.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, sess, got)

			require.NoError(t, store.Clear(ctx))
			authed, err := store.IsAuthenticated(ctx)
			require.NoError(t, err)
			assert.False(t, authed)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open("redis", "localhost")
	assert.Error(t, err)
}
