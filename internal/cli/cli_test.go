package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/PhotoKeeper/internal/client/auth"
	"github.com/atinyakov/PhotoKeeper/internal/testutil/fakeapi"
)

type env struct {
	srv *fakeapi.Server
	dir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Chdir(t.TempDir())
	return &env{srv: fakeapi.New(t), dir: t.TempDir()}
}

func (e *env) blobDir() string {
	return filepath.Join(e.dir, "blobs")
}

func (e *env) run(stdin string, args ...string) (string, error) {
	full := append([]string{}, args...)
	full = append(full,
		"--api-url", e.srv.APIURL(),
		"--store-dsn", filepath.Join(e.dir, "session.json"),
		"--blob-dir", e.blobDir(),
	)
	var out bytes.Buffer
	err := Run(context.Background(), BuildInfo{Version: "1.2.3", Date: "2026-10-18"}, full, Streams{
		In:  strings.NewReader(stdin),
		Out: &out,
		Err: &out,
	})
	return out.String(), err
}

func (e *env) login(t *testing.T) {
	t.Helper()
	e.srv.AddUser("Ann", "ann@example.com", "pw")
	_, err := e.run("pw\n", "login", "--email", "ann@example.com")
	require.NoError(t, err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, err := e.run("", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1.2.3")
	assert.Contains(t, out, "Build Date: 2026-10-18")
}

func TestRegisterWhoamiLogout(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("Ann\nann@example.com\npw\npw\n", "register")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered and logged in as ann@example.com")

	out, err = e.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ann <ann@example.com> (id 1)")

	_, err = e.run("", "login")
	assert.ErrorIs(t, err, ErrAlreadyLoggedIn)

	out, err = e.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = e.run("", "whoami")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestRegister_LoginPolicy(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("pw\npw\n", "register", "--name", "Ann", "--email", "ann@example.com", "--register-policy", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered ann@example.com. Log in to continue.")

	_, err = e.run("", "whoami")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("Ann\nann@example.com\npw\nother\n", "register")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	assert.Zero(t, e.srv.Count("POST /api/auth/register"))
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t)
	e.srv.AddUser("Ann", "ann@example.com", "pw")

	_, err := e.run("nope\n", "login", "--email", "ann@example.com")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())

	_, err = e.run("", "whoami")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestProtectedCommandsRequireLogin(t *testing.T) {
	e := newEnv(t)
	file := writeFile(t, "a.jpg", "x")

	for _, args := range [][]string{
		{"photos"},
		{"gallery"},
		{"search", "beach"},
		{"upload", file},
		{"url", "abc"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := e.run("", args...)
			assert.ErrorIs(t, err, ErrLoginRequired)
		})
	}
	assert.Zero(t, e.srv.Count("POST /api/photos"))
}

func TestUploadSequentialAndGallery(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.srv.FailUploads["b.jpg"] = true

	out, err := e.run("", "upload", writeFile(t, "a.jpg", "AAA"), writeFile(t, "b.jpg", "BBB"), "--tags", "sea, sun")
	require.EqualError(t, err, "1 of 2 uploads failed")
	assert.Contains(t, out, "[ 50%]")
	assert.Contains(t, out, "[100%]")
	assert.Contains(t, out, "storage unavailable")
	assert.Contains(t, out, "Progress: 100%, gallery has 1 photos")

	out, err = e.run("", "gallery")
	require.NoError(t, err)
	assert.Contains(t, out, "Your photos (1)")
	assert.Contains(t, out, "tags: sea, sun")

	entries, err := os.ReadDir(e.blobDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGallery_Keep(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.srv.AddPhoto(1, nil, []byte("img"))

	_, err := e.run("", "gallery", "--keep")
	require.NoError(t, err)

	entries, err := os.ReadDir(e.blobDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadBatch(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run("", "upload", "--batch", writeFile(t, "a.jpg", "A"), writeFile(t, "b.jpg", "B"))
	require.NoError(t, err)
	assert.Equal(t, 1, e.srv.Count("POST /api/photos/batch"))
	assert.Less(t, strings.Index(out, "a.jpg"), strings.Index(out, "b.jpg"))
	assert.Len(t, e.srv.Photos(), 2)
}

func TestSearchAndPhotos(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	beach := e.srv.AddPhoto(1, []string{"beach"}, []byte("b"))
	e.srv.AddPhoto(1, []string{"city"}, []byte("c"))

	out, err := e.run("", "search", "beach")
	require.NoError(t, err)
	assert.Contains(t, out, `Results for "beach" (1)`)
	assert.Contains(t, out, beach.ID[:8])

	out, err = e.run("", "photos")
	require.NoError(t, err)
	assert.Contains(t, out, beach.ID)

	out, err = e.run("", "photos", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"tags": [`)
}

func TestURL(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run("", "url", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, e.srv.APIURL()+"/photos/image/abc?token=")
}

func TestExpiredSessionIsCleared(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.srv.RevokeAll()

	_, err := e.run("", "gallery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")

	_, err = e.run("", "whoami")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestShell_ProtectedViewReturnsAfterLogin(t *testing.T) {
	e := newEnv(t)
	e.srv.AddUser("Ann", "ann@example.com", "pw")
	e.srv.AddPhoto(1, []string{"beach"}, []byte("b"))

	out, err := e.run("search beach\nann@example.com\npw\nwhoami\nexit\n", "shell")
	require.NoError(t, err)

	login := strings.Index(out, "Please log in to continue.")
	loggedIn := strings.Index(out, "Logged in as ann@example.com")
	results := strings.Index(out, `Results for "beach"`)
	require.True(t, login >= 0 && loggedIn > login && results > loggedIn, out)
	assert.Contains(t, out, "Ann <ann@example.com> (id 1)")
	assert.Contains(t, out, "Bye")
}

func TestShell_LoggedInSkipsLogin(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run("login\nexit\n", "shell")
	require.NoError(t, err)
	assert.NotContains(t, out, "Email:")
	assert.Contains(t, out, "Dashboard of Ann")
	assert.Contains(t, out, "No photos yet.")
}

func TestShell_BadLoginStaysOnForm(t *testing.T) {
	e := newEnv(t)
	e.srv.AddUser("Ann", "ann@example.com", "pw")

	out, err := e.run("login\nann@example.com\nwrong\nwhoami\n", "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid email or password")
	assert.Contains(t, out, "Not logged in")
}

func TestShell_UploadFlow(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	a := writeFile(t, "a.jpg", "A")
	b := writeFile(t, "b.jpg", "B")

	script := strings.Join([]string{
		"select " + a + " " + b,
		"unselect b.jpg",
		"tags sea,, sun",
		"upload",
		"exit",
	}, "\n") + "\n"
	out, err := e.run(script, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Tags: sea,sun")
	assert.Contains(t, out, "[100%]")

	photos := e.srv.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, []string{"sea", "sun"}, photos[0].Tags)
}

func TestShell_UnknownInput(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("go /albums\nfrobnicate\nhelp\n", "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Page not found: /albums")
	assert.Contains(t, out, "Unknown command.")
	assert.Contains(t, out, "Views:")
}
