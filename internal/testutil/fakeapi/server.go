// Package fakeapi is an in-memory stand-in for the remote photo API, used
// by tests of the client packages.
package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/atinyakov/PhotoKeeper/internal/models"
)

type account struct {
	user     models.User
	password string
}

// Server serves the photo API under /api.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	accounts map[string]*account // by email
	tokens   map[string]string   // token -> email
	photos   []models.Photo
	images   map[string][]byte // photo id -> bytes

	// RegisterWithoutToken makes /auth/register omit the token.
	RegisterWithoutToken bool
	// FailUploads lists file names /photos rejects with 500.
	FailUploads map[string]bool
	// FailBatch makes /photos/batch answer 500.
	FailBatch bool
	// BatchLimit caps the number of records /photos/batch returns (0 = no cap).
	BatchLimit int
	// BatchExtra appends that many extra records to /photos/batch responses.
	BatchExtra int
	// FailImages lists photo ids whose image endpoint answers 404.
	FailImages map[string]bool
	// UploadHook runs at the start of every upload request.
	UploadHook func()

	// Requests counts requests by "METHOD /pattern".
	Requests map[string]int
}

// New starts a Server. It is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		accounts:    map[string]*account{},
		tokens:      map[string]string{},
		images:      map[string][]byte{},
		FailUploads: map[string]bool{},
		FailImages:  map[string]bool{},
		Requests:    map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/photos/user/{userID}", s.listPhotos)
			r.Post("/photos", s.upload)
			r.Post("/photos/batch", s.batchUpload)
			r.Get("/photos/search", s.search)
			r.Get("/photos/image/{photoID}", s.image)
		})
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL clients should use.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// AddUser creates an account and returns it.
func (s *Server) AddUser(name, email, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(name, email, password)
}

func (s *Server) addUserLocked(name, email, password string) models.User {
	s.nextID++
	id := s.nextID
	u := models.User{ID: &id, Name: name, Email: email}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

// IssueToken returns a valid token for email.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email)
}

func (s *Server) issueLocked(email string) string {
	token := uuid.NewString()
	s.tokens[token] = email
	return token
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

// AddPhoto stores a photo with image bytes and returns it.
func (s *Server) AddPhoto(userID int64, tags []string, image []byte) models.Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPhotoLocked(strconv.FormatInt(userID, 10), "", tags, "photo.jpg", image)
}

func (s *Server) addPhotoLocked(userID, albumID string, tags []string, name string, image []byte) models.Photo {
	id := uuid.NewString()
	format := "jpeg"
	if i := strings.LastIndex(name, "."); i >= 0 {
		format = strings.ToLower(name[i+1:])
	}
	p := models.Photo{
		ID:         id,
		UserID:     userID,
		AlbumID:    albumID,
		GcsURL:     "gs://photos/" + id,
		UploadedOn: time.Now().UTC().Truncate(time.Second),
		Tags:       tags,
		Size:       int64(len(image)),
		Format:     format,
	}
	s.photos = append(s.photos, p)
	s.images[id] = image
	return p
}

// Photos returns a copy of every stored record.
func (s *Server) Photos() []models.Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Photo(nil), s.photos...)
}

// Count returns how many requests matched "METHOD /pattern".
func (s *Server) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Requests[key]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		s.mu.Lock()
		s.Requests[r.Method+" "+pattern]++
		s.mu.Unlock()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Message: msg})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.PasswordHash == "" {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		writeMessage(w, http.StatusConflict, "Email already registered")
		return
	}
	u := s.addUserLocked(req.Name, req.Email, req.PasswordHash)
	resp := models.AuthResponse{User: u}
	if !s.RegisterWithoutToken {
		resp.Token = s.issueLocked(req.Email)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[req.Email]
	if !ok || acc.password != req.PasswordHash {
		// no body, so clients fall back to their own wording
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{User: acc.user, Token: s.issueLocked(req.Email)})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		s.mu.Lock()
		_, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listPhotos(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	out := []models.Photo{}
	for _, p := range s.photos {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.UploadHook != nil {
		s.UploadHook()
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUploads[header.Filename] {
		writeMessage(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	p := s.addPhotoLocked(r.FormValue("userId"), r.FormValue("albumId"), splitTags(r.FormValue("tags")), header.Filename, data)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) batchUpload(w http.ResponseWriter, r *http.Request) {
	if s.UploadHook != nil {
		s.UploadHook()
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid form")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailBatch {
		writeMessage(w, http.StatusInternalServerError, "batch rejected")
		return
	}

	tags := splitTags(r.FormValue("tags"))
	out := []models.Photo{}
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			continue
		}
		data, _ := io.ReadAll(f)
		f.Close()
		out = append(out, s.addPhotoLocked(r.FormValue("userId"), r.FormValue("albumId"), tags, fh.Filename, data))
	}
	for i := 0; i < s.BatchExtra; i++ {
		out = append(out, s.addPhotoLocked(r.FormValue("userId"), r.FormValue("albumId"), tags, "extra.jpg", nil))
	}
	if s.BatchLimit > 0 && len(out) > s.BatchLimit {
		out = out[:s.BatchLimit]
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	s.mu.Lock()
	out := []models.Photo{}
	for _, p := range s.photos {
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				out = append(out, p)
				break
			}
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "photoID")
	s.mu.Lock()
	data, ok := s.images[id]
	fail := s.FailImages[id]
	s.mu.Unlock()
	if !ok || fail {
		writeMessage(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}
