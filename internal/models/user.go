// Package models defines the data structures exchanged with the photo API
// and kept by the client between runs.
package models

// User is the read-only copy of the account returned by the API.
type User struct {
	// ID is assigned by the server. Older registrations may omit it.
	ID *int64 `json:"id,omitempty"`
	// Name is the display name chosen at registration.
	Name string `json:"name"`
	// Email is the login identifier.
	Email string `json:"email"`
}

// Session pairs the bearer token with the user it was issued for.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterRequest is the body of POST /auth/register.
// The API names the plaintext password field passwordHash.
type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// AuthResponse is returned by both auth endpoints.
type AuthResponse struct {
	User    User   `json:"user"`
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the error body used by the API. Some endpoints send
// the text under "error" instead of "message".
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
