// Package auth registers and logs users in against the photo API and keeps
// the resulting session in the session.Context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/atinyakov/PhotoKeeper/internal/client/api"
	"github.com/atinyakov/PhotoKeeper/internal/client/session"
	"github.com/atinyakov/PhotoKeeper/internal/models"
	"go.uber.org/zap"
)

const (
	pathRegister = "/auth/register"
	pathLogin    = "/auth/login"

	msgRegisterFailed = "Registration failed"
	msgLoginFailed    = "Invalid email or password"
)

// RegisterPolicy decides whether a successful registration logs the user in.
type RegisterPolicy string

const (
	// PolicyEstablishSession persists the session returned by registration.
	PolicyEstablishSession RegisterPolicy = "session"
	// PolicyRequireLogin discards it; the user logs in separately.
	PolicyRequireLogin RegisterPolicy = "login"
)

// ErrInvalidInput is wrapped by validation failures.
var ErrInvalidInput = errors.New("invalid input")

// AuthError is a rejected registration or login. Message is safe to show
// next to the form.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// Gateway exposes the auth operations.
type Gateway struct {
	client  *api.Client
	session *session.Context
	policy  RegisterPolicy
	log     *zap.Logger
}

// NewGateway returns a Gateway. An empty policy means PolicyEstablishSession.
func NewGateway(client *api.Client, sess *session.Context, policy RegisterPolicy, log *zap.Logger) *Gateway {
	if policy == "" {
		policy = PolicyEstablishSession
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{client: client, session: sess, policy: policy, log: log}
}

// RegisterResult is the outcome of a registration.
type RegisterResult struct {
	User models.User
	// Session is set when the policy established one.
	Session *models.Session
}

// Register creates an account. Depending on the policy, the returned
// session is persisted and the user is logged in.
func (g *Gateway) Register(ctx context.Context, name, email, password string) (RegisterResult, error) {
	if err := validateCredentials(email, password); err != nil {
		return RegisterResult{}, &AuthError{Op: "register", Message: err.Error(), Err: err}
	}
	if strings.TrimSpace(name) == "" {
		err := fmt.Errorf("%w: name is required", ErrInvalidInput)
		return RegisterResult{}, &AuthError{Op: "register", Message: err.Error(), Err: err}
	}

	resp, err := api.Call[models.AuthResponse](ctx, g.client, http.MethodPost, pathRegister, api.JSON(models.RegisterRequest{
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		PasswordHash: password,
	}))
	if err != nil {
		return RegisterResult{}, &AuthError{Op: "register", Message: api.Message(err, msgRegisterFailed), Err: err}
	}

	result := RegisterResult{User: resp.User}
	if g.policy != PolicyEstablishSession {
		return result, nil
	}
	if resp.Token == "" {
		g.log.Warn("registration response carried no token, login required", zap.String("email", resp.User.Email))
		return result, nil
	}

	sess := models.Session{Token: resp.Token, User: resp.User}
	if err := g.session.Establish(ctx, sess); err != nil {
		return RegisterResult{}, fmt.Errorf("persist session: %w", err)
	}
	result.Session = &sess
	return result, nil
}

// Login exchanges credentials for a session and persists it. On failure the
// stored session is left untouched.
func (g *Gateway) Login(ctx context.Context, email, password string) (models.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return models.Session{}, &AuthError{Op: "login", Message: err.Error(), Err: err}
	}

	resp, err := api.Call[models.AuthResponse](ctx, g.client, http.MethodPost, pathLogin, api.JSON(models.LoginRequest{
		Email:        strings.TrimSpace(email),
		PasswordHash: password,
	}))
	if err != nil {
		return models.Session{}, &AuthError{Op: "login", Message: api.Message(err, msgLoginFailed), Err: err}
	}
	if resp.Token == "" {
		return models.Session{}, &AuthError{Op: "login", Message: msgLoginFailed, Err: errors.New("response carried no token")}
	}

	sess := models.Session{Token: resp.Token, User: resp.User}
	if err := g.session.Establish(ctx, sess); err != nil {
		return models.Session{}, fmt.Errorf("persist session: %w", err)
	}
	g.log.Info("logged in", zap.String("email", sess.User.Email))
	return sess, nil
}

// Logout clears the stored session. No request is sent.
func (g *Gateway) Logout(ctx context.Context) error {
	return g.session.End(ctx)
}

// CurrentUser returns the stored user without contacting the server.
func (g *Gateway) CurrentUser() (models.User, bool) {
	return g.session.User()
}

// IsAuthenticated reports whether a token is stored.
func (g *Gateway) IsAuthenticated() bool {
	return g.session.IsAuthenticated()
}

// ValidateRegistration checks the registration form before submitting it.
func ValidateRegistration(name, email, password, confirm string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateCredentials(email, password); err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}
	return nil
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidInput, email)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return nil
}
