// Package middleware provides http.RoundTripper wrappers applied to every
// outbound API request: bearer authentication and request logging.
package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// BearerAuth attaches "Authorization: Bearer <token>" when the source holds
// a token. Requests that already carry an Authorization header are left
// alone.
func BearerAuth(tokens TokenSource) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			token := tokens.Token()
			if token == "" || req.Header.Get("Authorization") != "" {
				return next.RoundTrip(req)
			}
			r := req.Clone(req.Context())
			r.Header.Set("Authorization", "Bearer "+token)
			return next.RoundTrip(r)
		})
	}
}

// WithRequestLogging logs method, path, status and duration of each
// request at debug level, and transport failures at warn level.
func WithRequestLogging(logger *zap.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			logger.Debug("request", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}

// Chain wraps base with the given middlewares; the first one runs outermost.
func Chain(base http.RoundTripper, mws ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}
