package middleware

import (
	"log/slog"
	"net/http"
)

// Option applies middleware to a handler.
type Option func(http.Handler) http.Handler

// Apply chains options around handler, first option outermost.
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithCorrelationID adds correlation-ID middleware.
func WithCorrelationID() Option {
	return func(next http.Handler) http.Handler { return CorrelationID()(next) }
}

// WithRecovery adds panic-recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return Recovery(logger)(next) }
}

// WithBasicAuth adds HTTP Basic auth middleware.
func WithBasicAuth(user string, passwordHash []byte, logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return BasicAuth(user, passwordHash, logger)(next) }
}

// WithRequestLogger adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return RequestLogger(logger)(next) }
}

// WithRateLimit adds rate-limiting middleware.
func WithRateLimit(limiter *RateLimiter, logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return RateLimit(limiter, logger)(next) }
}
