package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// publicEndpoints lists paths that bypass Basic auth (health/version
// probes). Only register endpoints with no business logic here.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint marks path as exempt from authentication.
func RegisterPublicEndpoint(path string) {
	publicEndpoints[path] = true
}

// dummyPasswordHash is a well-formed bcrypt hash, so comparing against it
// costs a full bcrypt evaluation rather than failing on the hash format.
var dummyPasswordHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost) //nolint: gochecknoglobals

// performDummyBcryptComparison keeps authentication's timing constant
// across the "no credentials supplied" and "wrong password" paths.
func performDummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte("dummy"))
}

// BasicAuth requires HTTP Basic credentials matching user against a
// bcrypt hash of the configured password, on every path not registered
// as public.
func BasicAuth(user string, passwordHash []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			gotUser, gotPassword, ok := r.BasicAuth()
			if !ok {
				performDummyBcryptComparison()
				writeUnauthorized(w, r, logger, "missing credentials")

				return
			}

			if subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) != 1 {
				performDummyBcryptComparison()
				writeUnauthorized(w, r, logger, "invalid credentials")

				return
			}

			if err := bcrypt.CompareHashAndPassword(passwordHash, []byte(gotPassword)); err != nil {
				writeUnauthorized(w, r, logger, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("correlation_id", GetCorrelationID(r.Context())),
		slog.String("path", r.URL.Path),
	)

	w.Header().Set("WWW-Authenticate", `Basic realm="falconeri"`)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401}`))
}
