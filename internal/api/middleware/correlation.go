// Package middleware provides HTTP middleware components for the
// Falconeri coordination core's REST facade.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
	"unsafe"
)

const (
	correlationIDSize   = 8
	correlationIDLength = 16
)

type correlationIDKey struct{}

// CorrelationID adds a correlation ID to each request, reusing an
// inbound X-Correlation-ID header when present.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = generateCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

func generateCorrelationID() string {
	buf := make([]byte, correlationIDSize)
	if _, err := rand.Read(buf); err != nil {
		timestamp := time.Now().UnixNano()
		ptr := &timestamp
		//nolint:gosec // G103: pointer address used only as fallback entropy
		entropy := uintptr(unsafe.Pointer(ptr))

		combined := fmt.Sprintf("%x%x", timestamp, entropy)
		if len(combined) > correlationIDLength {
			return combined[:correlationIDLength]
		}

		return fmt.Sprintf("%-*s", correlationIDLength, combined)
	}

	return hex.EncodeToString(buf)
}
