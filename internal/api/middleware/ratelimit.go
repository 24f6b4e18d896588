package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier = 1
	defaultCleanupInterval  = 5 * time.Minute
	defaultIdleTimeout      = 1 * time.Hour
	defaultMaxClients       = 10000
)

// RateLimitConfig configures the two-tier limiter: one bucket for the
// whole coordination core, one per calling pod. A batch job's pods all
// hammer reserve_next_datum and the output endpoints at once; the
// per-client tier keeps one noisy pod from starving the others.
type RateLimitConfig struct {
	GlobalRPS       int
	PerClientRPS    int
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxClients      int
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// RateLimiter enforces the global and per-client token buckets.
type RateLimiter struct {
	global        *rate.Limiter
	perClient     map[string]*clientLimiter
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
	done          chan struct{}

	perClientRPS   int
	perClientBurst int
	idleTimeout    time.Duration
	maxClients     int
}

// NewRateLimiter builds a RateLimiter and starts its idle-client cleanup.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = defaultCleanupInterval
	}

	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
	}

	maxClients := cfg.MaxClients
	if maxClients == 0 {
		maxClients = defaultMaxClients
	}

	rl := &RateLimiter{
		global:         rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalRPS*burstCapacityMultiplier),
		perClient:      make(map[string]*clientLimiter),
		done:           make(chan struct{}),
		perClientRPS:   cfg.PerClientRPS,
		perClientBurst: cfg.PerClientRPS * burstCapacityMultiplier,
		idleTimeout:    idleTimeout,
		maxClients:     maxClients,
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()

	return rl
}

// Allow reports whether a request from clientKey (the pod's remote IP)
// passes both the global and per-client limits.
func (rl *RateLimiter) Allow(clientKey string) bool {
	if !rl.global.Allow() {
		return false
	}

	rl.mu.RLock()
	cl, ok := rl.perClient[clientKey]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if cl, ok = rl.perClient[clientKey]; !ok {
			if len(rl.perClient) >= rl.maxClients {
				rl.mu.Unlock()
				return rl.global.Allow()
			}

			cl = &clientLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.perClientRPS), rl.perClientBurst),
				lastAccess: time.Now(),
			}
			rl.perClient[clientKey] = cl
		}
		rl.mu.Unlock()
	}

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}

func (rl *RateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, cl := range rl.perClient {
		cl.mu.Lock()
		lastAccess := cl.lastAccess
		cl.mu.Unlock()

		if now.Sub(lastAccess) > rl.idleTimeout {
			delete(rl.perClient, key)
		}
	}
}

// RateLimit returns a middleware enforcing limiter against each request's
// remote address, rendering RFC 7807 on rejection.
func RateLimit(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !limiter.Allow(host) {
				correlationID := GetCorrelationID(r.Context())

				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)

				body := `{"type":"https://falconeri.io/problems/429","title":"Too Many Requests",` +
					`"status":429,"detail":"rate limit exceeded","correlationId":"` + correlationID + `"}`

				if _, err := w.Write([]byte(body)); err != nil {
					logger.Error("failed to write rate limit response",
						slog.String("correlation_id", correlationID),
						slog.String("error", err.Error()),
					)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
