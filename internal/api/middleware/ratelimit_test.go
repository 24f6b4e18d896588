package middleware

import (
	"testing"
)

const testClient = "10.0.0.1:5000"

// TestRateLimiter_GlobalLimitEnforced verifies that the global limit is
// enforced across all requests regardless of client.
func TestRateLimiter_GlobalLimitEnforced(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewRateLimiter(RateLimitConfig{GlobalRPS: 10, PerClientRPS: 50})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 11; i++ {
		if rl.Allow(testClient) {
			successCount++
		}
	}

	if successCount != 10 {
		t.Errorf("expected 10 successful requests, got %d", successCount)
	}
}

// TestRateLimiter_PerClientLimitEnforced verifies per-client limits are
// enforced independently of the global limit.
func TestRateLimiter_PerClientLimitEnforced(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewRateLimiter(RateLimitConfig{GlobalRPS: 100, PerClientRPS: 5})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 6; i++ {
		if rl.Allow(testClient) {
			successCount++
		}
	}

	if successCount != 5 {
		t.Errorf("expected 5 successful requests, got %d", successCount)
	}
}

// TestRateLimiter_ClientsAreIndependent verifies that one client being
// throttled doesn't affect another's budget.
func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewRateLimiter(RateLimitConfig{GlobalRPS: 100, PerClientRPS: 3})
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.Allow("pod-a") {
			t.Fatalf("expected pod-a request %d to be allowed", i)
		}
	}

	if rl.Allow("pod-a") {
		t.Error("expected pod-a to be throttled after exhausting its budget")
	}

	if !rl.Allow("pod-b") {
		t.Error("expected pod-b to have its own budget")
	}
}
