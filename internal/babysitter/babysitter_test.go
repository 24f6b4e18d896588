package babysitter

import (
	"testing"
	"time"
)

func TestJitterStaysWithinTwentyPercent(t *testing.T) {
	base := 2 * time.Minute
	lower := time.Duration(float64(base) * 0.8)
	upper := time.Duration(float64(base) * 1.2)

	for i := 0; i < 200; i++ {
		d := jitter(base)
		if d < lower || d > upper {
			t.Fatalf("jitter(%v) = %v, want within [%v, %v]", base, d, lower, upper)
		}
	}
}

func TestNewAppliesOptions(t *testing.T) {
	b := New(nil, nil, nil, nil, WithPeriod(time.Minute), WithVanishedGrace(5*time.Minute))

	if b.period != time.Minute {
		t.Fatalf("period = %v, want 1m", b.period)
	}

	if b.vanishedGrace != 5*time.Minute {
		t.Fatalf("vanishedGrace = %v, want 5m", b.vanishedGrace)
	}
}
