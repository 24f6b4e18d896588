// Package babysitter runs the coordination core's single background
// reconciliation loop: three independent passes that detect vanished
// batch jobs, zombie datums, and retry-eligible errored datums, and bring
// the database's logical state back in line with the orchestrator's true
// state of the worker fleet.
package babysitter

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/falconeri/falconeri/internal/events"
	"github.com/falconeri/falconeri/internal/orchestrator"
	"github.com/falconeri/falconeri/internal/store"
)

// DefaultPeriod is the fixed base period between reconciliation ticks
// (spec.md §4.6).
const DefaultPeriod = 2 * time.Minute

// DefaultVanishedGrace is how long a Job may sit Running with no
// corresponding batch job before Pass 1 considers it vanished.
const DefaultVanishedGrace = 15 * time.Minute

// jitterFraction bounds the ±20% randomisation applied to every tick.
const jitterFraction = 0.2

// Babysitter owns the reconciliation loop. It is a single cooperative
// task: passes run serially, one period's passes always complete (or
// fail, logged) before the next tick is scheduled, so Pass 3's
// delete-then-requeue is never raced against itself.
type Babysitter struct {
	store        *store.Store
	orchestrator orchestrator.Orchestrator
	publisher    events.Publisher
	log          *slog.Logger

	period        time.Duration
	vanishedGrace time.Duration
	now           func() time.Time
	jitter        func(time.Duration) time.Duration
}

// Option configures a Babysitter.
type Option func(*Babysitter)

// WithPeriod overrides DefaultPeriod.
func WithPeriod(d time.Duration) Option {
	return func(b *Babysitter) { b.period = d }
}

// WithVanishedGrace overrides DefaultVanishedGrace.
func WithVanishedGrace(d time.Duration) Option {
	return func(b *Babysitter) { b.vanishedGrace = d }
}

// New builds a Babysitter.
func New(s *store.Store, orch orchestrator.Orchestrator, publisher events.Publisher, log *slog.Logger, opts ...Option) *Babysitter {
	b := &Babysitter{
		store:         s,
		orchestrator:  orch,
		publisher:     publisher,
		log:           log,
		period:        DefaultPeriod,
		vanishedGrace: DefaultVanishedGrace,
		now:           time.Now,
		jitter:        jitter,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// jitter randomises d by ±20%, the way a polling loop spreads load across
// many coordinator replicas instead of ticking in lockstep.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta //nolint:gosec // reconciliation jitter, not security-sensitive

	return d + time.Duration(offset)
}

// Run blocks, ticking every period (±jitter) until ctx is cancelled. Each
// tick runs all three passes in order; a failing pass is logged and does
// not stop the loop or the remaining passes.
func (b *Babysitter) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(b.jitter(b.period))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			b.tick(ctx)
		}
	}
}

func (b *Babysitter) tick(ctx context.Context) {
	if err := b.PassVanishedJobs(ctx); err != nil {
		b.log.Error("babysitter pass vanished jobs", "error", err)
	}

	if err := b.PassZombieDatums(ctx); err != nil {
		b.log.Error("babysitter pass zombie datums", "error", err)
	}

	if err := b.PassRetryAdmission(ctx); err != nil {
		b.log.Error("babysitter pass retry admission", "error", err)
	}
}
