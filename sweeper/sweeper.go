// Package sweeper is the housekeeping job: it expires active sessions past
// their deadline and purges terminated ones past the retention window. Both
// operations are set-based conditional updates, so any number of workers can
// run them concurrently without corrupting other fields.
package sweeper

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/sentinel/internal/metrics"
)

// Store is the slice of the session repository the sweeper mutates.
type Store interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	PurgeTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	DefaultInterval  = time.Minute
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultProbability is the 1-in-N per-request trigger used by
	// deployments that cannot run the timer loop.
	DefaultProbability = 100
)

// Sweeper runs the periodic housekeeping pass.
type Sweeper struct {
	sessions    Store
	interval    time.Duration
	retention   time.Duration
	probability int
	now         func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) { s.retention = d }
}

func WithProbability(n int) Option {
	return func(s *Sweeper) { s.probability = n }
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(sessions Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		sessions:    sessions,
		interval:    DefaultInterval,
		retention:   DefaultRetention,
		probability: DefaultProbability,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on a timer until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Session sweep failed")
			}
		}
	}
}

// Sweep performs one idempotent housekeeping pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now().UTC()

	expired, err := s.sessions.ExpireStale(ctx, now)
	if err != nil {
		return err
	}
	metrics.SessionsExpiredTotal.Add(float64(expired))

	purged, err := s.sessions.PurgeTerminatedBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}
	metrics.SessionsPurgedTotal.Add(float64(purged))

	if expired > 0 || purged > 0 {
		log.Info().Int64("expired", expired).Int64("purged", purged).Msg("Session sweep completed")
	}
	return nil
}

// MaybeSweep triggers a sweep with 1-in-probability odds. Failures are
// logged and swallowed so the hosting request is never affected.
func (s *Sweeper) MaybeSweep(ctx context.Context) {
	if s.probability <= 0 || rand.Intn(s.probability) != 0 {
		return
	}
	if err := s.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("Session sweep failed")
	}
}
