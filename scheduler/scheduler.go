// Package scheduler drives pending alerts through their escalation tiers.
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"watchtower/adapter"
	"watchtower/alert"
	"watchtower/metrics"
	"watchtower/store"
)

// Config holds the scheduler options.
type Config struct {
	// Interval is both the tick period and the per-alert escalation
	// interval: an alert escalates when its last notification is at least
	// this old.
	Interval time.Duration
	// CallTimeout bounds one adapter call; it should stay below Interval.
	CallTimeout time.Duration
}

// Scheduler is the periodic controller that selects due alerts, dispatches
// tier notifications to every adapter, and persists the advanced tier.
type Scheduler struct {
	store       *store.AlertStore
	adapters    []adapter.Adapter
	interval    time.Duration
	callTimeout time.Duration
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics

	// tickMutex enforces non-overlapping ticks; a tick that cannot take the
	// lock is skipped, never queued.
	tickMutex sync.Mutex
}

// New creates a scheduler over the store and the registered adapters.
func New(cfg Config, alertStore *store.AlertStore, adapters []adapter.Adapter, m *metrics.Metrics, log *zap.SugaredLogger) *Scheduler {
	if cfg.CallTimeout <= 0 || cfg.CallTimeout > cfg.Interval {
		cfg.CallTimeout = cfg.Interval
	}
	return &Scheduler{
		store:       alertStore,
		adapters:    adapters,
		interval:    cfg.Interval,
		callTimeout: cfg.CallTimeout,
		log:         log,
		metrics:     m,
	}
}

// Run ticks immediately and then on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infow("escalation scheduler started", "interval", s.interval)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("escalation scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one escalation pass. Overlapping calls are skipped so at most
// one dispatch round is ever in flight.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMutex.TryLock() {
		s.log.Warn("previous escalation tick still running, skipping")
		return
	}
	defer s.tickMutex.Unlock()

	due, err := s.store.PendingDue(ctx, s.interval)
	if err != nil {
		s.log.Errorw("failed to select due alerts", "error", err)
		return
	}
	if pending, err := s.store.PendingCount(ctx); err == nil {
		s.metrics.PendingAlerts.Set(float64(pending))
	}
	if len(due) == 0 {
		return
	}

	for _, c := range due {
		s.escalate(ctx, c)
	}
}

// escalate dispatches one alert's current tier to every adapter, then
// persists the advanced tier. Notification is at-least-once: a crash between
// dispatch and advance retransmits on the next tick, and the adapters
// deduplicate where their backend allows it.
func (s *Scheduler) escalate(ctx context.Context, c *alert.Context) {
	next := c.Level

	for _, a := range s.adapters {
		tier := c.LevelFor(string(a.Name()), next)

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := a.Notify(callCtx, alert.AlertNotification(c.Clone()), tier)
		cancel()

		if err != nil {
			// A failing adapter neither halts dispatch to the others nor
			// prevents the advance below.
			s.log.Errorw("adapter notification failed",
				"adapter", a.Name(),
				"alert_id", c.ID,
				"tier", tier,
				"error", err)
			s.metrics.AdapterErrors.WithLabelValues(string(a.Name())).Inc()
		}
	}

	s.metrics.Escalations.WithLabelValues(strconv.FormatUint(uint64(next), 10)).Inc()

	if err := s.store.Advance(ctx, c.ID, next+1); err != nil {
		if err == store.ErrAckedInFlight {
			s.log.Infow("alert acknowledged during dispatch, discarding escalation",
				"alert_id", c.ID)
			return
		}
		s.log.Errorw("failed to advance alert", "alert_id", c.ID, "error", err)
	}
}
