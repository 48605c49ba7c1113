// Package store owns all persistent alert state. It is the single writer for
// alert contexts and the authoritative source for escalation decisions.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"watchtower/alert"
	"watchtower/errors"
	"watchtower/storage"
)

// Pending and acked contexts live in separate key ranges so the scheduler's
// due-scan never touches resolved alerts.
const (
	pendingPrefix = "pending."
	ackedPrefix   = "acked."
)

// AckOutcome is the result of an acknowledgement attempt.
type AckOutcome int

const (
	// AckAcknowledged means this call transitioned the alert to acked.
	AckAcknowledged AckOutcome = iota
	// AckNotFound means the id does not exist.
	AckNotFound
	// AckAlreadyAcked means the alert was acked before this call.
	AckAlreadyAcked
)

// ErrAckedInFlight is returned by Advance when an acknowledgement won the
// race; the caller must discard the escalation effect.
var ErrAckedInFlight = fmt.Errorf("alert acknowledged while escalation was in flight")

// Option configures an AlertStore.
type Option func(*AlertStore)

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *AlertStore) { s.now = now }
}

// AlertStore persists alert contexts on a storage engine. All writes are
// serialised through the store's own lock; concurrent readers are fine.
type AlertStore struct {
	engine storage.Engine
	log    *zap.SugaredLogger

	mutex  sync.Mutex
	nextID alert.ID
	now    func() time.Time
}

// Open creates a store over the engine and seeds the id sequence from the
// current maximum in storage, so ids stay unique across process restarts.
func Open(ctx context.Context, engine storage.Engine, log *zap.SugaredLogger, opts ...Option) (*AlertStore, error) {
	s := &AlertStore{
		engine: engine,
		log:    log,
		nextID: 1,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	maxID := alert.ID(0)
	for _, prefix := range []string{pendingPrefix, ackedPrefix} {
		entries, err := engine.List(ctx, prefix)
		if err != nil {
			return nil, errors.E(errors.KindStorage, "store.Open", err)
		}
		for _, entry := range entries {
			ctxt, err := decodeContext(entry.Value)
			if err != nil {
				log.Errorw("skipping undecodable alert context", "key", entry.Key, "error", err)
				continue
			}
			if ctxt.ID > maxID {
				maxID = ctxt.ID
			}
		}
	}
	s.nextID = maxID + 1

	log.Infow("alert store opened", "next_id", s.nextID)
	return s, nil
}

// Insert persists the given alerts, allocating a fresh id for each. Writes
// are atomic per alert; on failure the already-written prefix stays and the
// ids written so far are returned alongside the error.
func (s *AlertStore) Insert(ctx context.Context, alerts []alert.Alert) ([]alert.ID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := uint64(s.now().Unix())
	inserted := make([]alert.ID, 0, len(alerts))

	for _, a := range alerts {
		id := s.nextID
		ctxt := alert.NewContext(id, a, now)
		if err := s.put(ctx, pendingKey(id), ctxt); err != nil {
			return inserted, errors.E(errors.KindStorage, "store.Insert", err)
		}
		s.nextID++
		inserted = append(inserted, id)
		s.log.Infow("alert inserted",
			"alert_id", id,
			"alertname", a.Labels.AlertName,
			"severity", a.Labels.Severity)
	}
	return inserted, nil
}

// PendingDue returns every un-acked context that has never been notified or
// whose last notification is at least interval old, ordered by insertion time
// and tie-broken by id.
func (s *AlertStore) PendingDue(ctx context.Context, interval time.Duration) ([]*alert.Context, error) {
	contexts, err := s.listPending(ctx)
	if err != nil {
		return nil, err
	}

	now := uint64(s.now().Unix())
	due := make([]*alert.Context, 0, len(contexts))
	for _, c := range contexts {
		if c.Acked() {
			continue
		}
		if c.LastNotified == nil {
			due = append(due, c)
			continue
		}
		// The comparison is unsigned; a notification stamp ahead of the clock
		// must read as not-due, not wrap around.
		if last := *c.LastNotified; now >= last && now-last >= uint64(interval.Seconds()) {
			due = append(due, c)
		}
	}
	sortContexts(due)
	return due, nil
}

// Advance moves an alert to a new escalation level and stamps the
// notification time from the store's own clock, keeping the stamp in the same
// time domain PendingDue compares against. The write is rejected with
// ErrAckedInFlight when an acknowledgement has meanwhile landed, and never
// lowers the level.
func (s *AlertStore) Advance(ctx context.Context, id alert.ID, newLevel uint) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ctxt, err := s.get(ctx, pendingKey(id))
	if err != nil {
		if err == storage.ErrKeyNotFound {
			if s.exists(ctx, ackedKey(id)) {
				return ErrAckedInFlight
			}
			return errors.Errorf(errors.KindNotFound, "store.Advance", "alert %s not found", id)
		}
		return errors.E(errors.KindStorage, "store.Advance", err)
	}
	if ctxt.Acked() {
		return ErrAckedInFlight
	}
	if newLevel < ctxt.Level {
		return errors.Errorf(errors.KindStorage, "store.Advance",
			"refusing to lower level of alert %s from %d to %d", id, ctxt.Level, newLevel)
	}

	tmsp := uint64(s.now().Unix())
	if tmsp < ctxt.Inserted {
		tmsp = ctxt.Inserted
	}
	ctxt.Level = newLevel
	ctxt.LastNotified = &tmsp

	if err := s.put(ctx, pendingKey(id), ctxt); err != nil {
		return errors.E(errors.KindStorage, "store.Advance", err)
	}
	return nil
}

// Acknowledge marks an alert as acked by the user iff it exists and is not
// acked yet. A repeat ack reports AckAlreadyAcked; the returned context is
// the post-ack state for Acknowledged and AlreadyAcked outcomes.
func (s *AlertStore) Acknowledge(ctx context.Context, id alert.ID, user alert.User, lvl uint) (AckOutcome, *alert.Context, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ctxt, err := s.get(ctx, pendingKey(id))
	if err != nil {
		if err == storage.ErrKeyNotFound {
			acked, ackedErr := s.get(ctx, ackedKey(id))
			if ackedErr == nil {
				return AckAlreadyAcked, acked, nil
			}
			if ackedErr == storage.ErrKeyNotFound {
				return AckNotFound, nil, nil
			}
			return AckNotFound, nil, errors.E(errors.KindStorage, "store.Acknowledge", ackedErr)
		}
		return AckNotFound, nil, errors.E(errors.KindStorage, "store.Acknowledge", err)
	}
	if ctxt.Acked() {
		return AckAlreadyAcked, ctxt, nil
	}

	ctxt.AckedBy = &user
	ctxt.AckedOnLevel = &lvl

	// Write the acked copy before removing the pending one; a crash between
	// the two leaves a duplicate that Acknowledge and Advance both resolve in
	// favour of the acked range.
	if err := s.put(ctx, ackedKey(id), ctxt); err != nil {
		return AckNotFound, nil, errors.E(errors.KindStorage, "store.Acknowledge", err)
	}
	if err := s.engine.Delete(ctx, pendingKey(id)); err != nil {
		return AckNotFound, nil, errors.E(errors.KindStorage, "store.Acknowledge", err)
	}

	s.log.Infow("alert acknowledged", "alert_id", id, "user", user.String(), "level", lvl)
	return AckAcknowledged, ctxt, nil
}

// PendingSnapshot returns all un-acked contexts, ordered like PendingDue.
func (s *AlertStore) PendingSnapshot(ctx context.Context) ([]*alert.Context, error) {
	contexts, err := s.listPending(ctx)
	if err != nil {
		return nil, err
	}
	sortContexts(contexts)
	return contexts, nil
}

// PendingCount returns the number of un-acked alerts, used by metrics.
func (s *AlertStore) PendingCount(ctx context.Context) (int, error) {
	contexts, err := s.listPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(contexts), nil
}

func (s *AlertStore) listPending(ctx context.Context) ([]*alert.Context, error) {
	entries, err := s.engine.List(ctx, pendingPrefix)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.listPending", err)
	}
	contexts := make([]*alert.Context, 0, len(entries))
	for _, entry := range entries {
		ctxt, err := decodeContext(entry.Value)
		if err != nil {
			s.log.Errorw("skipping undecodable alert context", "key", entry.Key, "error", err)
			continue
		}
		contexts = append(contexts, ctxt)
	}
	return contexts, nil
}

func (s *AlertStore) put(ctx context.Context, key string, c *alert.Context) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize alert context: %w", err)
	}
	return s.engine.Put(ctx, key, data)
}

func (s *AlertStore) get(ctx context.Context, key string) (*alert.Context, error) {
	data, err := s.engine.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeContext(data)
}

func (s *AlertStore) exists(ctx context.Context, key string) bool {
	_, err := s.engine.Get(ctx, key)
	return err == nil
}

func decodeContext(data []byte) (*alert.Context, error) {
	var c alert.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to deserialize alert context: %w", err)
	}
	return &c, nil
}

func sortContexts(contexts []*alert.Context) {
	sort.Slice(contexts, func(i, j int) bool {
		if contexts[i].Inserted != contexts[j].Inserted {
			return contexts[i].Inserted < contexts[j].Inserted
		}
		return contexts[i].ID < contexts[j].ID
	})
}

func pendingKey(id alert.ID) string {
	return fmt.Sprintf("%s%020d", pendingPrefix, uint64(id))
}

func ackedKey(id alert.ID) string {
	return fmt.Sprintf("%s%020d", ackedPrefix, uint64(id))
}
