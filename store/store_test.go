package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"watchtower/alert"
	"watchtower/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testAlert(name string) alert.Alert {
	return alert.Alert{
		Annotations: alert.Annotations{Message: "something broke"},
		Labels:      alert.Labels{Severity: "critical", AlertName: name},
	}
}

func openTestStore(t *testing.T, engine storage.Engine, clock *fakeClock) *AlertStore {
	t.Helper()
	s, err := Open(context.Background(), engine, zap.NewNop().Sugar(), WithClock(clock.Now))
	require.NoError(t, err)
	return s
}

func TestInsertAllocatesSequentialIDs(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)

	ids, err := s.Insert(context.Background(), []alert.Alert{testAlert("A"), testAlert("B")})
	require.NoError(t, err)
	require.Equal(t, []alert.ID{1, 2}, ids)

	more, err := s.Insert(context.Background(), []alert.Alert{testAlert("C")})
	require.NoError(t, err)
	assert.Equal(t, []alert.ID{3}, more)
}

func TestIDSequenceSurvivesReopen(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	engine := storage.NewMemoryEngine()
	ctx := context.Background()

	s := openTestStore(t, engine, clock)
	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A"), testAlert("B")})
	require.NoError(t, err)

	// Acked alerts count toward the maximum too.
	_, _, err = s.Acknowledge(ctx, ids[1], alert.ChatUser("dana"), 0)
	require.NoError(t, err)

	reopened := openTestStore(t, engine, clock)
	more, err := reopened.Insert(ctx, []alert.Alert{testAlert("C")})
	require.NoError(t, err)
	assert.Equal(t, []alert.ID{3}, more, "ids must stay unique across restarts")
}

func TestPendingDue(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()
	interval := 5 * time.Minute

	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A")})
	require.NoError(t, err)

	// Never-notified alerts are immediately due.
	due, err := s.PendingDue(ctx, interval)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, uint(0), due[0].Level)

	require.NoError(t, s.Advance(ctx, ids[0], 1))

	// Freshly notified alerts are not due again yet.
	due, err = s.PendingDue(ctx, interval)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(interval)
	due, err = s.PendingDue(ctx, interval)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, uint(1), due[0].Level)
}

func TestPendingDueClockBehindNotificationStamp(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()
	interval := 5 * time.Minute

	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A")})
	require.NoError(t, err)
	require.NoError(t, s.Advance(ctx, ids[0], 1))

	// A clock step backwards leaves the notification stamp in the future.
	// The unsigned age computation must not wrap and report the alert due.
	clock.Advance(-time.Minute)
	due, err := s.PendingDue(ctx, interval)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(time.Minute + interval)
	due, err = s.PendingDue(ctx, interval)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestPendingDueOrdering(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()

	_, err := s.Insert(ctx, []alert.Alert{testAlert("first")})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.Insert(ctx, []alert.Alert{testAlert("second"), testAlert("third")})
	require.NoError(t, err)

	due, err := s.PendingDue(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "first", due[0].Alert.Labels.AlertName)
	assert.Equal(t, "second", due[1].Alert.Labels.AlertName)
	assert.Equal(t, "third", due[2].Alert.Labels.AlertName)
}

func TestAdvance(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()

	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A")})
	require.NoError(t, err)
	id := ids[0]

	require.NoError(t, s.Advance(ctx, id, 1))
	require.NoError(t, s.Advance(ctx, id, 2))

	// The level never goes backwards.
	err = s.Advance(ctx, id, 1)
	assert.Error(t, err)

	// Unknown ids are reported as not found.
	err = s.Advance(ctx, alert.ID(999), 1)
	assert.Error(t, err)
}

func TestAdvanceAfterAckReportsAckedInFlight(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()

	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A")})
	require.NoError(t, err)
	id := ids[0]

	require.NoError(t, s.Advance(ctx, id, 1))

	outcome, _, err := s.Acknowledge(ctx, id, alert.ChatUser("dana"), 0)
	require.NoError(t, err)
	require.Equal(t, AckAcknowledged, outcome)

	// The scheduler's advance for a dispatch that raced the ack is discarded.
	err = s.Advance(ctx, id, 2)
	assert.ErrorIs(t, err, ErrAckedInFlight)
}

func TestAcknowledge(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()
	user := alert.ChatUser("dana")

	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A")})
	require.NoError(t, err)
	id := ids[0]
	require.NoError(t, s.Advance(ctx, id, 2))

	outcome, ctxt, err := s.Acknowledge(ctx, id, user, 1)
	require.NoError(t, err)
	assert.Equal(t, AckAcknowledged, outcome)
	require.NotNil(t, ctxt.AckedBy)
	assert.Equal(t, user, *ctxt.AckedBy)
	require.NotNil(t, ctxt.AckedOnLevel)
	assert.Equal(t, uint(1), *ctxt.AckedOnLevel)
	assert.Equal(t, uint(2), ctxt.Level, "ack freezes the level reached so far")

	// Repeating the ack is an idempotent success.
	outcome, ctxt, err = s.Acknowledge(ctx, id, alert.ChatUser("casey"), 0)
	require.NoError(t, err)
	assert.Equal(t, AckAlreadyAcked, outcome)
	assert.Equal(t, user, *ctxt.AckedBy, "the first acknowledger wins")

	// Acked alerts leave the pending set for good.
	due, err := s.PendingDue(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	outcome, _, err = s.Acknowledge(ctx, alert.ID(404), user, 0)
	require.NoError(t, err)
	assert.Equal(t, AckNotFound, outcome)
}

func TestPendingSnapshotAndCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := openTestStore(t, storage.NewMemoryEngine(), clock)
	ctx := context.Background()

	ids, err := s.Insert(ctx, []alert.Alert{testAlert("A"), testAlert("B")})
	require.NoError(t, err)

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, _, err = s.Acknowledge(ctx, ids[0], alert.ChatUser("dana"), 0)
	require.NoError(t, err)

	snapshot, err := s.PendingSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, ids[1], snapshot[0].ID)
}
