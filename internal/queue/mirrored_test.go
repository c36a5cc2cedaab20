package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMirroredEnqueueWritesBothStores(t *testing.T) {
	primary := NewMemoryStore()
	mirror := NewMemoryStore()
	q := NewMirrored(primary, mirror, nil)

	action, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, action.ID)

	fromPrimary, err := primary.ListAll()
	require.NoError(t, err)
	fromMirror, err := mirror.ListAll()
	require.NoError(t, err)
	require.Len(t, fromPrimary, 1)
	require.Len(t, fromMirror, 1)
	require.Equal(t, fromPrimary[0].ID, fromMirror[0].ID)
}

func TestMirroredPreservesEnqueueOrder(t *testing.T) {
	q := NewMirrored(NewMemoryStore(), nil, nil)

	in, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)
	out, err := q.Enqueue(ActionClockOut, time.Now().Add(time.Minute))
	require.NoError(t, err)

	actions, err := q.ListAll()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, in.ID, actions[0].ID)
	require.Equal(t, out.ID, actions[1].ID)
}

func TestMirroredClearPrimaryKeepsMirror(t *testing.T) {
	primary := NewMemoryStore()
	mirror := NewMemoryStore()
	q := NewMirrored(primary, mirror, nil)

	_, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)

	require.NoError(t, q.ClearPrimary())
	require.Equal(t, 0, q.PendingCount())

	fromMirror, err := mirror.ListAll()
	require.NoError(t, err)
	require.Len(t, fromMirror, 1)
}

func TestMirroredRepopulateRestoresExactlyOnce(t *testing.T) {
	primary := NewMemoryStore()
	mirror := NewMemoryStore()
	q := NewMirrored(primary, mirror, nil)

	first, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)
	require.NoError(t, q.ClearPrimary())

	restored, err := q.Repopulate()
	require.NoError(t, err)
	require.Equal(t, 1, restored)
	require.Equal(t, 1, q.PendingCount())

	// A second repopulate finds nothing missing; no duplicates appear.
	restored, err = q.Repopulate()
	require.NoError(t, err)
	require.Equal(t, 0, restored)

	actions, err := q.ListAll()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, first.ID, actions[0].ID)
}

func TestMirroredDequeueRemovesFromBoth(t *testing.T) {
	primary := NewMemoryStore()
	mirror := NewMemoryStore()
	q := NewMirrored(primary, mirror, nil)

	action, err := q.Enqueue(ActionClockOut, time.Now())
	require.NoError(t, err)
	require.NoError(t, q.Dequeue(action.ID))

	require.Equal(t, 0, q.PendingCount())
	fromMirror, err := mirror.ListAll()
	require.NoError(t, err)
	require.Empty(t, fromMirror)

	// The mirror holds nothing, so a restart restores nothing.
	restored, err := q.Repopulate()
	require.NoError(t, err)
	require.Equal(t, 0, restored)
}

func TestMirroredNotifiesSubscribers(t *testing.T) {
	q := NewMirrored(NewMemoryStore(), nil, nil)

	ch, cancel := q.Subscribe()
	defer cancel()

	_, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification after enqueue")
	}
}

func TestMirroredAcknowledgeDropsConfirmedIDs(t *testing.T) {
	mirror := NewMemoryStore()
	q := NewMirrored(NewMemoryStore(), mirror, nil)

	confirmed, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)
	kept, err := q.Enqueue(ActionClockOut, time.Now().Add(time.Minute))
	require.NoError(t, err)

	q.Acknowledge(confirmed.ID)

	actions, err := q.ListAll()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, kept.ID, actions[0].ID)

	fromMirror, err := mirror.ListAll()
	require.NoError(t, err)
	require.Len(t, fromMirror, 1)
}

func TestMirroredIncrementRetry(t *testing.T) {
	q := NewMirrored(NewMemoryStore(), NewMemoryStore(), nil)

	action, err := q.Enqueue(ActionClockIn, time.Now())
	require.NoError(t, err)

	require.NoError(t, q.IncrementRetry(action.ID))
	require.NoError(t, q.IncrementRetry(action.ID))

	actions, err := q.ListAll()
	require.NoError(t, err)
	require.Equal(t, 2, actions[0].RetryCount)
}
