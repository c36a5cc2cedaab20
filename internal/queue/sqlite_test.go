package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)

	first := QueuedAction{
		ID:              "a-1",
		Type:            ActionClockIn,
		ClientTimestamp: time.Now().UTC().Format(time.RFC3339),
		QueuedAt:        time.Now().UnixMilli(),
	}
	second := first
	second.ID = "a-2"
	second.Type = ActionClockOut
	second.QueuedAt++

	require.NoError(t, store.Enqueue(first))
	require.NoError(t, store.Enqueue(second))
	require.NoError(t, store.IncrementRetry(first.ID))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	actions, err := reopened.ListAll()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, "a-1", actions[0].ID)
	require.Equal(t, 1, actions[0].RetryCount)
	require.Equal(t, "a-2", actions[1].ID)
}

func TestSQLiteStoreEnqueueIsIdempotent(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	defer store.Close()

	action := QueuedAction{
		ID:              "a-1",
		Type:            ActionClockIn,
		ClientTimestamp: time.Now().UTC().Format(time.RFC3339),
		QueuedAt:        time.Now().UnixMilli(),
	}
	require.NoError(t, store.Enqueue(action))
	require.NoError(t, store.Enqueue(action))

	actions, err := store.ListAll()
	require.NoError(t, err)
	require.Len(t, actions, 1)
}

func TestSQLiteStoreDequeueAndClear(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	defer store.Close()

	for _, id := range []string{"a-1", "a-2", "a-3"} {
		require.NoError(t, store.Enqueue(QueuedAction{
			ID:              id,
			Type:            ActionClockIn,
			ClientTimestamp: time.Now().UTC().Format(time.RFC3339),
			QueuedAt:        time.Now().UnixMilli(),
		}))
	}

	require.NoError(t, store.Dequeue("a-2"))
	actions, err := store.ListAll()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, "a-1", actions[0].ID)
	require.Equal(t, "a-3", actions[1].ID)

	require.NoError(t, store.Clear())
	actions, err = store.ListAll()
	require.NoError(t, err)
	require.Empty(t, actions)
}
