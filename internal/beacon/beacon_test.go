package beacon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/shiftsync/internal/queue"
)

func TestFlushPostsActionsInOrder(t *testing.T) {
	var received flushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sync", r.URL.Path)
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSender(srv.URL, "token-1", nil)
	actions := []queue.QueuedAction{
		{ID: "a-1", Type: queue.ActionClockIn, ClientTimestamp: "2025-11-09T08:00:00Z", QueuedAt: time.Now().UnixMilli()},
		{ID: "a-2", Type: queue.ActionClockOut, ClientTimestamp: "2025-11-09T12:00:00Z", QueuedAt: time.Now().UnixMilli()},
	}

	require.True(t, sender.Flush(actions))
	require.Len(t, received.Actions, 2)
	require.Equal(t, "clock_in", received.Actions[0].Type)
	require.Equal(t, "2025-11-09T08:00:00Z", received.Actions[0].ClientTimestamp)
	require.Equal(t, "clock_out", received.Actions[1].Type)
}

func TestFlushEmptyQueueSkipsRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	sender := NewSender(srv.URL, "token-1", nil)
	require.True(t, sender.Flush(nil))
	require.Zero(t, calls)
}

func TestFlushReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sender := NewSender(srv.URL, "token-1", nil)
	accepted := sender.Flush([]queue.QueuedAction{
		{ID: "a-1", Type: queue.ActionClockIn, ClientTimestamp: "2025-11-09T08:00:00Z"},
	})
	require.False(t, accepted)
}
