package agent

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/shiftsync/internal/queue"
)

type flushAction struct {
	Type            string `json:"type"`
	ClientTimestamp string `json:"client_timestamp"`
}

type flushRequest struct {
	Actions []flushAction `json:"actions"`
}

type flushRecorder struct {
	mu       sync.Mutex
	status   int
	requests []flushRequest
}

func (f *flushRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/sync" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req flushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status := f.status
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (f *flushRecorder) received() []flushRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]flushRequest(nil), f.requests...)
}

func newTestApp(t *testing.T, baseURL string) *App {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Server.BaseURL = baseURL
	cfg.Server.Token = "test-token"
	cfg.Storage.QueuePath = filepath.Join(t.TempDir(), "queue.db")

	app, err := NewApp(&cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestSuspendFlushClearsPrimaryAndKeepsMirror(t *testing.T) {
	recorder := &flushRecorder{}
	srv := httptest.NewServer(recorder)
	defer srv.Close()

	app := newTestApp(t, srv.URL)

	now := time.Now().UTC()
	_, err := app.store.Enqueue(queue.ActionClockIn, now)
	require.NoError(t, err)
	_, err = app.store.Enqueue(queue.ActionClockOut, now.Add(time.Minute))
	require.NoError(t, err)

	app.Suspend()

	requests := recorder.received()
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Actions, 2)
	require.Equal(t, "clock_in", requests[0].Actions[0].Type)
	require.Equal(t, "clock_out", requests[0].Actions[1].Type)

	// The accepted flush empties the live queue but the durable mirror
	// keeps its copy until a real sync pass confirms delivery.
	require.Equal(t, 0, app.store.PendingCount())
	mirrored, err := app.sqlite.ListAll()
	require.NoError(t, err)
	require.Len(t, mirrored, 2)
}

func TestSuspendFlushNotAcceptedKeepsQueue(t *testing.T) {
	recorder := &flushRecorder{status: http.StatusBadGateway}
	srv := httptest.NewServer(recorder)
	defer srv.Close()

	app := newTestApp(t, srv.URL)

	_, err := app.store.Enqueue(queue.ActionClockIn, time.Now().UTC())
	require.NoError(t, err)

	app.Suspend()

	require.Len(t, recorder.received(), 1)
	require.Equal(t, 1, app.store.PendingCount())
}

func TestSuspendFlushesOnlyOnce(t *testing.T) {
	recorder := &flushRecorder{}
	srv := httptest.NewServer(recorder)
	defer srv.Close()

	app := newTestApp(t, srv.URL)

	_, err := app.store.Enqueue(queue.ActionClockIn, time.Now().UTC())
	require.NoError(t, err)

	app.Suspend()
	app.Suspend()

	require.Len(t, recorder.received(), 1)
}

func TestSuspendWithEmptyQueueSkipsFlush(t *testing.T) {
	recorder := &flushRecorder{}
	srv := httptest.NewServer(recorder)
	defer srv.Close()

	app := newTestApp(t, srv.URL)
	app.Suspend()

	require.Empty(t, recorder.received())
}

func TestResumeRestoresMirrorEntriesAfterFlush(t *testing.T) {
	recorder := &flushRecorder{}
	srv := httptest.NewServer(recorder)
	defer srv.Close()

	app := newTestApp(t, srv.URL)

	queued, err := app.store.Enqueue(queue.ActionClockIn, time.Now().UTC())
	require.NoError(t, err)

	app.Suspend()
	require.Equal(t, 0, app.store.PendingCount())

	app.Resume(context.Background())

	require.Equal(t, 1, app.store.PendingCount())
	restored, err := app.store.ListAll()
	require.NoError(t, err)
	require.Len(t, restored, 1)
	require.Equal(t, queued.ID, restored[0].ID)

	// A second suspend after resume flushes the restored entry again.
	app.Suspend()
	require.Len(t, recorder.received(), 2)
}
