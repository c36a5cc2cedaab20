package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorMarksServerReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL + "/healthz")
	snapshot := m.CheckNow(context.Background())
	require.True(t, snapshot.IsOnline)
	require.True(t, snapshot.IsReachable)
}

func TestMonitorMarksServerUnreachableOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL + "/healthz")
	require.False(t, m.CheckNow(context.Background()).IsReachable)

	// A closed server behaves the same as a 5xx.
	srv.Close()
	require.False(t, m.CheckNow(context.Background()).IsReachable)
}

func TestMonitorOfflineSkipsProbeAndClearsReachable(t *testing.T) {
	var probes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL + "/healthz")
	require.True(t, m.CheckNow(context.Background()).IsReachable)

	// Going offline flips reachable immediately, no probe needed.
	m.SetOnline(false)
	snapshot := m.Snapshot()
	require.False(t, snapshot.IsOnline)
	require.False(t, snapshot.IsReachable)

	before := probes.Load()
	require.False(t, m.CheckNow(context.Background()).IsReachable)
	require.Equal(t, before, probes.Load())
}

func TestMonitorPublishesTransitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL + "/healthz")
	ch, cancel := m.Subscribe()
	defer cancel()

	m.CheckNow(context.Background())

	select {
	case snapshot := <-ch:
		require.True(t, snapshot.IsReachable)
	case <-time.After(time.Second):
		t.Fatal("expected a transition to reachable")
	}

	m.SetOnline(false)
	select {
	case snapshot := <-ch:
		require.False(t, snapshot.IsOnline)
		require.False(t, snapshot.IsReachable)
	case <-time.After(time.Second):
		t.Fatal("expected a transition to offline")
	}
}

func TestMonitorProbesImmediatelyWhenBackOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL+"/healthz", WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		return m.Snapshot().IsReachable
	}, 2*time.Second, 10*time.Millisecond)

	m.SetOnline(false)
	require.False(t, m.Snapshot().IsReachable)

	// With the ticker an hour away, only the online-flip probe can make
	// the server reachable again this quickly.
	m.SetOnline(true)
	require.Eventually(t, func() bool {
		return m.Snapshot().IsReachable
	}, 2*time.Second, 10*time.Millisecond)
}
