// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/wallclock"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/registry"
)

// Wall clock that records requested delays and fires them immediately.
type recordingClock struct {
	wallclock.WallClock

	mu     sync.Mutex
	delays []time.Duration
	seen   chan time.Duration
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	if c.seen != nil {
		select {
		case c.seen <- d:
		default:
		}
	}
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func (c *recordingClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func installClock(t *testing.T) *recordingClock {
	t.Helper()
	clock := &recordingClock{
		WallClock: wallclock.Instance,
		seen:      make(chan time.Duration, 16),
	}
	restore := wallclock.Instance
	wallclock.Instance = clock
	t.Cleanup(func() { wallclock.Instance = restore })
	return clock
}

func TestDiscoverCachesEndpoint(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/services/readings", r.URL.Path)
			if calls.Add(1) > 1 {
				// Registry goes down after the first discovery.
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(registry.Endpoint{
				ServiceType: "readings",
				Address:     "http://readings:8080",
			})
		},
	))
	t.Cleanup(server.Close)

	client := registry.NewClient(server.URL)

	endpoint, err := client.Discover(context.Background(), "readings")
	require.NoError(t, err)
	require.Equal(t, "http://readings:8080", endpoint.Address)

	// Registry is now unavailable; the cached endpoint is served.
	endpoint, err = client.Discover(context.Background(), "readings")
	require.NoError(t, err)
	require.Equal(t, "http://readings:8080", endpoint.Address)
}

func TestDiscoverUnavailableWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	t.Cleanup(server.Close)

	client := registry.NewClient(server.URL)

	_, err := client.Discover(context.Background(), "forecast")
	require.True(t, errors.IsKind(err, errors.DiscoveryUnavailable))
}

func TestDiscoverRejectsEmptyAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(registry.Endpoint{
				ServiceType: "readings",
			})
		},
	))
	t.Cleanup(server.Close)

	client := registry.NewClient(server.URL)

	_, err := client.Discover(context.Background(), "readings")
	require.True(t, errors.IsKind(err, errors.DiscoveryUnavailable))
}

func TestRegister(t *testing.T) {
	var got registry.Descriptor
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/services", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
		},
	))
	t.Cleanup(server.Close)

	client := registry.NewClient(server.URL)

	err := client.Register(context.Background(), registry.Descriptor{
		ServiceType: "sentinel",
		Address:     "http://sentinel:8080",
	})
	require.NoError(t, err)
	require.Equal(t, "sentinel", got.ServiceType)
	require.Equal(t, "http://sentinel:8080", got.Address)
}

// Registration fails twice then succeeds. The observed delays are 5s then 10s
// (each up to 10% longer with jitter); the success resets the schedule to the
// steady-state interval.
func TestMaintainBackoffSchedule(t *testing.T) {
	clock := installClock(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		},
	))
	t.Cleanup(server.Close)

	client := registry.NewClient(
		server.URL,
		registry.WithRegisterInterval(60*time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	maintained := make(chan error, 1)
	go func() {
		maintained <- client.Maintain(ctx, registry.Descriptor{
			ServiceType: "sentinel",
			Address:     "http://sentinel:8080",
		})
	}()

	// Two backoff delays, then the steady-state delay after success.
	for i := 0; i < 3; i++ {
		select {
		case <-clock.seen:
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for a scheduled delay")
		}
	}
	cancel()
	require.ErrorIs(t, <-maintained, context.Canceled)

	delays := clock.recorded()
	require.GreaterOrEqual(t, len(delays), 3)
	require.GreaterOrEqual(t, delays[0], 5*time.Second)
	require.LessOrEqual(t, delays[0], 5500*time.Millisecond)
	require.GreaterOrEqual(t, delays[1], 10*time.Second)
	require.LessOrEqual(t, delays[1], 11*time.Second)
	require.Equal(t, 60*time.Second, delays[2])
}
