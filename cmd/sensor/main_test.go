package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlab/crossing/internal/clock"
	"github.com/trafficlab/crossing/internal/cluster"
	sig "github.com/trafficlab/crossing/internal/signal"
)

// newBalancerStub counts the signal and vip requests it receives.
func newBalancerStub(t *testing.T) (*httptest.Server, func() (int, int)) {
	t.Helper()
	var mu sync.Mutex
	signals, vips := 0, 0

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		signals++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(cluster.SignalResponse{OK: true})
	})
	mux.HandleFunc("/vip", func(w http.ResponseWriter, r *http.Request) {
		var req cluster.VIPArrivalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.GreaterOrEqual(t, req.Priority, 1)
		assert.LessOrEqual(t, req.Priority, 4)
		mu.Lock()
		vips++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(cluster.VIPArrivalResponse{VehicleID: req.VehicleID, OK: true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		return signals, vips
	}
}

func TestFireSendsSignalRequest(t *testing.T) {
	srv, counts := newBalancerStub(t)

	gen := NewGenerator(srv.URL, 0) // never VIP
	gen.burst(context.Background())

	signals, vips := counts()
	assert.Equal(t, 2, signals, "a burst is two requests")
	assert.Equal(t, 0, vips)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.Equal(t, int64(2), gen.signals)
	assert.Equal(t, int64(0), gen.errors)
}

func TestFireSendsVIPRequest(t *testing.T) {
	srv, counts := newBalancerStub(t)

	gen := NewGenerator(srv.URL, 1) // always VIP
	gen.burst(context.Background())

	signals, vips := counts()
	assert.Equal(t, 0, signals)
	assert.Equal(t, 2, vips)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.Equal(t, int64(2), gen.vips)
	assert.Equal(t, 2, gen.seq, "vehicle IDs are sequential")
}

func TestFireCountsErrors(t *testing.T) {
	gen := NewGenerator("http://localhost:1", 0)
	gen.rng = rand.New(rand.NewSource(1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	gen.fire(ctx, sig.Pair12)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.Equal(t, int64(1), gen.errors)
	assert.Equal(t, int64(0), gen.signals)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newBalancerStub(t)
	gen := NewGenerator(srv.URL, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gen.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop on cancel")
	}
}

func TestStatsHandler(t *testing.T) {
	srv, _ := newBalancerStub(t)
	gen := NewGenerator(srv.URL, 0)
	gen.burst(context.Background())

	ck := clock.New(30 * time.Minute)
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", gen.handleStats(ck))
	statsSrv := httptest.NewServer(mux)
	defer statsSrv.Close()

	resp, err := http.Get(statsSrv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats struct {
		Signals   int64  `json:"signals_sent"`
		ClockSkew string `json:"clock_skew"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(2), stats.Signals)
	assert.Equal(t, "30m0s", stats.ClockSkew)
}
