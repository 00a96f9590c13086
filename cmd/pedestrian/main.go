// Package main implements the pedestrian node: the external voter that
// acknowledges or denies signal transitions, simulating a pedestrian
// crossing controller that occasionally still has people on the asphalt.
// It also serves the clock endpoints so controllers can pull it into
// Berkeley rounds; its clock deliberately starts skewed.
//
// HTTP API:
//   - POST /vote        - acknowledge or deny a transition
//   - GET  /health      - liveness probe
//   - GET  /stats       - vote counters
//   - POST /clock/value - Berkeley offset query
//   - POST /clock/set   - Berkeley epoch push
//
// Configuration:
//   - PEDESTRIAN_LISTEN: listen address (default: ":9000")
//   - CLOCK_SKEW:        initial clock skew, Go duration (default: "-45m")
//   - CLEAR_PROBABILITY: chance the crossing is clear, 0..1 (default: "0.95")
package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/trafficlab/crossing/internal/clock"
	"github.com/trafficlab/crossing/internal/cluster"
	sig "github.com/trafficlab/crossing/internal/signal"
)

var logFatal = log.Fatalf

// Node is the pedestrian voter's runtime state.
type Node struct {
	clock     *clock.Clock
	clearProb float64
	rng       func() float64

	mu      sync.Mutex
	granted int64
	denied  int64
}

// NewNode returns a voter granting with probability clearProb.
func NewNode(ck *clock.Clock, clearProb float64) *Node {
	return &Node{clock: ck, clearProb: clearProb, rng: rand.Float64}
}

// decide casts one vote. The crossing is clear with probability
// clearProb; otherwise pedestrians are still on it and the transition is
// denied.
func (n *Node) decide(pair sig.Pair) string {
	clear := n.rng() < n.clearProb

	n.mu.Lock()
	if clear {
		n.granted++
	} else {
		n.denied++
	}
	n.mu.Unlock()

	if !clear {
		log.Printf("pedestrians on crossing, denying %s", pair)
		return cluster.VoteDenied
	}
	log.Printf("crossing clear, granting %s", pair)
	return cluster.VoteGranted
}

// handleVote serves POST /vote.
func (n *Node) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	pair, err := sig.PairFromInts(req.TargetPair)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.VoteResponse{Vote: n.decide(pair)})
}

// handleStats serves GET /stats.
func (n *Node) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n.mu.Lock()
	granted, denied := n.granted, n.denied
	n.mu.Unlock()

	response := struct {
		Granted   int64     `json:"granted"`
		Denied    int64     `json:"denied"`
		ClockSkew string    `json:"clock_skew"`
		LocalTime time.Time `json:"local_time"`
	}{
		Granted:   granted,
		Denied:    denied,
		ClockSkew: n.clock.Skew().String(),
		LocalTime: n.clock.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func main() {
	listen := getenv("PEDESTRIAN_LISTEN", ":9000")
	skew := parseDuration("CLOCK_SKEW", getenv("CLOCK_SKEW", "-45m"))
	clearProb := parseFloat("CLEAR_PROBABILITY", getenv("CLEAR_PROBABILITY", "0.95"))

	ck := clock.New(skew)
	node := NewNode(ck, clearProb)
	log.Printf("pedestrian node initialized (skew %v, clear probability %.2f)", skew, clearProb)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/vote", node.handleVote)
	mux.HandleFunc("/stats", node.handleStats)
	clock.RegisterHandlers(mux, ck)

	s := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("pedestrian node listening on %s", listen)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("pedestrian node stopped")
}

func parseDuration(k, v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		logFatal("bad %s %q: %v", k, v, err)
	}
	return d
}

func parseFloat(k, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		logFatal("bad %s %q: must be a number in [0,1]", k, v)
	}
	return f
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
