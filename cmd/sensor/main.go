// Package main implements the sensor node: a traffic generator that
// stands in for the intersection's induction loops. It fires bursts of
// signal and VIP requests at the balancer on a randomized schedule and
// serves the clock endpoints so controllers can pull it into Berkeley
// rounds; its clock deliberately starts skewed ahead.
//
// HTTP API:
//   - GET  /health      - liveness probe
//   - GET  /stats       - generated request counters
//   - POST /clock/value - Berkeley offset query
//   - POST /clock/set   - Berkeley epoch push
//
// Configuration:
//   - SENSOR_LISTEN:   listen address (default: ":9100")
//   - BALANCER_ADDR:   balancer URL (default: "http://localhost:8080")
//   - CLOCK_SKEW:      initial clock skew, Go duration (default: "30m")
//   - VIP_PROBABILITY: chance a generated vehicle is a VIP (default: "0.35")
package main

import (
	"context"
	"encoding/json"
	"fmt"
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

// Generator produces traffic against the balancer. Each cycle it picks a
// direction-pair and fires a burst of two requests a beat apart, each
// independently a VIP with the configured probability.
type Generator struct {
	balancerAddr string
	vipProb      float64
	rng          *rand.Rand

	mu      sync.Mutex
	signals int64
	vips    int64
	errors  int64
	seq     int
}

// NewGenerator returns a generator posting to balancerAddr.
func NewGenerator(balancerAddr string, vipProb float64) *Generator {
	return &Generator{
		balancerAddr: balancerAddr,
		vipProb:      vipProb,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run generates traffic until the context is canceled.
func (g *Generator) Run(ctx context.Context) {
	log.Printf("traffic generation started against %s", g.balancerAddr)
	for {
		g.burst(ctx)

		// 2-5s between bursts.
		pause := 2*time.Second + time.Duration(g.rng.Intn(3000))*time.Millisecond
		select {
		case <-ctx.Done():
			log.Println("traffic generation stopped")
			return
		case <-time.After(pause):
		}
	}
}

// burst fires two staggered requests at one direction-pair.
func (g *Generator) burst(ctx context.Context) {
	pair := sig.Pair12
	if g.rng.Intn(2) == 1 {
		pair = sig.Pair34
	}
	for i := 0; i < 2; i++ {
		g.fire(ctx, pair)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(200+g.rng.Intn(400)) * time.Millisecond):
		}
	}
}

// fire sends one request, VIP or normal.
func (g *Generator) fire(ctx context.Context, pair sig.Pair) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if g.rng.Float64() < g.vipProb {
		g.mu.Lock()
		g.seq++
		id := fmt.Sprintf("veh-%04d", g.seq)
		g.mu.Unlock()

		priority := 1 + g.rng.Intn(4)
		var resp cluster.VIPArrivalResponse
		err := cluster.PostJSON(ctx, g.balancerAddr+"/vip",
			cluster.VIPArrivalRequest{VehicleID: id, TargetPair: pair.Ints(), Priority: priority}, &resp)
		g.account(err, true)
		if err != nil {
			log.Printf("vip %s (P%d, %s) failed: %v", id, priority, pair, err)
		} else {
			log.Printf("vip %s (P%d) served for %s", resp.VehicleID, priority, pair)
		}
		return
	}

	var resp cluster.SignalResponse
	err := cluster.PostJSON(ctx, g.balancerAddr+"/signal",
		cluster.SignalRequest{TargetPair: pair.Ints()}, &resp)
	g.account(err, false)
	if err != nil {
		log.Printf("signal request for %s failed: %v", pair, err)
	} else if !resp.OK {
		log.Printf("signal request for %s denied by pedestrians", pair)
	}
}

func (g *Generator) account(err error, vip bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.errors++
		return
	}
	if vip {
		g.vips++
	} else {
		g.signals++
	}
}

// handleStats serves GET /stats.
func (g *Generator) handleStats(ck *clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		g.mu.Lock()
		signals, vips, errors := g.signals, g.vips, g.errors
		g.mu.Unlock()

		response := struct {
			Signals   int64     `json:"signals_sent"`
			VIPs      int64     `json:"vips_sent"`
			Errors    int64     `json:"errors"`
			ClockSkew string    `json:"clock_skew"`
			LocalTime time.Time `json:"local_time"`
		}{
			Signals:   signals,
			VIPs:      vips,
			Errors:    errors,
			ClockSkew: ck.Skew().String(),
			LocalTime: ck.Now(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}
}

func main() {
	listen := getenv("SENSOR_LISTEN", ":9100")
	balancerAddr := getenv("BALANCER_ADDR", "http://localhost:8080")
	skew := parseDuration("CLOCK_SKEW", getenv("CLOCK_SKEW", "30m"))
	vipProb := parseFloat("VIP_PROBABILITY", getenv("VIP_PROBABILITY", "0.35"))

	ck := clock.New(skew)
	gen := NewGenerator(balancerAddr, vipProb)
	log.Printf("sensor node initialized (skew %v, vip probability %.2f)", skew, vipProb)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stats", gen.handleStats(ck))
	clock.RegisterHandlers(mux, ck)

	s := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("sensor node listening on %s", listen)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	genCtx, stopGen := context.WithCancel(context.Background())
	go gen.Run(genCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	stopGen()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("sensor node stopped")
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
