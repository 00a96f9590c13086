// Package main implements the balancer service: the public entry point
// of the intersection system. It routes signal and VIP requests across
// the controller pool, provisions extra controller instances under
// load, health-checks the pool, and aggregates system status pushed by
// the controllers.
//
// HTTP API:
//   - POST /signal         - normal traffic request, forwarded to a controller
//   - POST /vip            - VIP arrival, forwarded to a controller
//   - GET  /health         - liveness probe
//   - GET  /status         - aggregated system status
//   - GET  /signals        - current signal status table
//   - POST /signals/update - status push from a controller
//   - POST /vips/served    - VIP audit push from a controller
//   - GET  /metrics        - Prometheus metrics
//
// Configuration:
//   - BALANCER_LISTEN:     listen address (default: ":8080")
//   - CONTROLLER_ADDRS:    static pool, "name=url" comma-separated
//     (default: "controller=http://localhost:8081")
//   - CONTROLLER_CAPACITY: per-instance concurrency bound (default: 5)
//   - MAX_DYNAMIC:         dynamic instance bound (default: 3)
//   - CONTROLLER_BINARY:   controller executable for dynamic provisioning
//     (optional; provisioning disabled when unset)
//   - DYNAMIC_BASE_PORT:   first port for dynamic instances (default: 9081)
//   - HEALTH_INTERVAL:     probe period, Go duration (default: "5s")
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trafficlab/crossing/internal/cluster"
	"github.com/trafficlab/crossing/internal/router"
	"github.com/trafficlab/crossing/internal/store"
)

// logFatal is a variable to allow intercepting log.Fatalf in tests.
var logFatal = log.Fatalf

// server holds the balancer's routing and persistence components.
type server struct {
	balancer *router.Balancer
	store    store.Store
}

// handleSignal forwards a normal traffic request to a controller.
func (s *server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	var resp cluster.SignalResponse
	err := s.balancer.Forward(r.Context(), "signal", pairString(req.TargetPair), "/signal", req, &resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleVIP forwards a VIP arrival to a controller.
func (s *server) handleVIP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.VIPArrivalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	var resp cluster.VIPArrivalResponse
	err := s.balancer.Forward(r.Context(), "vip", pairString(req.TargetPair), "/vip", req, &resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStatus serves the aggregated system view.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.store.SystemStatus())
}

// handleSignals serves the signal status table.
func (s *server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Signals map[string]store.SignalRecord `json:"signals"`
	}{Signals: s.store.Signals()})
}

// handleSignalsUpdate ingests a status push from a controller.
func (s *server) handleSignalsUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var u cluster.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.store.UpdateSignals(u.Signals); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("signal status updated by %s", u.Controller)
	w.WriteHeader(http.StatusNoContent)
}

// handleVIPServed ingests a VIP audit push from a controller.
func (s *server) handleVIPServed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var u cluster.VIPServedUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	err := s.store.LogVIP(store.VIPRecord{
		VehicleID:   u.VehicleID,
		TargetPair:  pairString(u.TargetPair),
		ServedBy:    u.Controller,
		Priority:    u.Priority,
		ArrivalTime: time.Unix(0, u.ArrivalTime),
		ServiceSecs: u.ServiceSecs,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// routes mounts the balancer's endpoints on mux.
func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/signal", s.handleSignal)
	mux.HandleFunc("/vip", s.handleVIP)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/signals", s.handleSignals)
	mux.HandleFunc("/signals/update", s.handleSignalsUpdate)
	mux.HandleFunc("/vips/served", s.handleVIPServed)
}

func main() {
	listen := getenv("BALANCER_LISTEN", ":8080")
	controllerAddrs := getenv("CONTROLLER_ADDRS", "controller=http://localhost:8081")
	capacity := getenvInt("CONTROLLER_CAPACITY", router.DefaultCapacity)
	maxDynamic := getenvInt("MAX_DYNAMIC", router.DefaultMaxDynamic)
	binary := getenv("CONTROLLER_BINARY", "")
	basePort := getenvInt("DYNAMIC_BASE_PORT", 9081)
	interval := getenvDuration("HEALTH_INTERVAL", 5*time.Second)

	st := store.NewMemoryStore(0)
	defer st.Close()

	registry := router.NewRegistry()
	for name, url := range parseControllers(controllerAddrs) {
		inst := router.NewInstance(name, url, capacity, false)
		if err := registry.Add(inst); err != nil {
			logFatal("registering %s: %v", name, err)
		}
		st.UpsertController(inst.Record())
		log.Printf("registered controller %s at %s", name, url)
	}
	if registry.Len() == 0 {
		logFatal("no controllers configured")
	}

	var provisioner router.Provisioner
	if binary != "" {
		ep := router.NewExecProvisioner(binary, basePort)
		defer ep.Shutdown()
		provisioner = ep
		log.Printf("dynamic provisioning enabled (binary %s, up to %d instances)", binary, maxDynamic)
	}

	metrics := router.NewMetrics(prometheus.DefaultRegisterer)
	balancer := router.NewBalancer(registry, provisioner, st, metrics, router.Config{
		Capacity:   capacity,
		MaxDynamic: maxDynamic,
	})

	health := router.NewHealthChecker(registry, st, interval)
	go health.Start(nil)
	defer health.Stop()

	srv := &server{balancer: balancer, store: st}
	mux := http.NewServeMux()
	srv.routes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	s := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("balancer listening on %s (%d controllers)", listen, registry.Len())
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
	log.Println("balancer stopped")
}

// parseControllers turns "controller=http://a,controller-clone=http://b"
// into a name-to-URL map, skipping malformed entries.
func parseControllers(list string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok || name == "" || url == "" {
			log.Printf("skipping malformed controller entry %q", entry)
			continue
		}
		out[name] = url
	}
	return out
}

// pairString renders a wire pair for audit rows: "[1,2]".
func pairString(pair []int) string {
	parts := make([]string, len(pair))
	for i, n := range pair {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logFatal("bad %s %q: %v", k, v, err)
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logFatal("bad %s %q: %v", k, v, err)
	}
	return d
}
