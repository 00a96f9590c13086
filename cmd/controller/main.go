// Package main implements the intersection controller service. Each
// controller instance owns a full copy of the intersection state: the
// signal board, the VIP queues, the intersection mutex, and the clock
// that anchors Berkeley synchronization rounds against the pedestrian
// and sensor nodes.
//
// HTTP API:
//   - GET  /health  - liveness probe
//   - POST /signal  - normal traffic request for a direction-pair
//   - POST /vip     - VIP arrival for a direction-pair
//   - GET  /signals - current signal status table
//   - GET  /vips    - pending VIP queues per direction
//
// Configuration:
//   - CONTROLLER_NAME:   instance name (default: "controller")
//   - CONTROLLER_LISTEN: listen address (default: ":8081")
//   - PEDESTRIAN_ADDR:   pedestrian node URL (default: "http://localhost:9000")
//   - PEER_ADDRS:        clock peers, "name=url" comma-separated
//   - BALANCER_ADDR:     balancer URL for status pushes (optional)
//   - CLOCK_SKEW:        initial clock skew, Go duration (default: "0")
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trafficlab/crossing/internal/arbiter"
	"github.com/trafficlab/crossing/internal/clock"
	"github.com/trafficlab/crossing/internal/cluster"
	sig "github.com/trafficlab/crossing/internal/signal"
)

// logFatal is a variable to allow intercepting log.Fatalf in tests.
var logFatal = log.Fatalf

// Controller bundles one instance's intersection state with its clock
// coordinator and the addresses of its collaborators.
type Controller struct {
	name         string
	clock        *clock.Clock
	berkeley     *clock.Coordinator
	arb          *arbiter.Arbitrator
	balancerAddr string
}

// newController wires an arbitrator whose pedestrian votes go to
// pedestrianAddr and whose clock syncs against peers. When balancerAddr
// is non-empty, every completed transition and served VIP is pushed
// there for the system status store.
func newController(name, pedestrianAddr, balancerAddr string, skew time.Duration, peers []clock.Peer, timings sig.Timings) *Controller {
	ck := clock.New(skew)

	voter := arbiter.VoterFunc(func(ctx context.Context, pair sig.Pair) (bool, error) {
		var resp cluster.VoteResponse
		err := cluster.PostJSON(ctx, pedestrianAddr+"/vote",
			cluster.VoteRequest{TargetPair: pair.Ints()}, &resp)
		if err != nil {
			return false, err
		}
		return resp.Vote == cluster.VoteGranted, nil
	})

	c := &Controller{
		name:         name,
		clock:        ck,
		berkeley:     clock.NewCoordinator(ck, peers, 0),
		arb:          arbiter.New(name, voter, timings),
		balancerAddr: balancerAddr,
	}

	if balancerAddr != "" {
		c.arb.Machine().SetOnChange(c.pushStatus)
		c.arb.SetOnServed(c.pushVIPServed)
	}
	return c
}

// handleSignal serves POST /signal: a Berkeley round, then the normal
// traffic path through the arbitrator. The response's ok field is false
// when the pedestrian node denied the transition.
func (c *Controller) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	pair, err := sig.PairFromInts(req.TargetPair)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.berkeley.SyncOnce(r.Context())
	ok := c.arb.SubmitNormal(r.Context(), pair)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.SignalResponse{OK: ok})
}

// handleVIP serves POST /vip: a Berkeley round, then VIP registration
// and a full drain of the queues. The arrival is stamped with the
// synchronized clock so cross-node arrival ordering is meaningful.
func (c *Controller) handleVIP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.VIPArrivalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	pair, err := sig.PairFromInts(req.TargetPair)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Priority < 1 {
		http.Error(w, "priority must be >= 1", http.StatusBadRequest)
		return
	}

	c.berkeley.SyncOnce(r.Context())
	served := c.arb.SubmitVIP(r.Context(), arbiter.VIPRequest{
		VehicleID:   req.VehicleID,
		Priority:    req.Priority,
		TargetPair:  pair,
		ArrivalTime: c.clock.Now(),
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.VIPArrivalResponse{VehicleID: served.VehicleID, OK: true})
}

// handleSignals serves GET /signals.
func (c *Controller) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response := struct {
		Signals    map[string]string `json:"signals"`
		GreenPair  string            `json:"green_pair"`
		Holder     string            `json:"intersection_holder,omitempty"`
		Controller string            `json:"controller"`
	}{
		Signals:    c.arb.SignalStrings(),
		GreenPair:  c.arb.GreenPair().String(),
		Holder:     c.arb.IntersectionHolder(),
		Controller: c.name,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// handleVIPs serves GET /vips.
func (c *Controller) handleVIPs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response := struct {
		Pending map[string][]arbiter.VIPInfo `json:"pending"`
		Count   int                          `json:"count"`
	}{
		Pending: c.arb.VIPStatus(c.clock.Now()),
		Count:   c.arb.PendingVIPs(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// pushStatus sends the post-transition signal table to the balancer.
// Best effort: a failed push only costs status freshness.
func (c *Controller) pushStatus(signals map[string]sig.Status) {
	wire := make(map[string]string, len(signals))
	for id, st := range signals {
		wire[id] = string(st)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := cluster.PostJSON(ctx, c.balancerAddr+"/signals/update",
		cluster.StatusUpdate{Signals: wire, Controller: c.name}, nil)
	if err != nil {
		log.Printf("status push failed: %v", err)
	}
}

// pushVIPServed sends a served-VIP audit entry to the balancer.
func (c *Controller) pushVIPServed(vip arbiter.VIPRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := cluster.PostJSON(ctx, c.balancerAddr+"/vips/served",
		cluster.VIPServedUpdate{
			VehicleID:   vip.VehicleID,
			TargetPair:  vip.TargetPair.Ints(),
			Controller:  c.name,
			Priority:    vip.Priority,
			ArrivalTime: vip.ArrivalTime.UnixNano(),
			ServiceSecs: c.clock.Now().Sub(vip.ArrivalTime).Seconds(),
		}, nil)
	if err != nil {
		log.Printf("vip audit push failed: %v", err)
	}
}

// routes mounts the controller's endpoints on mux.
func (c *Controller) routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/signal", c.handleSignal)
	mux.HandleFunc("/vip", c.handleVIP)
	mux.HandleFunc("/signals", c.handleSignals)
	mux.HandleFunc("/vips", c.handleVIPs)
}

func main() {
	name := getenv("CONTROLLER_NAME", "controller")
	listen := getenv("CONTROLLER_LISTEN", ":8081")
	pedestrian := getenv("PEDESTRIAN_ADDR", "http://localhost:9000")
	balancerAddr := getenv("BALANCER_ADDR", "")
	skew := parseSkew(getenv("CLOCK_SKEW", "0"))
	peers := parsePeers(getenv("PEER_ADDRS", ""))

	c := newController(name, pedestrian, balancerAddr, skew, peers, sig.DefaultTimings())
	log.Printf("controller[%s] initialized, %d clock peers", name, len(peers))

	mux := http.NewServeMux()
	c.routes(mux)

	s := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("controller[%s] listening on %s", name, listen)
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
	log.Println("controller stopped")
}

// parsePeers turns "pedestrian=http://host:9000,sensor=http://host:9100"
// into clock peers. Malformed entries are skipped with a log line.
func parsePeers(list string) []clock.Peer {
	var peers []clock.Peer
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, addr, ok := strings.Cut(entry, "=")
		if !ok || name == "" || addr == "" {
			log.Printf("skipping malformed peer entry %q", entry)
			continue
		}
		peers = append(peers, clock.NewHTTPPeer(name, addr))
	}
	return peers
}

func parseSkew(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		logFatal("bad CLOCK_SKEW %q: %v", s, err)
	}
	return d
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
