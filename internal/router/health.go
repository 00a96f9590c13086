package router

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/trafficlab/crossing/internal/store"
)

// HealthChecker periodically probes every registered controller instance
// and flips its availability flag. An instance is taken out of rotation
// after maxFailures consecutive failed probes and put back the moment a
// probe succeeds, so a restarted controller rejoins without operator
// action.
//
// Thread-safe: failure counters are guarded by the checker's mutex;
// instance flags are synchronized by the instances themselves.
type HealthChecker struct {
	registry    *Registry
	store       store.Store
	httpClient  *http.Client
	checkFunc   func(url string) error
	onDown      func(name string)
	interval    time.Duration
	maxFailures int

	mu    sync.Mutex
	fails map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthChecker creates a checker probing each instance's /health
// endpoint every interval. Instances go unavailable after 3 consecutive
// failures. st may be nil.
func NewHealthChecker(registry *Registry, st store.Store, interval time.Duration) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthChecker{
		registry:    registry,
		store:       st,
		interval:    interval,
		maxFailures: 3,
		fails:       make(map[string]int),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetCheckFunction overrides the default HTTP probe. Useful in tests.
func (h *HealthChecker) SetCheckFunction(checkFunc func(url string) error) {
	h.checkFunc = checkFunc
}

// SetOnDown sets a callback invoked (in its own goroutine) when an
// instance transitions from available to unavailable.
func (h *HealthChecker) SetOnDown(callback func(name string)) {
	h.onDown = callback
}

// Start runs the probe loop in the current goroutine until the context
// is canceled or Stop is called. The first sweep runs immediately.
func (h *HealthChecker) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("health checker started with interval %v", h.interval)
	h.sweep()

	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-ctx.Done():
			log.Println("health checker stopping")
			return
		case <-h.ctx.Done():
			log.Println("health checker stopping")
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to exit.
func (h *HealthChecker) Stop() {
	h.cancel()
	h.wg.Wait()
}

// sweep probes every registered instance once.
func (h *HealthChecker) sweep() {
	for _, inst := range h.registry.All() {
		h.checkInstance(inst)
	}
}

// checkInstance probes one instance and updates its availability.
func (h *HealthChecker) checkInstance(inst *Instance) {
	err := h.checkFunc(inst.URL)

	h.mu.Lock()
	if err != nil {
		h.fails[inst.Name]++
		n := h.fails[inst.Name]
		h.mu.Unlock()

		log.Printf("health check failed for %s (attempt %d/%d): %v",
			inst.Name, n, h.maxFailures, err)
		if n >= h.maxFailures && inst.Available() {
			inst.SetAvailable(false)
			log.Printf("%s marked unavailable after %d failures", inst.Name, n)
			if h.onDown != nil {
				go h.onDown(inst.Name)
			}
		}
	} else {
		h.fails[inst.Name] = 0
		h.mu.Unlock()

		if !inst.Available() {
			log.Printf("%s recovered and is back in rotation", inst.Name)
		}
		inst.SetAvailable(true)
	}

	if h.store != nil {
		h.store.UpsertController(inst.Record())
	}
}

// defaultCheck performs an HTTP GET against the instance's /health
// endpoint.
func (h *HealthChecker) defaultCheck(url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
