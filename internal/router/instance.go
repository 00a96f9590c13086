package router

import (
	"sync"
	"time"

	"github.com/trafficlab/crossing/internal/store"
)

// DefaultCapacity is the per-instance bound on concurrently forwarded
// requests.
const DefaultCapacity = 5

// Instance is the balancer's view of one controller replica: its
// endpoint, its in-flight request set, and its lifetime counters.
//
// Thread-safe: every field is guarded by the instance's own mutex, so the
// balancer and the health checker can update it concurrently.
type Instance struct {
	// Name uniquely identifies the instance ("controller",
	// "controller-clone", "dynamic-controller-1", ...). Immutable.
	Name string

	// URL is the instance's base endpoint. Immutable.
	URL string

	mu            sync.Mutex
	inflight      map[string]struct{}
	lastHeartbeat time.Time
	processed     int64
	capacity      int
	available     bool
	dynamic       bool
}

// NewInstance returns an available instance with no in-flight requests.
// capacity <= 0 falls back to DefaultCapacity.
func NewInstance(name, url string, capacity int, dynamic bool) *Instance {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Instance{
		Name:          name,
		URL:           url,
		capacity:      capacity,
		dynamic:       dynamic,
		available:     true,
		inflight:      make(map[string]struct{}),
		lastHeartbeat: time.Now(),
	}
}

// Claim registers a request as in flight on this instance.
func (i *Instance) Claim(requestID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inflight[requestID] = struct{}{}
}

// Release removes a request without counting it as processed. Used when a
// forward fails and the request moves to another instance.
func (i *Instance) Release(requestID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.inflight, requestID)
}

// Complete removes a request and bumps the lifetime processed counter.
func (i *Instance) Complete(requestID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.inflight[requestID]; ok {
		delete(i.inflight, requestID)
		i.processed++
	}
}

// InFlight returns the number of requests currently claimed.
func (i *Instance) InFlight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.inflight)
}

// Processed returns the lifetime completed-request count.
func (i *Instance) Processed() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.processed
}

// Available reports whether the instance may receive traffic.
func (i *Instance) Available() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.available
}

// SetAvailable flips the availability flag. A successful health check
// also refreshes the heartbeat timestamp.
func (i *Instance) SetAvailable(available bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.available = available
	if available {
		i.lastHeartbeat = time.Now()
	}
}

// Idle reports whether the instance is available with nothing in flight.
func (i *Instance) Idle() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.available && len(i.inflight) == 0
}

// HasCapacity reports whether the instance is available and below its
// concurrency bound.
func (i *Instance) HasCapacity() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.available && len(i.inflight) < i.capacity
}

// Capacity returns the concurrency bound.
func (i *Instance) Capacity() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.capacity
}

// Dynamic reports whether the instance was provisioned at runtime.
func (i *Instance) Dynamic() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dynamic
}

// Record snapshots the instance as a controller table row.
func (i *Instance) Record() store.ControllerRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	return store.ControllerRecord{
		Name:           i.Name,
		URL:            i.URL,
		Available:      i.available,
		Dynamic:        i.dynamic,
		ActiveRequests: len(i.inflight),
		Capacity:       i.capacity,
		TotalProcessed: i.processed,
		LastHeartbeat:  i.lastHeartbeat,
	}
}
