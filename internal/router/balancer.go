package router

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trafficlab/crossing/internal/cluster"
	"github.com/trafficlab/crossing/internal/store"
)

// DefaultMaxDynamic bounds how many instances may be provisioned at
// runtime.
const DefaultMaxDynamic = 3

// ErrNoInstances is returned when every registered instance has been
// tried and failed, or none is available and provisioning is exhausted.
var ErrNoInstances = errors.New("no controller instance available")

// Config carries the balancer's tunables.
type Config struct {
	// Capacity is the per-instance concurrency bound used when
	// provisioning new instances. Zero means DefaultCapacity.
	Capacity int

	// MaxDynamic bounds runtime-provisioned instances. Zero means
	// DefaultMaxDynamic.
	MaxDynamic int

	// ForwardTimeout bounds a single forwarding attempt. A signal
	// transition legitimately holds the request open through the whole
	// yellow/blink sequence, so this must comfortably exceed the
	// longest transition. Zero means 60 seconds.
	ForwardTimeout time.Duration
}

// Balancer routes operations to controller instances. Selection prefers
// idle instances, then instances below their concurrency bound, then
// provisions a new instance, and finally falls back to the least-loaded
// available instance even when saturated.
//
// A failing instance is marked unavailable and the request retries on
// the remaining ones; each attempt excludes every instance already
// tried, so the retry loop is bounded by the pool size.
type Balancer struct {
	registry    *Registry
	provisioner Provisioner
	store       store.Store
	metrics     *Metrics
	cfg         Config

	// provisionMu serializes dynamic provisioning so a burst cannot
	// overshoot MaxDynamic.
	provisionMu sync.Mutex
}

// NewBalancer wires a balancer over the given instance pool. provisioner
// may be nil, in which case the provisioning tier is skipped. metrics
// may be nil.
func NewBalancer(registry *Registry, provisioner Provisioner, st store.Store, metrics *Metrics, cfg Config) *Balancer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxDynamic <= 0 {
		cfg.MaxDynamic = DefaultMaxDynamic
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 60 * time.Second
	}
	b := &Balancer{
		registry:    registry,
		provisioner: provisioner,
		store:       st,
		metrics:     metrics,
		cfg:         cfg,
	}
	b.metrics.setInstances(registry.Len())
	return b
}

// Forward routes one operation: it selects an instance, POSTs payload to
// the instance's path, and decodes the response into out. On failure the
// instance is marked unavailable and the next one is tried. targetPair is
// recorded in the audit log only.
func (b *Balancer) Forward(ctx context.Context, operation, targetPair, path string, payload, out any) error {
	requestID := uuid.NewString()[:8]
	start := time.Now()
	tried := make(map[string]struct{})

	for {
		inst, err := b.selectInstance(ctx, tried)
		if err != nil {
			b.metrics.observeOutcome(operation, "none", "exhausted")
			b.logRequest(requestID, operation, targetPair, "", store.RequestFailed, start)
			log.Printf("request %s (%s): %v", requestID, operation, err)
			return err
		}

		inst.Claim(requestID)
		b.metrics.addInflight(inst.Name, 1)
		b.syncController(inst)
		log.Printf("request %s (%s) -> %s (%d in flight)",
			requestID, operation, inst.Name, inst.InFlight())

		attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.ForwardTimeout)
		err = cluster.PostJSON(attemptCtx, inst.URL+path, payload, out)
		cancel()
		b.metrics.addInflight(inst.Name, -1)

		if err == nil {
			inst.Complete(requestID)
			b.syncController(inst)
			b.metrics.observeOutcome(operation, inst.Name, "ok")
			b.metrics.observeDuration(operation, time.Since(start))
			b.logRequest(requestID, operation, targetPair, inst.Name, store.RequestCompleted, start)
			return nil
		}

		log.Printf("request %s (%s) failed on %s: %v", requestID, operation, inst.Name, err)
		inst.Release(requestID)
		inst.SetAvailable(false)
		b.syncController(inst)
		b.metrics.observeOutcome(operation, inst.Name, "error")
		tried[inst.Name] = struct{}{}
	}
}

// selectInstance picks the next instance for a request, skipping every
// name in tried.
func (b *Balancer) selectInstance(ctx context.Context, tried map[string]struct{}) (*Instance, error) {
	candidates := make([]*Instance, 0, b.registry.Len())
	for _, inst := range b.registry.All() {
		if _, skip := tried[inst.Name]; skip {
			continue
		}
		if !inst.Available() {
			continue
		}
		candidates = append(candidates, inst)
	}

	// Idle instances first; among them, the one that has processed the
	// fewest requests, so lifetime load spreads evenly.
	var idle *Instance
	for _, inst := range candidates {
		if inst.InFlight() != 0 {
			continue
		}
		if idle == nil || inst.Processed() < idle.Processed() {
			idle = inst
		}
	}
	if idle != nil {
		return idle, nil
	}

	// Then anything below its concurrency bound, least loaded first.
	var underCap *Instance
	for _, inst := range candidates {
		if !inst.HasCapacity() {
			continue
		}
		if underCap == nil || inst.InFlight() < underCap.InFlight() {
			underCap = inst
		}
	}
	if underCap != nil {
		return underCap, nil
	}

	// Pool saturated: try to grow it.
	if inst, err := b.provision(ctx); err == nil {
		return inst, nil
	} else if !errors.Is(err, ErrProvisioningUnavailable) {
		log.Printf("provisioning failed: %v", err)
	}

	// Degraded mode: overload the least-loaded instance rather than
	// reject the request outright.
	var fallback *Instance
	for _, inst := range candidates {
		if fallback == nil || inst.InFlight() < fallback.InFlight() {
			fallback = inst
		}
	}
	if fallback != nil {
		log.Printf("degraded routing: all instances saturated, overloading %s", fallback.Name)
		return fallback, nil
	}
	return nil, ErrNoInstances
}

// provision starts one dynamic instance if the provisioner exists and
// the dynamic bound has not been reached.
func (b *Balancer) provision(ctx context.Context) (*Instance, error) {
	if b.provisioner == nil {
		return nil, ErrProvisioningUnavailable
	}

	b.provisionMu.Lock()
	defer b.provisionMu.Unlock()
	if b.registry.DynamicCount() >= b.cfg.MaxDynamic {
		return nil, ErrProvisioningUnavailable
	}

	name, url, err := b.provisioner.Provision(ctx)
	if err != nil {
		return nil, err
	}
	inst := NewInstance(name, url, b.cfg.Capacity, true)
	if err := b.registry.Add(inst); err != nil {
		return nil, err
	}
	b.metrics.setInstances(b.registry.Len())
	b.syncController(inst)
	return inst, nil
}

func (b *Balancer) syncController(inst *Instance) {
	if b.store == nil {
		return
	}
	b.store.UpsertController(inst.Record())
}

func (b *Balancer) logRequest(requestID, operation, targetPair, controller, status string, start time.Time) {
	if b.store == nil {
		return
	}
	b.store.LogRequest(store.RequestRecord{
		ID:           requestID,
		Operation:    operation,
		TargetPair:   targetPair,
		Controller:   controller,
		Status:       status,
		StartTime:    start,
		EndTime:      time.Now(),
		ResponseSecs: time.Since(start).Seconds(),
	})
}
