package router

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// Registry tracks the set of controller instances the balancer may route
// to. Instances are added at startup (static replicas) and at runtime
// (dynamic provisioning); they are never removed, only marked
// unavailable, so the controller table keeps a complete history.
//
// Thread-safe: guarded by a read-write mutex, matching the access
// pattern of many reads (selection, health sweeps) against rare writes
// (registration).
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

// Add registers an instance. Names must be unique; re-registering an
// existing name is an error so that a misconfigured clone cannot
// silently shadow a live replica.
func (r *Registry) Add(inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[inst.Name]; exists {
		return fmt.Errorf("instance %q already registered", inst.Name)
	}
	r.instances[inst.Name] = inst
	return nil
}

// Get returns the instance with the given name, or nil when unknown.
func (r *Registry) Get(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// All returns every registered instance sorted by name. The slice is a
// copy; the *Instance values are shared and individually synchronized.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		all = append(all, inst)
	}
	slices.SortFunc(all, func(a, b *Instance) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return all
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// DynamicCount returns how many registered instances were provisioned at
// runtime.
func (r *Registry) DynamicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inst := range r.instances {
		if inst.Dynamic() {
			n++
		}
	}
	return n
}
