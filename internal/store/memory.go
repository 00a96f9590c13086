package store

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/exp/slices"
)

// DefaultAuditWindow bounds how long request audit entries are retained.
const DefaultAuditWindow = 10 * time.Minute

// maxVIPLog caps the in-memory VIP audit log.
const maxVIPLog = 1000

// MemoryStore implements Store in memory. The signal and controller
// tables are plain maps behind an RWMutex; the request audit log lives in
// a TTL cache so entries age out after the audit window instead of growing
// without bound.
type MemoryStore struct {
	requests    *ttlcache.Cache[string, RequestRecord]
	signals     map[string]SignalRecord
	controllers map[string]ControllerRecord
	vips        []VIPRecord
	mu          sync.RWMutex
}

// NewMemoryStore returns a ready store. window <= 0 falls back to
// DefaultAuditWindow. Callers own the store's lifecycle and must Close it.
func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultAuditWindow
	}
	m := &MemoryStore{
		signals:     make(map[string]SignalRecord),
		controllers: make(map[string]ControllerRecord),
		requests: ttlcache.New(
			ttlcache.WithTTL[string, RequestRecord](window),
		),
	}
	go m.requests.Start()
	return m
}

// Close stops the audit cache's eviction loop.
func (m *MemoryStore) Close() {
	m.requests.Stop()
}

// UpdateSignals upserts the signal table from a snapshot.
func (m *MemoryStore) UpdateSignals(signals map[string]string) error {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, status := range signals {
		m.signals[id] = SignalRecord{SignalID: id, Status: status, LastUpdated: now}
	}
	return nil
}

// Signals returns a copy of the signal table.
func (m *MemoryStore) Signals() map[string]SignalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]SignalRecord, len(m.signals))
	for id, rec := range m.signals {
		out[id] = rec
	}
	return out
}

// UpsertController inserts or replaces a controller row.
func (m *MemoryStore) UpsertController(rec ControllerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controllers[rec.Name] = rec
	return nil
}

// Controllers returns all controller rows ordered by name.
func (m *MemoryStore) Controllers() []ControllerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ControllerRecord, 0, len(m.controllers))
	for _, rec := range m.controllers {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b ControllerRecord) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// LogRequest inserts or replaces an audit entry keyed by request ID.
func (m *MemoryStore) LogRequest(rec RequestRecord) error {
	m.requests.Set(rec.ID, rec, ttlcache.DefaultTTL)
	return nil
}

// RecentRequests returns up to n audit entries, most recent first.
func (m *MemoryStore) RecentRequests(n int) []RequestRecord {
	items := m.requests.Items()
	out := make([]RequestRecord, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	slices.SortFunc(out, func(a, b RequestRecord) int {
		switch {
		case a.StartTime.After(b.StartTime):
			return -1
		case b.StartTime.After(a.StartTime):
			return 1
		}
		return 0
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// LogVIP appends a VIP audit entry, evicting the oldest once the log is
// full.
func (m *MemoryStore) LogVIP(rec VIPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vips = append(m.vips, rec)
	if len(m.vips) > maxVIPLog {
		m.vips = m.vips[len(m.vips)-maxVIPLog:]
	}
	return nil
}

// RecentVIPs returns up to n VIP entries, most recent first.
func (m *MemoryStore) RecentVIPs(n int) []VIPRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.vips) {
		n = len(m.vips)
	}
	out := make([]VIPRecord, 0, n)
	for i := len(m.vips) - 1; i >= len(m.vips)-n; i-- {
		out = append(out, m.vips[i])
	}
	return out
}

// SystemStatus aggregates the tables into one status document.
func (m *MemoryStore) SystemStatus() SystemStatus {
	return SystemStatus{
		Controllers:    m.Controllers(),
		RecentRequests: m.RecentRequests(10),
		RecentVIPs:     m.RecentVIPs(10),
		Signals:        m.Signals(),
		Timestamp:      time.Now(),
	}
}
