package store

import (
	"time"
)

// SignalRecord is one row of the signal status table.
type SignalRecord struct {
	LastUpdated time.Time `json:"last_updated"`
	SignalID    string    `json:"signal_id"`
	Status      string    `json:"status"`
}

// ControllerRecord is one row of the controller instance table, mirroring
// the balancer's live view of a backend.
type ControllerRecord struct {
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	Available      bool      `json:"available"`
	Dynamic        bool      `json:"dynamic"`
	ActiveRequests int       `json:"active_requests"`
	Capacity       int       `json:"capacity"`
	TotalProcessed int64     `json:"total_processed"`
}

// RequestRecord is one entry of the request audit log. A request is
// logged once when forwarded and overwritten with its final status and
// timing on completion.
type RequestRecord struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitempty"`
	ID           string    `json:"id"`
	Operation    string    `json:"operation"`
	TargetPair   string    `json:"target_pair"`
	Controller   string    `json:"controller"`
	Status       string    `json:"status"`
	ResponseSecs float64   `json:"response_seconds,omitempty"`
}

// Request statuses recorded in the audit log.
const (
	RequestProcessing = "processing"
	RequestCompleted  = "completed"
	RequestFailed     = "failed"
)

// VIPRecord is one entry of the VIP audit log, written when a VIP
// completes its crossing.
type VIPRecord struct {
	ArrivalTime time.Time `json:"arrival_time"`
	VehicleID   string    `json:"vehicle_id"`
	TargetPair  string    `json:"target_pair"`
	ServedBy    string    `json:"served_by"`
	Priority    int       `json:"priority"`
	ServiceSecs float64   `json:"service_seconds"`
}

// SystemStatus is the aggregated view served by the balancer's /status
// endpoint.
type SystemStatus struct {
	Signals        map[string]SignalRecord `json:"signal_status"`
	Timestamp      time.Time               `json:"timestamp"`
	Controllers    []ControllerRecord      `json:"controllers"`
	RecentRequests []RequestRecord         `json:"recent_requests"`
	RecentVIPs     []VIPRecord             `json:"recent_vips"`
}

// Store persists system state for status queries and auditing. The core
// only relies on this tabular interface; the engine behind it is not part
// of the contract. All implementations must be safe for concurrent use.
type Store interface {
	// UpdateSignals upserts the signal status table from a snapshot.
	UpdateSignals(signals map[string]string) error

	// Signals returns the signal status table keyed by signal ID.
	Signals() map[string]SignalRecord

	// UpsertController inserts or replaces a controller row.
	UpsertController(rec ControllerRecord) error

	// Controllers returns all controller rows, ordered by name.
	Controllers() []ControllerRecord

	// LogRequest inserts or replaces an audit entry keyed by request ID.
	LogRequest(rec RequestRecord) error

	// RecentRequests returns up to n audit entries, most recent first.
	RecentRequests(n int) []RequestRecord

	// LogVIP appends a VIP audit entry.
	LogVIP(rec VIPRecord) error

	// RecentVIPs returns up to n VIP entries, most recent first.
	RecentVIPs(n int) []VIPRecord

	// SystemStatus aggregates the tables into one status document.
	SystemStatus() SystemStatus

	// Close releases any background resources held by the store.
	Close()
}
