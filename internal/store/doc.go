// Package store holds the system's persisted status: the signal status
// table, the controller instance table, and the append-only request/VIP
// audit logs that back the balancer's /status endpoint.
//
// The core contract is the Store interface — a small tabular read/write
// surface. The bundled MemoryStore is sufficient for a single balancer
// process; a durable engine can be swapped in behind the same interface
// without touching the router or the controllers.
//
// Retention: request audit entries expire after a configurable window
// (10 minutes by default) via a TTL cache, and the VIP log is capped at a
// fixed length, so a long-running balancer's memory stays bounded.
package store
