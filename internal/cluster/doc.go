// Package cluster provides the shared wire protocol for the crossing
// system: the JSON request/response types exchanged between the balancer,
// the controller replicas, the pedestrian-acknowledgment node, and the
// traffic-sensing node, plus small HTTP helpers used by every component.
//
// # Overview
//
// All inter-node communication is synchronous HTTP/JSON. The balancer sits
// in front of one or more controller replicas; controllers call out to the
// pedestrian node for transition votes and to both peer nodes for clock
// synchronization.
//
//	 sensor ──► balancer ──► controller(s) ──► pedestrian (vote)
//	                │              │
//	                │              └──► peers (clock value / set epoch)
//	                └──── status store (signal + controller tables)
//
// # Endpoints
//
// Controller (consumed through the balancer):
//   - POST /signal       SignalRequest      -> SignalResponse
//   - POST /vip          VIPArrivalRequest  -> VIPArrivalResponse
//   - GET  /health       liveness probe
//   - GET  /signals      current signal statuses
//   - GET  /vips         pending VIPs per direction
//
// Pedestrian node (consumed by controllers):
//   - POST /vote         VoteRequest        -> VoteResponse
//
// Clock peers (pedestrian and sensor nodes, consumed by controllers):
//   - POST /clock/value  ClockValueRequest  -> ClockValueResponse
//   - POST /clock/set    SetEpochRequest    -> 204
//
// Balancer extras:
//   - POST /signals/update  StatusUpdate (pushed by controllers)
//   - GET  /status          aggregated system status
//
// # Failure Handling
//
// Both helpers bound every call with the client's 5 second timeout on top
// of any context deadline. A non-2xx status is returned as an error so
// callers treat transport failures and HTTP failures uniformly.
//
// Per-call timeouts are the only failure-detection mechanism: an
// unreachable peer is excluded from the operation at hand (a clock round,
// a vote, a forwarded request) and never aborts it outright.
package cluster
