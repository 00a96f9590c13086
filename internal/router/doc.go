// Package router implements the balancer's request routing: a registry
// of controller instances, a selection policy that prefers idle
// instances and provisions new ones under load, a bounded retry loop
// around forwarding, and a periodic health checker that takes failing
// instances out of rotation.
//
// Selection order for each request:
//
//  1. An idle available instance, preferring the one with the fewest
//     lifetime completions.
//  2. An available instance below its concurrency bound, preferring the
//     least loaded.
//  3. A freshly provisioned dynamic instance, up to the configured
//     maximum.
//  4. Degraded mode: the least-loaded available instance even though it
//     is saturated.
//
// A failed forward marks the instance unavailable and retries on the
// remaining pool; when every instance has been tried the request fails
// with ErrNoInstances.
package router
