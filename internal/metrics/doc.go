// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state, message rates and sequence gaps
//   - REST request counts, retries and latencies
//   - Number of markets tracked by the live view
package metrics
