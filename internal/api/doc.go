// Package api serves the knxlink HTTP endpoints.
//
// This package provides:
//   - Health for load balancers and supervisors (/health)
//   - Prometheus scrape endpoint (/metrics)
//   - Read-only JSON views of the channel and the session journal (/api/v1)
//   - WebSocket event stream mirroring the MQTT events (/api/v1/events)
//   - Middleware stack (request ID, logging, recovery)
//
// The API never sends on the channel; commands go through MQTT so every
// send is journalled and answered in one place.
package api
