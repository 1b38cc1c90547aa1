// Package metrics exposes knxlink channel statistics and link activity to
// Prometheus.
//
// The channel itself keeps atomic counters; a collector reads a Snapshot of
// them on every scrape, so nothing is double-counted and no goroutine is
// needed. Link-level events (dials, closes, commands) are ordinary
// counters recorded by the link service.
//
// Usage:
//
//	m := metrics.New(svc.Snapshot, metrics.WithConstLabels(prometheus.Labels{"link": id}))
//	router.Handle("/metrics", m.Handler())
package metrics
