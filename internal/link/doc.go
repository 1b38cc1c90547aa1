// Package link runs one KNXnet/IP channel as a long-lived service.
//
// A Service dials the configured gateway, keeps the channel open across
// gateway restarts and bridges it to the rest of the system:
//
//   - Decoded services are published to MQTT (group telegrams per group
//     address, object server datapoints per datapoint id).
//   - Send commands are consumed from the link's command topic and the
//     outcome is published on a per-request response topic.
//   - Channel sessions and commands are journalled in SQLite.
//   - Channel statistics are written to InfluxDB and exported to Prometheus.
//   - A retained health message is published at a fixed interval.
//
// Every collaborator except the dialer is optional; a Service with no bus,
// journal or telemetry still keeps the channel open.
//
// Usage:
//
//	svc, err := link.New(link.Options{Config: cfg.Link, Bus: mqttClient, Logger: log})
//	if err != nil { ... }
//	err = svc.Run(ctx) // blocks until ctx is cancelled
package link
