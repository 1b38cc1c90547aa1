// Package influxdb writes KNXnet/IP channel statistics to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Writes go through
// the non-blocking, batched write API; failures arrive asynchronously via
// SetOnError.
//
// Measurements:
//   - knx_channel: periodic counter snapshot (frames, acks, duplicates, ...)
//     tagged by link, protocol, transport, session and lifecycle state
//   - knx_channel_event: channel open/close events with the close reason
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteChannelSample(sample)
package influxdb
