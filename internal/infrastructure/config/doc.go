// Package config handles loading and validating knxlink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (KNXLINK_*)
//   - Validation of required fields, reporting every problem at once
//   - Default value handling
//
// Protocol timing (acknowledgement timeout, heartbeat schedule) is fixed by
// KNXnet/IP and is not configurable here.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/knxlink.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Link.Gateway)
package config
