// knxlink keeps an acknowledged KNXnet/IP channel open to a gateway and
// bridges it to MQTT.
//
// Subcommands:
//   - run: long-running link service (MQTT, journal, telemetry, HTTP)
//   - send: one-shot command over a fresh channel
//   - read: one-shot group read or datapoint read
//   - version: build information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnv names the environment variable holding the default config path.
const configEnv = "KNXLINK_CONFIG"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "knxlink",
		Short: "KNXnet/IP acknowledged-channel client",
		Long: `knxlink opens a tunneling or object server channel to a KNXnet/IP
gateway over UDP or TCP and keeps it open.

The run command bridges the channel to MQTT, journals sessions to SQLite
and exports statistics to InfluxDB and Prometheus. The send and read
commands open a channel for a single exchange.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(configEnv),
		"path to the YAML config file (default $"+configEnv+", built-in defaults when empty)")

	root.AddCommand(
		runCmd(&configPath),
		sendCmd(&configPath),
		readCmd(&configPath),
		versionCmd(),
	)

	return root
}

// loadConfig reads path, or falls back to the built-in defaults with
// environment overrides when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
