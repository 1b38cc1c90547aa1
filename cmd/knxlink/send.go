package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-knxlink/internal/link"
)

// defaultOneShotTimeout bounds dial, exchange and close of send and read.
const defaultOneShotTimeout = 10 * time.Second

// oneShotFlags are shared by send and read.
type oneShotFlags struct {
	timeout time.Duration
	verbose bool
}

func (f *oneShotFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", defaultOneShotTimeout, "Overall timeout")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log channel activity to stderr")
}

func sendCmd(configPath *string) *cobra.Command {
	var (
		msg   link.CommandMessage
		kind  string
		flags oneShotFlags
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one command over a fresh channel",
		Long: `Send opens a channel to the configured gateway, sends one command,
prints the response as JSON and closes the channel.

Examples:
  knxlink send --kind group_write --target 1/2/3 --data 01
  knxlink send --kind group_write --target 1/2/4 --dpt 9.001 --value 21.5
  knxlink send --kind group_write --target 1/2/3 --data 01 --mode wait-for-con
  knxlink send --kind set_datapoint --target 12 --data 0c1a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			msg.ID = uuid.NewString()
			msg.Kind = link.CommandKind(kind)

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			return runSend(ctx, link.NewDialer(cfg.Link, flags.logger(cfg)), msg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(link.KindGroupWrite),
		"Command kind (group_write, group_read, set_datapoint, get_datapoint, get_server_item)")
	cmd.Flags().StringVarP(&msg.Target, "target", "t", "", "Group address (x/y/z) or datapoint/server item id")
	cmd.Flags().StringVarP(&msg.Data, "data", "d", "", "Hex-encoded payload")
	cmd.Flags().StringVar(&msg.DPT, "dpt", "", "Datapoint type for --value (e.g. 1.001, 5.001, 9.001)")
	cmd.Flags().StringVar(&msg.Value, "value", "", "Value to encode with --dpt (e.g. on, 50, 21.5)")
	cmd.Flags().Uint16Var(&msg.Count, "count", 1, "Number of items for object server reads")
	cmd.Flags().StringVarP(&msg.Mode, "mode", "m", channel.WaitForAck.String(),
		"Send mode (non-blocking, wait-for-ack, wait-for-con)")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

// runSend dials, sends msg and writes the response to out. The returned
// error is the send error, so a failed command exits non-zero.
func runSend(ctx context.Context, dial link.Dialer, msg link.CommandMessage, out io.Writer) error {
	svc, mode, err := msg.Build()
	if err != nil {
		return err
	}

	ch, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	defer ch.Close() //nolint:errcheck // close errors are logged by the channel

	sendErr := ch.Send(ctx, svc, mode)
	if err := writeJSON(out, link.NewResponse(msg, mode, sendErr)); err != nil {
		return err
	}
	return sendErr
}

// logger returns the channel logger for one-shot commands: stderr at debug
// with --verbose, nothing otherwise.
func (f *oneShotFlags) logger(cfg *config.Config) channel.Logger {
	if !f.verbose {
		return nil
	}
	lc := cfg.Logging
	lc.Level = "debug"
	lc.Format = "text"
	return logging.NewWithWriter(os.Stderr, lc, version)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
