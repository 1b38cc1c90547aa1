package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxlink/internal/baos"
	"github.com/nerrad567/gray-logic-knxlink/internal/cemi"
	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
	"github.com/nerrad567/gray-logic-knxlink/internal/dpt"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/link"
)

// errNoReply is returned when the channel closes or the timeout expires
// before the value arrives.
var errNoReply = errors.New("no reply")

func readCmd(configPath *string) *cobra.Command {
	var (
		count    uint16
		typeName string
		flags    oneShotFlags
	)

	cmd := &cobra.Command{
		Use:   "read <target>",
		Short: "Read one group address or datapoint",
		Long: `Read opens a channel and reads one value. On a tunneling link the
target is a group address and a GroupValue_Read is sent; the first
GroupValue_Response for that address is printed. On an object server link
the target is a datapoint id and the GetDatapointValue response is printed.

Examples:
  knxlink read 1/2/3
  knxlink read 1/2/4 --dpt 9.001
  knxlink read 12 --count 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			msg := readCommand(cfg.Link.Protocol, args[0], count)
			id := dpt.ID(typeName)
			if id == "" {
				id = dpt.ID(cfg.Link.Datapoints[args[0]])
			}
			if id != "" && !id.Known() {
				return fmt.Errorf("%w: %q", dpt.ErrUnknownDPT, string(id))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			return runRead(ctx, link.NewDialer(cfg.Link, flags.logger(cfg)), cfg.Link.ID, msg, id, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Uint16Var(&count, "count", 1, "Number of consecutive datapoints (object server only)")
	cmd.Flags().StringVar(&typeName, "dpt", "", "Decode the value as this datapoint type (default from link.datapoints)")
	flags.register(cmd)

	return cmd
}

// readCommand builds the read request for the link protocol.
func readCommand(protocol, target string, count uint16) link.CommandMessage {
	msg := link.CommandMessage{
		ID:     uuid.NewString(),
		Kind:   link.KindGroupRead,
		Target: target,
		Mode:   channel.WaitForAck.String(),
	}
	if protocol == config.ProtocolObjectServer {
		msg.Kind = link.KindGetDatapoint
		msg.Count = count
	}
	return msg
}

// runRead sends msg and writes the first matching reply to out. A non-empty
// id decodes the value.
func runRead(ctx context.Context, dial link.Dialer, linkID string, msg link.CommandMessage,
	id dpt.ID, out io.Writer) error {
	svc, mode, err := msg.Build()
	if err != nil {
		return err
	}

	ch, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	defer ch.Close() //nolint:errcheck // close errors are logged by the channel

	replies := make(chan readReply, 1)
	remove := ch.AddListener(channel.Listener{
		Service: func(ev channel.ServiceEvent) {
			if reply, ok := matchReply(linkID, msg, id, ev); ok {
				select {
				case replies <- reply:
				default:
				}
			}
		},
	})
	defer remove()

	if err := ch.Send(ctx, svc, mode); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Kind, err)
	}

	select {
	case reply := <-replies:
		if reply.err != nil {
			return reply.err
		}
		return writeJSON(out, reply.value)
	case <-ch.Done():
		return fmt.Errorf("%w: channel closed", errNoReply)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errNoReply, ctx.Err())
	}
}

type readReply struct {
	value any
	err   error
}

// matchReply picks the reply to msg out of the received services: a group
// response for the read address, or the datapoint value response.
func matchReply(linkID string, msg link.CommandMessage, id dpt.ID, ev channel.ServiceEvent) (readReply, bool) {
	switch svc := ev.Service.(type) {
	case cemi.LData:
		if msg.Kind != link.KindGroupRead {
			return readReply{}, false
		}
		ga, err := cemi.ParseGroupAddress(msg.Target)
		if err != nil || svc.Code != cemi.LDataInd || !svc.GroupDestination() ||
			svc.APCI != cemi.APCIGroupResponse || svc.Group() != ga {
			return readReply{}, false
		}
		gm := link.NewGroupMessage(linkID, svc, ev.Sequence, ev.Received)
		if id != "" {
			v, err := dpt.Decode(id, svc.Data)
			if err != nil {
				return readReply{err: err}, true
			}
			gm.Value = v
		}
		return readReply{value: gm}, true

	case baos.Message:
		if msg.Kind != link.KindGetDatapoint || svc.Subservice != baos.GetDatapointValueRes {
			return readReply{}, false
		}
		if svc.IsError() {
			return readReply{err: svc.Err()}, true
		}
		msgs := link.NewDatapointMessages(linkID, svc, ev.Received)
		if id != "" {
			for i := range msgs {
				v, err := dpt.Decode(id, svc.Items[i].Data)
				if err != nil {
					return readReply{err: err}, true
				}
				msgs[i].Value = v
			}
		}
		return readReply{value: msgs}, true
	}
	return readReply{}, false
}
