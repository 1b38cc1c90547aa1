package link

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-knxlink/internal/baos"
	"github.com/nerrad567/gray-logic-knxlink/internal/cemi"
	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
	"github.com/nerrad567/gray-logic-knxlink/internal/dpt"
)

// baosSetAndSend is the SetDatapointValue command byte "set new value and
// send on bus".
const baosSetAndSend byte = 0x03

// ParseCommand decodes a command payload. A missing ID is filled with a
// random UUID so the caller can always publish a response.
//
// Returns:
//   - CommandMessage: The decoded command (ID set even on validation errors
//     once the JSON itself parsed)
//   - error: ErrInvalidCommand wrapping the cause
func ParseCommand(payload []byte) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	return cmd, nil
}

// Build translates the command into a channel service and send mode.
func (cmd CommandMessage) Build() (channel.Service, channel.Mode, error) {
	mode, err := parseMode(cmd.Mode)
	if err != nil {
		return nil, 0, err
	}

	switch cmd.Kind {
	case KindGroupWrite:
		ga, err := cemi.ParseGroupAddress(cmd.Target)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		data, longForm, err := cmd.payload()
		if err != nil {
			return nil, 0, err
		}
		w := cemi.NewGroupWrite(ga, data)
		w.LongForm = longForm
		return w, mode, nil

	case KindGroupRead:
		ga, err := cemi.ParseGroupAddress(cmd.Target)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return cemi.NewGroupRead(ga), mode, nil

	case KindSetDatapoint:
		id, err := cmd.itemID()
		if err != nil {
			return nil, 0, err
		}
		data, _, err := cmd.payload()
		if err != nil {
			return nil, 0, err
		}
		return baos.NewSetDatapointValue(baos.Item{ID: id, Flags: baosSetAndSend, Data: data}), mode, nil

	case KindGetDatapoint:
		id, err := cmd.itemID()
		if err != nil {
			return nil, 0, err
		}
		return baos.NewGetDatapointValue(id, cmd.count(), 0), mode, nil

	case KindGetServerItem:
		id, err := cmd.itemID()
		if err != nil {
			return nil, 0, err
		}
		return baos.NewGetServerItem(id, cmd.count()), mode, nil

	default:
		return nil, 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, cmd.Kind)
	}
}

// payload returns the value to write: Data as hex, or Value encoded for
// DPT. longForm is set for datapoint types wider than six bits.
func (cmd CommandMessage) payload() (data []byte, longForm bool, err error) {
	if cmd.DPT == "" {
		data, err = cmd.data()
		return data, false, err
	}
	if cmd.Data != "" {
		return nil, false, fmt.Errorf("%w: data and dpt are mutually exclusive", ErrInvalidCommand)
	}
	id := dpt.ID(cmd.DPT)
	data, err = dpt.Encode(id, cmd.Value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return data, !id.Short(), nil
}

func (cmd CommandMessage) data() ([]byte, error) {
	if cmd.Data == "" {
		return nil, fmt.Errorf("%w: %s needs data", ErrInvalidCommand, cmd.Kind)
	}
	b, err := hex.DecodeString(cmd.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrInvalidCommand, err)
	}
	return b, nil
}

func (cmd CommandMessage) itemID() (uint16, error) {
	id, err := strconv.ParseUint(cmd.Target, 10, 16)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: item id %q", ErrInvalidCommand, cmd.Target)
	}
	return uint16(id), nil
}

func (cmd CommandMessage) count() uint16 {
	if cmd.Count == 0 {
		return 1
	}
	return cmd.Count
}

func parseMode(s string) (channel.Mode, error) {
	switch s {
	case "", channel.WaitForAck.String():
		return channel.WaitForAck, nil
	case channel.NonBlocking.String():
		return channel.NonBlocking, nil
	case channel.WaitForCon.String():
		return channel.WaitForCon, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidCommand, s)
	}
}

// NewResponse builds the response for cmd. A nil err reports success for
// the given mode.
func NewResponse(cmd CommandMessage, mode channel.Mode, err error) ResponseMessage {
	resp := ResponseMessage{
		ID:        cmd.ID,
		Timestamp: time.Now().UTC(),
		Kind:      cmd.Kind,
		Target:    cmd.Target,
	}
	if err != nil {
		resp.Status = StatusFailed
		resp.Error = &ErrorDetail{Code: errorCode(err), Message: err.Error()}
		return resp
	}
	switch mode {
	case channel.NonBlocking:
		resp.Status = StatusSent
	case channel.WaitForCon:
		resp.Status = StatusConfirmed
	default:
		resp.Status = StatusAcknowledged
	}
	return resp
}

// errorCode maps a send failure to a response error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, channel.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, ErrNotConnected), errors.Is(err, channel.ErrConnectionClosed):
		return ErrCodeNotConnected
	case errors.Is(err, channel.ErrAckTimeout):
		return ErrCodeAckTimeout
	case errors.Is(err, channel.ErrConfirmationTimeout):
		return ErrCodeConfirmationTimeout
	case errors.Is(err, channel.ErrNegativeConfirmation):
		return ErrCodeNegativeConfirmation
	default:
		return ErrCodeSendFailed
	}
}

// outcome is the short form stored in the journal and metrics.
func (r ResponseMessage) outcome() string {
	if r.Error != nil {
		return r.Error.Code
	}
	return string(r.Status)
}
