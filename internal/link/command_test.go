package link

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-knxlink/internal/baos"
	"github.com/nerrad567/gray-logic-knxlink/internal/cemi"
	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
)

func TestParseCommand(t *testing.T) {
	t.Run("fills missing id", func(t *testing.T) {
		cmd, err := ParseCommand([]byte(`{"kind":"group_read","target":"1/2/3"}`))
		if err != nil {
			t.Fatalf("ParseCommand() error = %v", err)
		}
		if cmd.ID == "" {
			t.Error("ID is empty, want generated UUID")
		}
	})

	t.Run("keeps given id", func(t *testing.T) {
		cmd, err := ParseCommand([]byte(`{"id":"req-1","kind":"group_read","target":"1/2/3"}`))
		if err != nil {
			t.Fatalf("ParseCommand() error = %v", err)
		}
		if cmd.ID != "req-1" {
			t.Errorf("ID = %q, want req-1", cmd.ID)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseCommand([]byte(`{not json`))
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("error = %v, want ErrInvalidCommand", err)
		}
	})
}

func TestCommandBuild(t *testing.T) {
	tests := []struct {
		name     string
		cmd      CommandMessage
		wantMode channel.Mode
		wantErr  bool
		check    func(t *testing.T, svc channel.Service)
	}{
		{
			name:     "group write",
			cmd:      CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", Data: "01"},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				f, ok := svc.(cemi.LData)
				if !ok {
					t.Fatalf("service = %T, want cemi.LData", svc)
				}
				if f.Group() != cemi.NewGroupAddress(1, 2, 3) {
					t.Errorf("destination = %s, want 1/2/3", f.Group())
				}
				if f.APCI != cemi.APCIGroupWrite || len(f.Data) != 1 || f.Data[0] != 0x01 {
					t.Errorf("frame = %s, want write of 01", f)
				}
			},
		},
		{
			name:     "group read non-blocking",
			cmd:      CommandMessage{Kind: KindGroupRead, Target: "31/7/255", Mode: "non-blocking"},
			wantMode: channel.NonBlocking,
			check: func(t *testing.T, svc channel.Service) {
				f := svc.(cemi.LData)
				if f.APCI != cemi.APCIGroupRead {
					t.Errorf("APCI = 0x%02X, want read", f.APCI)
				}
			},
		},
		{
			name:     "group write with confirmation",
			cmd:      CommandMessage{Kind: KindGroupWrite, Target: "0/0/1", Data: "0c1a", Mode: "wait-for-con"},
			wantMode: channel.WaitForCon,
		},
		{
			name:     "set datapoint",
			cmd:      CommandMessage{Kind: KindSetDatapoint, Target: "12", Data: "01"},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				m := svc.(baos.Message)
				if m.Subservice != baos.SetDatapointValueReq || len(m.Items) != 1 || m.Items[0].ID != 12 {
					t.Errorf("message = %s, want SetDatapointValue for 12", m)
				}
				if m.Items[0].Flags != baosSetAndSend {
					t.Errorf("command byte = 0x%02X, want 0x%02X", m.Items[0].Flags, baosSetAndSend)
				}
			},
		},
		{
			name:     "get datapoint default count",
			cmd:      CommandMessage{Kind: KindGetDatapoint, Target: "5"},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				m := svc.(baos.Message)
				if m.StartItem != 5 || m.ItemCount != 1 {
					t.Errorf("start/count = %d/%d, want 5/1", m.StartItem, m.ItemCount)
				}
			},
		},
		{
			name:     "get server item range",
			cmd:      CommandMessage{Kind: KindGetServerItem, Target: "1", Count: 10},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				m := svc.(baos.Message)
				if m.Subservice != baos.GetServerItemReq || m.ItemCount != 10 {
					t.Errorf("message = %s, want GetServerItem x10", m)
				}
			},
		},
		{
			name:     "group write with percentage uses long form",
			cmd:      CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", DPT: "5.001", Value: "10"},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				f := svc.(cemi.LData)
				if !f.LongForm || len(f.Data) != 1 || f.Data[0] != 0x1A {
					t.Errorf("frame = %+v, want long-form 1A", f)
				}
			},
		},
		{
			name:     "group write with switch stays short",
			cmd:      CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", DPT: "1.001", Value: "on"},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				f := svc.(cemi.LData)
				if f.LongForm || f.Data[0] != 0x01 {
					t.Errorf("frame = %+v, want short 01", f)
				}
			},
		},
		{
			name:     "set datapoint with temperature",
			cmd:      CommandMessage{Kind: KindSetDatapoint, Target: "12", DPT: "9.001", Value: "21.5"},
			wantMode: channel.WaitForAck,
			check: func(t *testing.T, svc channel.Service) {
				m := svc.(baos.Message)
				if d := m.Items[0].Data; len(d) != 2 || d[0] != 0x0C || d[1] != 0x33 {
					t.Errorf("data = % X, want 0C 33", d)
				}
			},
		},
		{name: "data and dpt together", cmd: CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", Data: "01", DPT: "1.001", Value: "on"}, wantErr: true},
		{name: "value out of range", cmd: CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", DPT: "5.001", Value: "150"}, wantErr: true},
		{name: "temperature not a number", cmd: CommandMessage{Kind: KindSetDatapoint, Target: "12", DPT: "9.001", Value: "NaN"}, wantErr: true},
		{name: "unknown dpt", cmd: CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", DPT: "14.068", Value: "1"}, wantErr: true},
		{name: "unknown kind", cmd: CommandMessage{Kind: "dim", Target: "1/2/3"}, wantErr: true},
		{name: "unknown mode", cmd: CommandMessage{Kind: KindGroupRead, Target: "1/2/3", Mode: "later"}, wantErr: true},
		{name: "bad group address", cmd: CommandMessage{Kind: KindGroupRead, Target: "32/0/0"}, wantErr: true},
		{name: "write without data", cmd: CommandMessage{Kind: KindGroupWrite, Target: "1/2/3"}, wantErr: true},
		{name: "write with bad hex", cmd: CommandMessage{Kind: KindGroupWrite, Target: "1/2/3", Data: "zz"}, wantErr: true},
		{name: "item id zero", cmd: CommandMessage{Kind: KindGetDatapoint, Target: "0"}, wantErr: true},
		{name: "item id not a number", cmd: CommandMessage{Kind: KindGetServerItem, Target: "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mode, err := tt.cmd.Build()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("Build() error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if mode != tt.wantMode {
				t.Errorf("mode = %s, want %s", mode, tt.wantMode)
			}
			if tt.check != nil {
				tt.check(t, svc)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	cmd := CommandMessage{ID: "req-1", Kind: KindGroupWrite, Target: "1/2/3"}

	tests := []struct {
		name       string
		mode       channel.Mode
		err        error
		wantStatus ResponseStatus
		wantCode   string
	}{
		{"sent", channel.NonBlocking, nil, StatusSent, ""},
		{"acknowledged", channel.WaitForAck, nil, StatusAcknowledged, ""},
		{"confirmed", channel.WaitForCon, nil, StatusConfirmed, ""},
		{"invalid", channel.WaitForAck, fmt.Errorf("%w: x", ErrInvalidCommand), StatusFailed, ErrCodeInvalidCommand},
		{"unsupported", channel.WaitForCon, fmt.Errorf("%w: no con", channel.ErrUnsupported), StatusFailed, ErrCodeUnsupported},
		{"not connected", channel.WaitForAck, ErrNotConnected, StatusFailed, ErrCodeNotConnected},
		{"closed", channel.WaitForAck, channel.ErrConnectionClosed, StatusFailed, ErrCodeNotConnected},
		{"ack timeout", channel.WaitForAck, channel.ErrAckTimeout, StatusFailed, ErrCodeAckTimeout},
		{"con timeout", channel.WaitForCon, channel.ErrConfirmationTimeout, StatusFailed, ErrCodeConfirmationTimeout},
		{"negative con", channel.WaitForCon, channel.ErrNegativeConfirmation, StatusFailed, ErrCodeNegativeConfirmation},
		{"other", channel.WaitForAck, errors.New("boom"), StatusFailed, ErrCodeSendFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(cmd, tt.mode, tt.err)
			if resp.ID != cmd.ID || resp.Target != cmd.Target {
				t.Errorf("response = %+v, want id/target copied", resp)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if tt.wantCode == "" {
				if resp.Error != nil {
					t.Errorf("Error = %+v, want nil", resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("Error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if resp.outcome() != tt.wantCode {
				t.Errorf("outcome() = %s, want %s", resp.outcome(), tt.wantCode)
			}
		})
	}
}

func TestNewGroupMessage(t *testing.T) {
	f := cemi.NewGroupWrite(cemi.NewGroupAddress(1, 2, 3), []byte{0x0c, 0x1a})
	f.Code = cemi.LDataInd
	f.Source = 0x1105

	msg := NewGroupMessage("hall", f, 7, testTime)
	if msg.Destination != "1/2/3" || msg.Source != "1.1.5" {
		t.Errorf("addresses = %s -> %s, want 1.1.5 -> 1/2/3", msg.Source, msg.Destination)
	}
	if msg.Service != "write" || msg.Data != "0c1a" || msg.Sequence != 7 {
		t.Errorf("message = %+v", msg)
	}
	if msg.Code != "L_Data.ind" {
		t.Errorf("Code = %s, want L_Data.ind", msg.Code)
	}
}

func TestNewDatapointMessages(t *testing.T) {
	m := baos.Message{
		Subservice: baos.DatapointValueInd,
		Items: []baos.Item{
			{ID: 1, Flags: 0x10, Data: []byte{0x01}},
			{ID: 2, Flags: 0x10, Data: []byte{0x0c, 0x1a}},
		},
	}
	msgs := NewDatapointMessages("hall", m, testTime)
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[1].ID != 2 || msgs[1].Data != "0c1a" || msgs[1].State != 0x10 {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}
