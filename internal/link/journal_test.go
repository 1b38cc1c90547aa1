package link

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-knxlink/migrations"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "knxlink.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewJournal(db.DB)
}

func TestJournalSessionLifecycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	s := Session{
		ID:        "s-1",
		LinkID:    "hall",
		Protocol:  "tunneling",
		Transport: "udp",
		Gateway:   "192.168.1.10:3671",
		ChannelID: 21,
		OpenedAt:  testTime,
	}
	if err := j.OpenSession(ctx, s); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	sessions, err := j.RecentSessions(ctx, "hall", 10)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].ClosedAt != nil {
		t.Errorf("ClosedAt = %v, want nil for open session", sessions[0].ClosedAt)
	}
	if !sessions[0].OpenedAt.Equal(testTime) || sessions[0].ChannelID != 21 {
		t.Errorf("session = %+v", sessions[0])
	}

	closedAt := testTime.Add(90 * time.Second)
	counters := map[string]uint64{
		"frames_tx":       4,
		"frames_rx":       7,
		"duplicates":      1,
		"heartbeats_sent": 2,
		"undeliverable":   3, // not journalled
	}
	if err := j.CloseSession(ctx, "s-1", closedAt, "remote-endpoint", "gateway disconnected", counters); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}

	sessions, err = j.RecentSessions(ctx, "hall", 10)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	got := sessions[0]
	if got.ClosedAt == nil || !got.ClosedAt.Equal(closedAt) {
		t.Errorf("ClosedAt = %v, want %v", got.ClosedAt, closedAt)
	}
	if got.CloseReason != "remote-endpoint" || got.CloseMessage != "gateway disconnected" {
		t.Errorf("close = %q/%q", got.CloseReason, got.CloseMessage)
	}
	want := map[string]uint64{"frames_tx": 4, "frames_rx": 7, "duplicates": 1, "heartbeats": 2, "acks_tx": 0}
	for name, v := range want {
		if got.Counters[name] != v {
			t.Errorf("Counters[%s] = %d, want %d", name, got.Counters[name], v)
		}
	}
}

func TestJournalCloseUnknownSession(t *testing.T) {
	j := newTestJournal(t)
	err := j.CloseSession(context.Background(), "missing", testTime, "user-requested", "", nil)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("CloseSession() error = %v, want sql.ErrNoRows", err)
	}
}

func TestJournalRecentSessionsOrder(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		s := Session{ID: id, LinkID: "hall", Protocol: "tunneling", Transport: "udp",
			Gateway: "gw:3671", OpenedAt: testTime.Add(time.Duration(i) * time.Second)}
		if err := j.OpenSession(ctx, s); err != nil {
			t.Fatalf("OpenSession(%s) error = %v", id, err)
		}
	}
	other := Session{ID: "x", LinkID: "garage", Protocol: "tunneling", Transport: "udp",
		Gateway: "gw:3671", OpenedAt: testTime.Add(time.Hour)}
	if err := j.OpenSession(ctx, other); err != nil {
		t.Fatalf("OpenSession(x) error = %v", err)
	}

	sessions, err := j.RecentSessions(ctx, "hall", 2)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "c" || sessions[1].ID != "b" {
		ids := make([]string, len(sessions))
		for i, s := range sessions {
			ids[i] = s.ID
		}
		t.Errorf("ids = %v, want [c b]", ids)
	}
}

func TestJournalCommands(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.OpenSession(ctx, Session{ID: "s-1", LinkID: "hall", Protocol: "tunneling",
		Transport: "udp", Gateway: "gw:3671", OpenedAt: testTime}); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	records := []CommandRecord{
		{ID: "c-1", SessionID: "s-1", ReceivedAt: testTime.Add(time.Second), Kind: "group_write",
			Target: "1/2/3", Mode: "wait-for-ack", Outcome: "acknowledged"},
		{ID: "c-2", SessionID: "s-1", ReceivedAt: testTime.Add(2 * time.Second), Kind: "group_write",
			Target: "1/2/4", Mode: "wait-for-ack", Outcome: ErrCodeAckTimeout, Error: "channel: acknowledgment timeout"},
		{ID: "c-3", ReceivedAt: testTime.Add(3 * time.Second), Kind: "group_read",
			Target: "1/2/5", Mode: "wait-for-ack", Outcome: ErrCodeNotConnected},
	}
	for _, rec := range records {
		if err := j.RecordCommand(ctx, rec); err != nil {
			t.Fatalf("RecordCommand(%s) error = %v", rec.ID, err)
		}
	}

	got, err := j.Commands(ctx, "s-1")
	if err != nil {
		t.Fatalf("Commands() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(commands) = %d, want 2", len(got))
	}
	if got[0].ID != "c-1" || got[0].Error != "" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Outcome != ErrCodeAckTimeout || got[1].Error == "" {
		t.Errorf("got[1] = %+v", got[1])
	}
	if !got[1].ReceivedAt.Equal(testTime.Add(2 * time.Second)) {
		t.Errorf("ReceivedAt = %v", got[1].ReceivedAt)
	}
}

func TestJournalRejectsUnknownSessionReference(t *testing.T) {
	j := newTestJournal(t)
	err := j.RecordCommand(context.Background(), CommandRecord{
		ID: "c-1", SessionID: "missing", ReceivedAt: testTime, Kind: "group_read",
		Target: "1/2/3", Mode: "wait-for-ack", Outcome: "acknowledged",
	})
	if err == nil {
		t.Error("RecordCommand() with unknown session succeeded, want foreign key error")
	}
}
