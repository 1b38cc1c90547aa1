package link

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Journal records channel sessions and commands in SQLite.
//
// The schema lives in migrations/ and must be applied before use.
//
// Thread Safety: safe for concurrent use (database/sql pools connections).
type Journal struct {
	db *sql.DB
}

// Session is one journalled channel session, from open to close.
type Session struct {
	ID        string `json:"id"`
	LinkID    string `json:"link_id"`
	Protocol  string `json:"protocol"`
	Transport string `json:"transport"`
	Gateway   string `json:"gateway"`
	ChannelID uint8  `json:"channel_id"`

	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	CloseReason  string     `json:"close_reason,omitempty"`
	CloseMessage string     `json:"close_message,omitempty"`

	Counters map[string]uint64 `json:"counters"`
}

// CommandRecord is one journalled command.
type CommandRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Mode       string    `json:"mode"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

// journalCounters are the statistics columns of channel_sessions, in
// column order.
var journalCounters = []string{
	"frames_tx", "frames_rx", "acks_tx", "acks_rx", "duplicates",
	"out_of_order", "format_errors", "ack_timeouts", "heartbeats",
}

// statsColumn maps channel.Stats counter names onto journal columns where
// they differ.
var statsColumn = map[string]string{
	"heartbeats_sent": "heartbeats",
}

// NewJournal returns a journal over an open, migrated database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// OpenSession inserts a new session row.
func (j *Journal) OpenSession(ctx context.Context, s Session) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO channel_sessions (id, link_id, protocol, transport, gateway, channel_id, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.LinkID, s.Protocol, s.Transport, s.Gateway, int(s.ChannelID), formatTime(s.OpenedAt),
	)
	if err != nil {
		return fmt.Errorf("journal: open session %s: %w", s.ID, err)
	}
	return nil
}

// CloseSession stores the close time, reason and final counters.
// Counters use channel.Stats names; unknown names are ignored.
func (j *Journal) CloseSession(ctx context.Context, id string, closedAt time.Time,
	reason, message string, counters map[string]uint64) error {
	cols := make(map[string]int64, len(journalCounters))
	for name, v := range counters {
		if c, ok := statsColumn[name]; ok {
			name = c
		}
		cols[name] = int64(v) //nolint:gosec // G115: counters stay far below 2^63
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE channel_sessions
		SET closed_at = ?, close_reason = ?, close_message = ?,
		    frames_tx = ?, frames_rx = ?, acks_tx = ?, acks_rx = ?, duplicates = ?,
		    out_of_order = ?, format_errors = ?, ack_timeouts = ?, heartbeats = ?
		WHERE id = ?`,
		formatTime(closedAt), reason, message,
		cols["frames_tx"], cols["frames_rx"], cols["acks_tx"], cols["acks_rx"], cols["duplicates"],
		cols["out_of_order"], cols["format_errors"], cols["ack_timeouts"], cols["heartbeats"],
		id,
	)
	if err != nil {
		return fmt.Errorf("journal: close session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("journal: close session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// RecordCommand inserts a command outcome.
func (j *Journal) RecordCommand(ctx context.Context, rec CommandRecord) error {
	var session any
	if rec.SessionID != "" {
		session = rec.SessionID
	}
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO commands (id, session_id, received_at, kind, target, mode, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, session, formatTime(rec.ReceivedAt), rec.Kind, rec.Target, rec.Mode, rec.Outcome, errText,
	)
	if err != nil {
		return fmt.Errorf("journal: record command %s: %w", rec.ID, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions of a link, newest first.
func (j *Journal) RecentSessions(ctx context.Context, linkID string, limit int) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, link_id, protocol, transport, gateway, channel_id, opened_at,
		       closed_at, close_reason, close_message,
		       frames_tx, frames_rx, acks_tx, acks_rx, duplicates,
		       out_of_order, format_errors, ack_timeouts, heartbeats
		FROM channel_sessions
		WHERE link_id = ?
		ORDER BY opened_at DESC
		LIMIT ?`, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s                         Session
			channelID                 int
			openedAt                  string
			closedAt, reason, message sql.NullString
		)
		counts := make([]int64, len(journalCounters))
		dest := []any{&s.ID, &s.LinkID, &s.Protocol, &s.Transport, &s.Gateway,
			&channelID, &openedAt, &closedAt, &reason, &message}
		for i := range counts {
			dest = append(dest, &counts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("journal: scan session: %w", err)
		}

		s.ChannelID = uint8(channelID) //nolint:gosec // G115: stored from a uint8
		if s.OpenedAt, err = parseTime(openedAt); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			t, err := parseTime(closedAt.String)
			if err != nil {
				return nil, err
			}
			s.ClosedAt = &t
		}
		s.CloseReason = reason.String
		s.CloseMessage = message.String
		s.Counters = make(map[string]uint64, len(journalCounters))
		for i, name := range journalCounters {
			s.Counters[name] = uint64(counts[i]) //nolint:gosec // G115: never negative
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate sessions: %w", err)
	}
	return sessions, nil
}

// Commands returns the commands recorded for a session, oldest first.
func (j *Journal) Commands(ctx context.Context, sessionID string) ([]CommandRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, received_at, kind, target, mode, outcome, error
		FROM commands
		WHERE session_id = ?
		ORDER BY received_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal: query commands: %w", err)
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var (
			rec          CommandRecord
			session      sql.NullString
			receivedAt   string
			errorMessage sql.NullString
		)
		if err := rows.Scan(&rec.ID, &session, &receivedAt, &rec.Kind, &rec.Target,
			&rec.Mode, &rec.Outcome, &errorMessage); err != nil {
			return nil, fmt.Errorf("journal: scan command: %w", err)
		}
		rec.SessionID = session.String
		rec.Error = errorMessage.String
		if rec.ReceivedAt, err = parseTime(receivedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate commands: %w", err)
	}
	return records, nil
}

// timeLayout is RFC 3339 with fixed nanoseconds, so UTC values sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("journal: parse time %q: %w", s, err)
	}
	return t, nil
}
