// Package archive keeps a sqlite history of finished sessions so reports can
// be listed and compared across runs.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrCodeEU/drowsiguard/pkg/logging"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		start_unix_ms BIGINT NOT NULL,
		duration DOUBLE NOT NULL,
		samples BIGINT NOT NULL,
		average_fps DOUBLE NOT NULL,
		drowsy_count BIGINT NOT NULL,
		distracted_count BIGINT NOT NULL,
		yawn_count BIGINT NOT NULL,
		score BIGINT NOT NULL,
		archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		offset_seconds DOUBLE NOT NULL,
		type TEXT NOT NULL,
		wall_clock TEXT NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS events_session ON events(session_id);
`

// Archive is a sqlite database of session summaries and their events.
type Archive struct {
	*sql.DB
}

// SessionRow is an archived session summary.
type SessionRow struct {
	ID         string         `json:"session_id"`
	Started    time.Time      `json:"started"`
	Duration   float64        `json:"duration"`
	Samples    int            `json:"samples"`
	AverageFPS float64        `json:"average_fps"`
	Counts     session.Counts `json:"counts"`
	Score      int            `json:"score"`
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Archive{db}, nil
}

// SaveReport stores a report. Saving the same session again replaces it.
func (a *Archive) SaveReport(ctx context.Context, r session.Report) error {
	tx, err := a.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := r.Summary
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, s.SessionID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(session_id, start_unix_ms, duration, samples, average_fps, drowsy_count, distracted_count, yawn_count, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Started.UnixMilli(), s.Duration, s.Samples, s.AverageFPS,
		s.Counts.Drowsy, s.Counts.Distracted, s.Counts.Yawn, s.Score)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (session_id, offset_seconds, type, wall_clock) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ev := range r.Events {
		if _, err := stmt.ExecContext(ctx, s.SessionID, ev.T, string(ev.Type), ev.WallClock); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logging.Component("archive").WithFields(logging.Fields{
		"session": s.SessionID,
		"events":  len(r.Events),
	}).Debug("Archived session")
	return nil
}

// Sessions returns the most recent sessions, newest first. A limit of zero
// or less returns all of them.
func (a *Archive) Sessions(ctx context.Context, limit int) ([]SessionRow, error) {
	query := `SELECT session_id, start_unix_ms, duration, samples, average_fps,
			drowsy_count, distracted_count, yawn_count, score
		FROM sessions ORDER BY start_unix_ms DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SessionRow{}
	for rows.Next() {
		var row SessionRow
		var startMS int64
		if err := rows.Scan(&row.ID, &startMS, &row.Duration, &row.Samples, &row.AverageFPS,
			&row.Counts.Drowsy, &row.Counts.Distracted, &row.Counts.Yawn, &row.Score); err != nil {
			return nil, err
		}
		row.Started = time.UnixMilli(startMS)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Events returns the events of one session in logging order.
func (a *Archive) Events(ctx context.Context, sessionID string) ([]session.Event, error) {
	rows, err := a.QueryContext(ctx,
		`SELECT offset_seconds, type, wall_clock FROM events WHERE session_id = ? ORDER BY event_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []session.Event
	for rows.Next() {
		var ev session.Event
		var typ string
		if err := rows.Scan(&ev.T, &typ, &ev.WallClock); err != nil {
			return nil, err
		}
		ev.Type = session.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
