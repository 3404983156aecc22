package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RecorderDB stores raw telemetry sessions for later replay. Packets are
// kept verbatim so a replayed session exercises the exact bytes the game
// produced, malformed frames included.
type RecorderDB struct {
	*sql.DB
}

// NewRecorderDB opens (creating if needed) a telemetry recording database.
func NewRecorderDB(path string) (*RecorderDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			note              TEXT,
			started           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS packets (
			session_id        TEXT,
			seq               BIGINT,
			offset_ns         BIGINT,
			data              BLOB,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS packets_by_session ON packets(session_id, seq);
	`)
	if err != nil {
		return nil, err
	}

	return &RecorderDB{db}, nil
}

// Recorder appends telemetry buffers to one recording session.
type Recorder struct {
	db        *RecorderDB
	sessionID string
	start     time.Time
	seq       int64
}

// NewRecorder creates a recording session with a fresh session ID.
func (db *RecorderDB) NewRecorder(note string) (*Recorder, error) {
	id := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO sessions (session_id, note) VALUES (?, ?)`, id, note); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &Recorder{
		db:        db,
		sessionID: id,
		start:     time.Now(),
	}, nil
}

// SessionID returns the ID of the recording session.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Record appends one raw packet to the session, stamped with its offset
// from the start of the recording.
func (r *Recorder) Record(packet []byte) error {
	offset := time.Since(r.start).Nanoseconds()
	_, err := r.db.Exec(
		`INSERT INTO packets (session_id, seq, offset_ns, data) VALUES (?, ?, ?, ?)`,
		r.sessionID, r.seq, offset, packet,
	)
	if err != nil {
		return fmt.Errorf("failed to record packet: %w", err)
	}
	r.seq++
	return nil
}

// Replay reads a recorded session in sequence order and delivers each
// packet to out, sleeping to honor the original inter-packet gaps. A
// speed factor of 2.0 replays twice as fast; 0 or 1.0 replays in real
// time. Replay closes out when the session is exhausted.
func (db *RecorderDB) Replay(ctx context.Context, sessionID string, speed float64, out chan<- []byte) error {
	defer close(out)

	if speed <= 0 {
		speed = 1.0
	}

	rows, err := db.Query(
		`SELECT offset_ns, data FROM packets WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}
	defer rows.Close()

	start := time.Now()
	count := 0
	for rows.Next() {
		var offsetNs int64
		var data []byte
		if err := rows.Scan(&offsetNs, &data); err != nil {
			return fmt.Errorf("failed to scan packet: %w", err)
		}

		due := start.Add(time.Duration(float64(offsetNs) / speed))
		if wait := time.Until(due); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- data:
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("Replayed %d packets from session %s", count, sessionID)
	return nil
}

// Sessions lists recorded session IDs with their packet counts, newest first.
func (db *RecorderDB) Sessions() (map[string]int64, error) {
	rows, err := db.Query(`
		SELECT s.session_id, COUNT(p.seq)
		FROM sessions s LEFT JOIN packets p ON p.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make(map[string]int64)
	for rows.Next() {
		var id string
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		sessions[id] = count
	}
	return sessions, rows.Err()
}
