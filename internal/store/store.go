// Package store persists match reports to SQLite or to a Turso (libSQL) database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/timeline"

	json "github.com/goccy/go-json"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("match not found")

// Store wraps a database/sql handle speaking the SQLite dialect
type Store struct {
	db *sql.DB
}

// MatchSummary is one row of the matches table
type MatchSummary struct {
	MatchID     string    `json:"matchId"`
	Status      string    `json:"status"`
	Offset      int64     `json:"offset"`
	Reason      string    `json:"reason,omitempty"`
	EndTick     int64     `json:"endTick"`
	LosingTeam  int64     `json:"losingTeam"`
	Entities    int       `json:"entities"`
	Attributed  int       `json:"attributed"`
	Dropped     int       `json:"dropped"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Open opens (creating if needed) a local SQLite database
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// OpenTurso connects to a remote libSQL database
func OpenTurso(url, authToken string) (*Store, error) {
	connStr := url
	if authToken != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Turso: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Turso: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTables creates the schema if it does not exist
func (s *Store) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			tick_offset INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			end_tick INTEGER NOT NULL DEFAULT 0,
			losing_team INTEGER NOT NULL DEFAULT 0,
			entities INTEGER NOT NULL DEFAULT 0,
			attributed INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			timeline TEXT NOT NULL,
			processed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS item_events (
			match_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			object_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			item TEXT NOT NULL,
			tick INTEGER NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (match_id, player_id, object_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_events_player ON item_events(match_id, player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_processed ON matches(processed_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SaveReport replaces everything stored for the report's match in one transaction
func (s *Store) SaveReport(ctx context.Context, r *analyzer.Report) error {
	encoded, err := json.Marshal(r.Timeline)
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}

	var endTick, losingTeam int64
	if r.End != nil {
		endTick, losingTeam = r.End.Tick, r.End.LosingTeam
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO matches
			(match_id, run_id, status, tick_offset, reason, end_tick, losing_team, entities, attributed, dropped, timeline, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MatchID, r.RunID, string(r.Status), r.Offset, r.Reason, endTick, losingTeam,
		r.Stats.Entities, r.Stats.Attributed, r.Stats.Dropped, string(encoded),
		r.ProcessedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_events WHERE match_id = ?`, r.MatchID); err != nil {
		return fmt.Errorf("failed to clear item events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO item_events (match_id, player_id, object_id, seq, item, tick, status) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range r.Timeline.Entities {
		for _, obj := range e.Items.Objects {
			for seq, ev := range obj.History.Events {
				if _, err := stmt.ExecContext(ctx, r.MatchID, int64(e.ID), obj.ID, seq, obj.Name, ev.Tick, string(ev.Status)); err != nil {
					return fmt.Errorf("failed to save item event: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}

// LoadTimeline returns the stored timeline of a match
func (s *Store) LoadTimeline(ctx context.Context, matchID string) (timeline.Timeline, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT timeline FROM matches WHERE match_id = ?`, matchID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return timeline.Timeline{}, ErrNotFound
	}
	if err != nil {
		return timeline.Timeline{}, err
	}

	var tl timeline.Timeline
	if err := json.Unmarshal([]byte(encoded), &tl); err != nil {
		return timeline.Timeline{}, fmt.Errorf("failed to decode timeline: %w", err)
	}
	return tl, nil
}

// ListMatches returns the most recently processed matches first
func (s *Store) ListMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, status, tick_offset, reason, end_tick, losing_team, entities, attributed, dropped, processed_at
		FROM matches
		ORDER BY processed_at DESC, match_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var m MatchSummary
		var processed string
		if err := rows.Scan(&m.MatchID, &m.Status, &m.Offset, &m.Reason, &m.EndTick, &m.LosingTeam,
			&m.Entities, &m.Attributed, &m.Dropped, &processed); err != nil {
			return nil, err
		}
		m.ProcessedAt, _ = time.Parse(time.RFC3339, processed)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ItemEventCount returns the number of stored status events of a match
func (s *Store) ItemEventCount(ctx context.Context, matchID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_events WHERE match_id = ?`, matchID).Scan(&count)
	return count, err
}

// MatchExists checks if a match was already saved
func (s *Store) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM matches WHERE match_id = ?)`, matchID).Scan(&exists)
	return exists, err
}
