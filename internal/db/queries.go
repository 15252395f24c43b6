package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/itemization"
	"replay-analyzer/internal/timeline"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("match not found")

// Match is one row of the matches table
type Match struct {
	MatchID     string    `json:"matchId"`
	RunID       string    `json:"runId,omitempty"`
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

// MatchDetail is a match with its timeline and itemization summary
type MatchDetail struct {
	Match
	Timeline timeline.Timeline       `json:"timeline"`
	Summary  []itemization.HeroItems `json:"summary"`
}

// SaveReport upserts the match row and rewrites its item events
func (db *DB) SaveReport(ctx context.Context, r *analyzer.Report) error {
	timelineJSON, err := json.Marshal(r.Timeline)
	if err != nil {
		return err
	}
	summary := r.Summary
	if summary == nil {
		summary = []itemization.HeroItems{}
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	var endTick, losingTeam int64
	if r.End != nil {
		endTick, losingTeam = r.End.Tick, r.End.LosingTeam
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (
			match_id, run_id, status, tick_offset, reason, end_tick, losing_team,
			entities, attributed, dropped, timeline, summary, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (match_id) DO UPDATE SET
			run_id = EXCLUDED.run_id, status = EXCLUDED.status, tick_offset = EXCLUDED.tick_offset,
			reason = EXCLUDED.reason, end_tick = EXCLUDED.end_tick, losing_team = EXCLUDED.losing_team,
			entities = EXCLUDED.entities, attributed = EXCLUDED.attributed, dropped = EXCLUDED.dropped,
			timeline = EXCLUDED.timeline, summary = EXCLUDED.summary, processed_at = EXCLUDED.processed_at
	`, r.MatchID, r.RunID, string(r.Status), r.Offset, r.Reason, endTick, losingTeam,
		r.Stats.Entities, r.Stats.Attributed, r.Stats.Dropped, timelineJSON, summaryJSON, r.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM item_events WHERE match_id = $1`, r.MatchID); err != nil {
		return fmt.Errorf("failed to clear item events: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range r.Timeline.Entities {
		for _, obj := range e.Items.Objects {
			for seq, ev := range obj.History.Events {
				batch.Queue(`
					INSERT INTO item_events (match_id, player_id, object_id, seq, item, tick, status)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
				`, r.MatchID, int64(e.ID), obj.ID, seq, obj.Name, ev.Tick, string(ev.Status))
			}
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save item events: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// MatchExists checks if a match already exists in the database
func (db *DB) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM matches WHERE match_id = $1)
	`, matchID).Scan(&exists)
	return exists, err
}

// MatchCount returns the total number of matches
func (db *DB) MatchCount(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM matches`).Scan(&count)
	return count, err
}

// ListMatches returns the most recently processed matches
func (db *DB) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT match_id, run_id, status, tick_offset, reason, end_tick, losing_team,
		       entities, attributed, dropped, processed_at
		FROM matches
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.MatchID, &m.RunID, &m.Status, &m.Offset, &m.Reason, &m.EndTick, &m.LosingTeam,
			&m.Entities, &m.Attributed, &m.Dropped, &m.ProcessedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetTimeline returns a match with its stored timeline
func (db *DB) GetTimeline(ctx context.Context, matchID string) (*MatchDetail, error) {
	var m MatchDetail
	var timelineJSON, summaryJSON []byte

	err := db.pool.QueryRow(ctx, `
		SELECT match_id, run_id, status, tick_offset, reason, end_tick, losing_team,
		       entities, attributed, dropped, processed_at, timeline, summary
		FROM matches WHERE match_id = $1
	`, matchID).Scan(&m.MatchID, &m.RunID, &m.Status, &m.Offset, &m.Reason, &m.EndTick, &m.LosingTeam,
		&m.Entities, &m.Attributed, &m.Dropped, &m.ProcessedAt, &timelineJSON, &summaryJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(timelineJSON, &m.Timeline); err != nil {
		return nil, fmt.Errorf("failed to decode timeline: %w", err)
	}
	if err := json.Unmarshal(summaryJSON, &m.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &m, nil
}
