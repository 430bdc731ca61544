package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lazypower/garden/internal/scoring"
)

// Scores are computed in Go, not SQL: modernc.org/sqlite has no exp() or ln().

// interactionEvents loads an entity's history with each interaction's weight.
// Rows without a type reference fall back to a type of the same name, then to
// the default weight.
func interactionEvents(ctx context.Context, q querier, entityID int64) ([]scoring.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.timestamp,
			COALESCE(
				t.score,
				CASE WHEN i.interaction_type_id IS NULL THEN
					(SELECT n.score FROM interaction_types n WHERE n.name = i.type COLLATE NOCASE ORDER BY n.id LIMIT 1)
				END,
				?
			)
		FROM interactions i
		LEFT JOIN interaction_types t ON t.id = i.interaction_type_id
		WHERE i.entity_id = ?
	`, scoring.DefaultWeight, entityID)
	if err != nil {
		return nil, fmt.Errorf("load interactions for scoring: %w", err)
	}
	defer rows.Close()

	var events []scoring.Event
	for rows.Next() {
		var e scoring.Event
		if err := rows.Scan(&e.Timestamp, &e.Weight); err != nil {
			return nil, fmt.Errorf("scan scoring event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// rescore recomputes one entity's score and persists it with updated_at.
func (db *DB) rescore(ctx context.Context, q querier, entityID int64, s Settings) (float64, error) {
	events, err := interactionEvents(ctx, q, entityID)
	if err != nil {
		return 0, err
	}
	score := scoring.Score(events, s.DecayFactor, s.DecayModel, db.now())
	if _, err := q.ExecContext(ctx,
		"UPDATE entities SET interaction_score = ?, updated_at = ? WHERE id = ?",
		score, db.nowMillis(), entityID,
	); err != nil {
		return 0, fmt.Errorf("update score for %d: %w", entityID, err)
	}
	return score, nil
}

func (db *DB) rescoreAll(ctx context.Context, q querier, s Settings) (int, error) {
	ids, err := queryIDs(ctx, q, "SELECT id FROM entities ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("list entities for scoring: %w", err)
	}
	for _, id := range ids {
		if _, err := db.rescore(ctx, q, id, s); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// rescoreStored rescores every entity under the stored settings.
func (db *DB) rescoreStored(ctx context.Context, q querier) error {
	s, err := getSettings(ctx, q)
	if err != nil {
		return err
	}
	_, err = db.rescoreAll(ctx, q, s)
	return err
}

// RecomputeScore recomputes and stores one entity's score under the current
// settings.
func (db *DB) RecomputeScore(ctx context.Context, entityID int64) (float64, error) {
	var score float64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		score, err = db.rescore(ctx, tx, entityID, s)
		return err
	})
	return score, err
}

// UpdateAllInteractionScores sweeps every entity under the current settings.
// Returns the number of entities rescored.
func (db *DB) UpdateAllInteractionScores(ctx context.Context) (int, error) {
	if !db.Ready() {
		return 0, nil
	}
	var n int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		n, err = db.rescoreAll(ctx, tx, s)
		return err
	})
	return n, err
}

// queryIDs runs a query returning a single integer column. Rows are fully
// read before returning so the caller may issue further statements.
func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
