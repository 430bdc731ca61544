package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RecordInteraction logs an interaction of the named type against an entity
// at the current time. See RecordInteractionAt.
func (db *DB) RecordInteraction(ctx context.Context, entityID int64, typeName, notes string) (int, error) {
	return db.RecordInteractionAt(ctx, entityID, typeName, notes, db.now())
}

// RecordInteractionAt logs an interaction and rescores every affected
// entity. The type is matched by name ignoring case; an unknown name is
// stored as a bare label and weighted by default.
//
// Recording against a group also records one row for each current member.
// Either every row is written or none is. Returns the number of rows written.
func (db *DB) RecordInteractionAt(ctx context.Context, entityID int64, typeName, notes string, at time.Time) (int, error) {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return 0, ErrEmptyName
	}

	var written int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var kind string
		err := tx.QueryRowContext(ctx, "SELECT type FROM entities WHERE id = ?", entityID).Scan(&kind)
		if err == sql.ErrNoRows {
			return fmt.Errorf("entity %d: %w", entityID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get entity kind: %w", err)
		}

		t, err := findTypeByName(ctx, tx, typeName)
		if err != nil {
			return err
		}
		var typeID *int64
		label := typeName
		if t != nil {
			typeID = &t.ID
			label = t.Name
		}

		targets := []int64{entityID}
		if Kind(kind) == KindGroup {
			members, err := queryIDs(ctx, tx,
				"SELECT member_id FROM group_members WHERE group_id = ? ORDER BY member_id", entityID)
			if err != nil {
				return fmt.Errorf("list group members: %w", err)
			}
			targets = append(targets, members...)
		}

		ts := at.UnixMilli()
		for _, id := range targets {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO interactions (entity_id, timestamp, type, interaction_type_id, notes)
				VALUES (?, ?, ?, ?, NULLIF(?, ''))
			`, id, ts, label, typeID, notes); err != nil {
				return fmt.Errorf("insert interaction for %d: %w", id, err)
			}
		}

		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		for _, id := range targets {
			if _, err := db.rescore(ctx, tx, id, s); err != nil {
				return err
			}
		}
		written = len(targets)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record interaction: %w", err)
	}
	db.log.Debug("recorded interaction",
		zap.Int64("entity_id", entityID), zap.String("type", typeName), zap.Int("rows", written))
	return written, nil
}

// ListInteractions returns an entity's interactions, newest first. A limit
// of zero or less returns all of them.
func (db *DB) ListInteractions(ctx context.Context, entityID int64, limit int) ([]Interaction, error) {
	if !db.Ready() {
		return nil, nil
	}
	query := `
		SELECT id, entity_id, timestamp, type, interaction_type_id, notes
		FROM interactions WHERE entity_id = ?
		ORDER BY timestamp DESC, id DESC`
	args := []any{entityID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryInteractions(ctx, db, query, args...)
}

func queryInteractions(ctx context.Context, q querier, query string, args ...any) ([]Interaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var (
			i      Interaction
			typeID sql.NullInt64
			notes  sql.NullString
		)
		if err := rows.Scan(&i.ID, &i.EntityID, &i.Timestamp, &i.Type, &typeID, &notes); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if typeID.Valid {
			id := typeID.Int64
			i.InteractionTypeID = &id
		}
		i.Notes = notes.String
		out = append(out, i)
	}
	return out, rows.Err()
}

// InteractionUpdate carries corrections to a logged interaction. Nil fields
// are left unchanged.
type InteractionUpdate struct {
	Timestamp *int64
	Type      *string
	Notes     *string
}

// UpdateInteraction corrects a logged interaction and rescores its entity.
func (db *DB) UpdateInteraction(ctx context.Context, id int64, u InteractionUpdate) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var entityID int64
		err := tx.QueryRowContext(ctx, "SELECT entity_id FROM interactions WHERE id = ?", id).Scan(&entityID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("interaction %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get interaction: %w", err)
		}

		var (
			sets []string
			args []any
		)
		if u.Timestamp != nil {
			sets = append(sets, "timestamp = ?")
			args = append(args, *u.Timestamp)
		}
		if u.Type != nil {
			name := strings.TrimSpace(*u.Type)
			if name == "" {
				return ErrEmptyName
			}
			t, err := findTypeByName(ctx, tx, name)
			if err != nil {
				return err
			}
			var typeID *int64
			if t != nil {
				typeID = &t.ID
				name = t.Name
			}
			sets = append(sets, "type = ?", "interaction_type_id = ?")
			args = append(args, name, typeID)
		}
		if u.Notes != nil {
			sets = append(sets, "notes = NULLIF(?, '')")
			args = append(args, *u.Notes)
		}
		if len(sets) == 0 {
			return nil
		}
		args = append(args, id)
		if _, err := tx.ExecContext(ctx,
			"UPDATE interactions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("update interaction: %w", err)
		}

		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		_, err = db.rescore(ctx, tx, entityID, s)
		return err
	})
}

// DeleteInteraction removes a logged interaction and rescores its entity.
// Rows fanned out to group members are independent and stay.
func (db *DB) DeleteInteraction(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var entityID int64
		err := tx.QueryRowContext(ctx, "SELECT entity_id FROM interactions WHERE id = ?", id).Scan(&entityID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("interaction %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get interaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM interactions WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete interaction: %w", err)
		}
		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		_, err = db.rescore(ctx, tx, entityID, s)
		return err
	})
}
