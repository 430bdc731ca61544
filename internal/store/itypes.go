package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// loadInteractionTypes returns every type with its tag set filled in.
func loadInteractionTypes(ctx context.Context, q querier) ([]InteractionType, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, icon, score, color, tag_id, entity_type FROM interaction_types ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list interaction types: %w", err)
	}
	var (
		types []InteractionType
		index = make(map[int64]int)
	)
	for rows.Next() {
		var (
			t          InteractionType
			icon       sql.NullString
			color      sql.NullString
			tagID      sql.NullInt64
			entityType sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &icon, &t.Score, &color, &tagID, &entityType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan interaction type: %w", err)
		}
		t.Icon = icon.String
		t.Color = color.String
		if tagID.Valid {
			id := tagID.Int64
			t.TagID = &id
		}
		t.Kinds = decodeKinds(entityType.String)
		index[t.ID] = len(types)
		types = append(types, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := q.QueryContext(ctx,
		"SELECT interaction_type_id, tag_id FROM interaction_type_tags ORDER BY interaction_type_id, tag_id")
	if err != nil {
		return nil, fmt.Errorf("list interaction type tags: %w", err)
	}
	defer links.Close()
	for links.Next() {
		var typeID, tagID int64
		if err := links.Scan(&typeID, &tagID); err != nil {
			return nil, fmt.Errorf("scan interaction type tag: %w", err)
		}
		if i, ok := index[typeID]; ok {
			types[i].TagIDs = append(types[i].TagIDs, tagID)
		}
	}
	return types, links.Err()
}

// ListInteractionTypes returns every interaction type with its tag set.
func (db *DB) ListInteractionTypes(ctx context.Context) ([]InteractionType, error) {
	if !db.Ready() {
		return nil, nil
	}
	return loadInteractionTypes(ctx, db)
}

// GetInteractionTypeByName looks a type up case-insensitively; the oldest
// match wins. Returns nil if absent.
func (db *DB) GetInteractionTypeByName(ctx context.Context, name string) (*InteractionType, error) {
	if !db.Ready() {
		return nil, nil
	}
	return findTypeByName(ctx, db, name)
}

func findTypeByName(ctx context.Context, q querier, name string) (*InteractionType, error) {
	var (
		t          InteractionType
		icon       sql.NullString
		color      sql.NullString
		tagID      sql.NullInt64
		entityType sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, icon, score, color, tag_id, entity_type FROM interaction_types
		WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1`, strings.TrimSpace(name),
	).Scan(&t.ID, &t.Name, &icon, &t.Score, &color, &tagID, &entityType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find interaction type: %w", err)
	}
	t.Icon = icon.String
	t.Color = color.String
	if tagID.Valid {
		id := tagID.Int64
		t.TagID = &id
	}
	t.Kinds = decodeKinds(entityType.String)
	return &t, nil
}

// insertInteractionType writes a type and its junction rows.
func insertInteractionType(ctx context.Context, q querier, t InteractionType) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, ErrEmptyName
	}
	color := t.Color
	if color == "" {
		color = fallbackTypeColor
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO interaction_types (name, icon, score, color, tag_id, entity_type)
		VALUES (?, ?, ?, ?, ?, ?)
	`, strings.TrimSpace(t.Name), t.Icon, t.Score, color, t.TagID, encodeKinds(t.Kinds))
	if err != nil {
		return 0, fmt.Errorf("insert interaction type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	tagIDs := t.TagIDs
	if t.TagID != nil {
		tagIDs = append(tagIDs, *t.TagID)
	}
	if err := linkTypeTags(ctx, q, id, tagIDs); err != nil {
		return 0, err
	}
	return id, nil
}

func linkTypeTags(ctx context.Context, q querier, typeID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO interaction_type_tags (interaction_type_id, tag_id) VALUES (?, ?)",
			typeID, tagID); err != nil {
			return fmt.Errorf("link type %d to tag %d: %w", typeID, tagID, err)
		}
	}
	return nil
}

// CreateInteractionType adds a type and returns its id.
func (db *DB) CreateInteractionType(ctx context.Context, t InteractionType) (int64, error) {
	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertInteractionType(ctx, tx, t)
		return err
	})
	return id, err
}

// UpdateInteractionType replaces a type's fields and tag set and rescores
// every entity. Interactions recorded under it keep their label.
func (db *DB) UpdateInteractionType(ctx context.Context, t InteractionType) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE interaction_types SET name = ?, icon = ?, score = ?, color = ?, tag_id = ?, entity_type = ?
			WHERE id = ?
		`, strings.TrimSpace(t.Name), t.Icon, t.Score, t.Color, t.TagID, encodeKinds(t.Kinds), t.ID)
		if err != nil {
			return fmt.Errorf("update interaction type: %w", err)
		}
		if err := requireAffected(res, "interaction type", t.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM interaction_type_tags WHERE interaction_type_id = ?", t.ID); err != nil {
			return fmt.Errorf("clear type tags: %w", err)
		}
		tagIDs := t.TagIDs
		if t.TagID != nil {
			tagIDs = append(tagIDs, *t.TagID)
		}
		if err := linkTypeTags(ctx, tx, t.ID, tagIDs); err != nil {
			return err
		}
		return db.rescoreStored(ctx, tx)
	})
}

// DeleteInteractionType removes a type. Past interactions keep their label
// and fall back to the default weight; scores are recomputed.
func (db *DB) DeleteInteractionType(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE interactions SET interaction_type_id = NULL WHERE interaction_type_id = ?", id); err != nil {
			return fmt.Errorf("detach interactions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM interaction_type_tags WHERE interaction_type_id = ?", id); err != nil {
			return fmt.Errorf("delete type tags: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM interaction_types WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete interaction type: %w", err)
		}
		if err := requireAffected(res, "interaction type", id); err != nil {
			return err
		}
		return db.rescoreStored(ctx, tx)
	})
}

// TypeSpec is one interaction type record from the defaults configuration.
// Nil Kinds or Tags mean no restriction.
type TypeSpec struct {
	Name  string
	Icon  string
	Kinds []Kind
	Tags  []string
	Score float64
	Color string
}

// TagSpec is one tag record from the defaults configuration.
type TagSpec struct {
	Name  string
	Icon  string
	Color string
}

// TypeConfig is the full defaults configuration applied by
// ApplyInteractionTypeConfig.
type TypeConfig struct {
	Types []TypeSpec
	Tags  []TagSpec
}

// ApplyInteractionTypeConfig atomically replaces every interaction type with
// the configured ones. Configured tags are created (or updated) as defaults;
// types naming an unknown tag create it. Existing interactions are relinked
// to the new types by label and every entity is rescored.
func (db *DB) ApplyInteractionTypeConfig(ctx context.Context, cfg TypeConfig) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		tagIDs := make(map[string]int64)
		for _, ts := range cfg.Tags {
			id, err := upsertDefaultTag(ctx, tx, ts)
			if err != nil {
				return err
			}
			tagIDs[strings.ToLower(strings.TrimSpace(ts.Name))] = id
		}

		resets := []string{
			"UPDATE interactions SET interaction_type_id = NULL",
			"DELETE FROM interaction_type_tags",
			"DELETE FROM interaction_types",
		}
		for _, s := range resets {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("clear interaction types: %w", err)
			}
		}

		for _, spec := range cfg.Types {
			t := InteractionType{
				Name:  spec.Name,
				Icon:  spec.Icon,
				Score: spec.Score,
				Color: spec.Color,
				Kinds: spec.Kinds,
			}
			for _, name := range spec.Tags {
				key := strings.ToLower(strings.TrimSpace(name))
				id, ok := tagIDs[key]
				if !ok {
					tag, _, err := lookupOrCreateTag(ctx, tx, strings.TrimSpace(name))
					if err != nil {
						return err
					}
					id = tag.ID
					tagIDs[key] = id
				}
				t.TagIDs = append(t.TagIDs, id)
			}
			if len(t.TagIDs) == 1 {
				legacy := t.TagIDs[0]
				t.TagID = &legacy
			}
			if _, err := insertInteractionType(ctx, tx, t); err != nil {
				return fmt.Errorf("apply type %q: %w", spec.Name, err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE interactions SET interaction_type_id = (
				SELECT t.id FROM interaction_types t WHERE t.name = interactions.type COLLATE NOCASE ORDER BY t.id LIMIT 1
			)`)
		if err != nil {
			return fmt.Errorf("relink interactions: %w", err)
		}
		return db.rescoreStored(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("apply interaction type config: %w", err)
	}
	db.log.Info("applied interaction type config",
		zap.Int("types", len(cfg.Types)), zap.Int("tags", len(cfg.Tags)))
	return nil
}

func upsertDefaultTag(ctx context.Context, q querier, ts TagSpec) (int64, error) {
	name := strings.TrimSpace(ts.Name)
	if name == "" {
		return 0, ErrEmptyName
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO tags (name, icon, color, is_default, count) VALUES (?, NULLIF(?, ''), NULLIF(?, ''), 1, 0)
		ON CONFLICT(name) DO UPDATE SET
			icon = COALESCE(NULLIF(excluded.icon, ''), tags.icon),
			color = COALESCE(NULLIF(excluded.color, ''), tags.color),
			is_default = 1
	`, name, ts.Icon, ts.Color); err != nil {
		return 0, fmt.Errorf("upsert tag %q: %w", name, err)
	}
	var id int64
	if err := q.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ? COLLATE NOCASE", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("tag id %q: %w", name, err)
	}
	return id, nil
}

func sortTypes(types []InteractionType) {
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
}
