package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const tagColumns = `id, name, icon, color, is_default, count`

func scanTag(scan func(dest ...any) error) (Tag, error) {
	var (
		t           Tag
		icon, color sql.NullString
		isDefault   int
	)
	if err := scan(&t.ID, &t.Name, &icon, &color, &isDefault, &t.Count); err != nil {
		return t, err
	}
	t.Icon = icon.String
	t.Color = color.String
	t.IsDefault = isDefault != 0
	return t, nil
}

func queryTags(ctx context.Context, q querier, query string, args ...any) ([]Tag, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		t, err := scanTag(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListTags returns every tag ordered by name.
func (db *DB) ListTags(ctx context.Context) ([]Tag, error) {
	if !db.Ready() {
		return nil, nil
	}
	return queryTags(ctx, db, "SELECT "+tagColumns+" FROM tags ORDER BY name COLLATE NOCASE")
}

// GetTagByName looks a tag up case-insensitively. Returns nil if absent.
func (db *DB) GetTagByName(ctx context.Context, name string) (*Tag, error) {
	if !db.Ready() {
		return nil, nil
	}
	return getTagByName(ctx, db, name)
}

func getTagByName(ctx context.Context, q querier, name string) (*Tag, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+tagColumns+" FROM tags WHERE name = ? COLLATE NOCASE", strings.TrimSpace(name))
	t, err := scanTag(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

// EntityTags returns the tags directly attached to an entity.
func (db *DB) EntityTags(ctx context.Context, entityID int64) ([]Tag, error) {
	if !db.Ready() {
		return nil, nil
	}
	return queryTags(ctx, db, `
		SELECT t.id, t.name, t.icon, t.color, t.is_default, t.count
		FROM tags t JOIN entity_tags et ON et.tag_id = t.id
		WHERE et.entity_id = ?
		ORDER BY t.name COLLATE NOCASE`, entityID)
}

// AddTagToEntity attaches a tag (created on first use) to an entity and
// returns it. A newly created tag seeds tag-themed interaction types.
// Attaching a tag the entity already has is a no-op.
func (db *DB) AddTagToEntity(ctx context.Context, entityID int64, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	var (
		tag     *Tag
		created bool
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", entityID).Scan(&exists); err != nil {
			return fmt.Errorf("check entity: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("entity %d: %w", entityID, ErrNotFound)
		}

		var err error
		tag, created, err = lookupOrCreateTag(ctx, tx, name)
		if err != nil {
			return err
		}
		if created {
			if err := seedTagTypes(ctx, tx, tag); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entity_tags (entity_id, tag_id) VALUES (?, ?)", entityID, tag.ID)
		if err != nil {
			return fmt.Errorf("link tag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "UPDATE tags SET count = count + 1 WHERE id = ?", tag.ID); err != nil {
			return fmt.Errorf("increment tag count: %w", err)
		}
		tag.Count++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add tag %q: %w", name, err)
	}
	if created {
		db.log.Info("created tag", zap.String("tag", tag.Name), zap.Int64("tag_id", tag.ID))
	}
	return tag, nil
}

func lookupOrCreateTag(ctx context.Context, tx *sql.Tx, name string) (*Tag, bool, error) {
	existing, err := getTagByName(ctx, tx, name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO tags (name, count) VALUES (?, 0)", name)
	if err != nil {
		return nil, false, fmt.Errorf("create tag: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("tag id: %w", err)
	}
	return &Tag{ID: id, Name: name}, true, nil
}

// seedTagTypes creates the rule-table interaction types for a new tag and
// links them to it. A type of the same name already linked to the tag is
// not created twice.
func seedTagTypes(ctx context.Context, tx *sql.Tx, tag *Tag) error {
	for _, seed := range seedsForTag(tag.Name) {
		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM interaction_types it
			JOIN interaction_type_tags itt ON itt.interaction_type_id = it.id
			WHERE itt.tag_id = ? AND it.name = ? COLLATE NOCASE`, tag.ID, seed.Name).Scan(&n)
		if err != nil {
			return fmt.Errorf("check seeded type: %w", err)
		}
		if n > 0 {
			continue
		}
		if _, err := insertInteractionType(ctx, tx, InteractionType{
			Name:   seed.Name,
			Icon:   seed.Icon,
			Score:  seed.Score,
			Color:  seed.Color,
			TagID:  &tag.ID,
			TagIDs: []int64{tag.ID},
		}); err != nil {
			return fmt.Errorf("seed type %q for tag %q: %w", seed.Name, tag.Name, err)
		}
	}
	return nil
}

// RemoveTagFromEntity detaches a tag. The tag itself is kept for reuse even
// when no entity carries it any more.
func (db *DB) RemoveTagFromEntity(ctx context.Context, entityID, tagID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM entity_tags WHERE entity_id = ? AND tag_id = ?", entityID, tagID)
		if err != nil {
			return fmt.Errorf("unlink tag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tags SET count = MAX(count - 1, 0) WHERE id = ?", tagID); err != nil {
			return fmt.Errorf("decrement tag count: %w", err)
		}
		return nil
	})
}

// RenameTag changes a tag's display name. Names stay unique ignoring case.
func (db *DB) RenameTag(ctx context.Context, tagID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	res, err := db.ExecContext(ctx, "UPDATE tags SET name = ? WHERE id = ?", name, tagID)
	if err != nil {
		return fmt.Errorf("rename tag: %w", err)
	}
	return requireAffected(res, "tag", tagID)
}

// DeleteTag removes a tag, its entity links and its interaction type links.
// Interaction types that pointed at it through the legacy field lose the
// reference.
func (db *DB) DeleteTag(ctx context.Context, tagID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			"DELETE FROM entity_tags WHERE tag_id = ?",
			"DELETE FROM interaction_type_tags WHERE tag_id = ?",
			"UPDATE interaction_types SET tag_id = NULL WHERE tag_id = ?",
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s, tagID); err != nil {
				return fmt.Errorf("delete tag %d: %w", tagID, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", tagID)
		if err != nil {
			return fmt.Errorf("delete tag %d: %w", tagID, err)
		}
		return requireAffected(res, "tag", tagID)
	})
}

// RecalculateTagCounts resets every tag's count from entity_tags. Run after
// migrations, imports, or whenever drift is suspected.
func (db *DB) RecalculateTagCounts(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return recalculateTagCounts(ctx, tx)
	})
}

func recalculateTagCounts(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx,
		"UPDATE tags SET count = (SELECT COUNT(*) FROM entity_tags WHERE entity_tags.tag_id = tags.id)")
	if err != nil {
		return fmt.Errorf("recalculate tag counts: %w", err)
	}
	return nil
}

// recountTags recomputes the count of specific tags.
func recountTags(ctx context.Context, q querier, tagIDs []int64) error {
	for _, id := range tagIDs {
		if _, err := q.ExecContext(ctx,
			"UPDATE tags SET count = (SELECT COUNT(*) FROM entity_tags WHERE tag_id = ?1) WHERE id = ?1", id,
		); err != nil {
			return fmt.Errorf("recount tag %d: %w", id, err)
		}
	}
	return nil
}
