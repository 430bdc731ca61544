package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewEntity is the input to CreateEntity.
type NewEntity struct {
	Name        string
	Kind        Kind
	Details     string
	Image       string
	ContactData ContactData
	Birthday    string
}

// EntityUpdate carries the mutable fields of an entity. Nil fields are left
// unchanged. Kind is deliberately absent.
type EntityUpdate struct {
	Name        *string
	Details     *string
	Image       *string
	ContactData *ContactData
	Birthday    *string
}

// EntityFilter narrows ListEntities.
type EntityFilter struct {
	Kind          Kind
	IncludeHidden bool
	// NameLike matches names case-insensitively by substring.
	NameLike string
}

const entityColumns = `id, name, type, details, image, contact_data, interaction_score, is_hidden, birthday, created_at, updated_at`

// entityRow holds a scanned entity before its payload is parsed.
type entityRow struct {
	Entity
	rawContact string
}

func scanEntityRow(scan func(dest ...any) error) (entityRow, error) {
	var (
		r                                 entityRow
		kind                              string
		details, image, contact, birthday sql.NullString
		hidden                            int
	)
	err := scan(&r.ID, &r.Name, &kind, &details, &image, &contact,
		&r.InteractionScore, &hidden, &birthday, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Kind = Kind(kind)
	r.Details = details.String
	r.Image = image.String
	r.Birthday = birthday.String
	r.Hidden = hidden != 0
	r.rawContact = contact.String
	return r, nil
}

func (db *DB) hydrate(ctx context.Context, q querier, rows []entityRow) []Entity {
	out := make([]Entity, len(rows))
	for i, r := range rows {
		r.ContactData = db.loadContactData(ctx, q, r.ID, r.rawContact)
		out[i] = r.Entity
	}
	return out
}

func (db *DB) getEntity(ctx context.Context, q querier, id int64) (*Entity, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ?", id)
	r, err := scanEntityRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	e := db.hydrate(ctx, q, []entityRow{r})[0]
	return &e, nil
}

// GetEntity returns an entity by id, or nil if not found.
func (db *DB) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	if !db.Ready() {
		return nil, nil
	}
	return db.getEntity(ctx, db, id)
}

// ListEntities returns entities ordered by score (highest first), then name.
func (db *DB) ListEntities(ctx context.Context, f EntityFilter) ([]Entity, error) {
	if !db.Ready() {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Kind))
	}
	if !f.IncludeHidden {
		where = append(where, "is_hidden = 0")
	}
	if f.NameLike != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.NameLike+"%")
	}
	query := "SELECT " + entityColumns + " FROM entities"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY interaction_score DESC, name COLLATE NOCASE"

	return db.queryEntities(ctx, db, query, args...)
}

func (db *DB) queryEntities(ctx context.Context, q querier, query string, args ...any) ([]Entity, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	var scanned []entityRow
	for rows.Next() {
		r, err := scanEntityRow(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		scanned = append(scanned, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows are closed before repairs run: the connection is shared.
	return db.hydrate(ctx, q, scanned), nil
}

// CreateEntity inserts a new entity unless a duplicate already exists, in
// which case the existing id is returned with created=false.
//
// A duplicate is an existing entity with the same name and kind whose details
// are identical, or whose duplicate keys (see DuplicateMatcher) overlap the
// new record's.
func (db *DB) CreateEntity(ctx context.Context, e NewEntity) (id int64, created bool, err error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return 0, false, ErrEmptyName
	}
	kind, err := ParseKind(string(e.Kind))
	if err != nil {
		return 0, false, err
	}
	e.Kind = kind
	if e.Birthday != "" {
		if _, err := ParseBirthday(e.Birthday); err != nil {
			return 0, false, err
		}
	}
	contact, err := encodeContactData(e.ContactData)
	if err != nil {
		return 0, false, fmt.Errorf("encode contact data: %w", err)
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := db.findDuplicate(ctx, tx, e)
		if err != nil {
			return err
		}
		if existing != 0 {
			id = existing
			return nil
		}

		now := db.nowMillis()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO entities (name, type, details, image, contact_data, birthday, created_at, updated_at)
			VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?)
		`, e.Name, string(e.Kind), e.Details, e.Image, contact, e.Birthday, now, now)
		if err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("entity id: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("create entity: %w", err)
	}
	if !created {
		db.log.Debug("duplicate entity suppressed", zap.String("name", e.Name), zap.Int64("existing_id", id))
	}
	return id, created, nil
}

func (db *DB) findDuplicate(ctx context.Context, q querier, e NewEntity) (int64, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, details, contact_data FROM entities WHERE name = ? AND type = ? ORDER BY id",
		e.Name, string(e.Kind))
	if err != nil {
		return 0, fmt.Errorf("find duplicates: %w", err)
	}
	defer rows.Close()

	newKeys := db.matcher.DuplicateKeys(e)
	for rows.Next() {
		var (
			id               int64
			details, contact sql.NullString
		)
		if err := rows.Scan(&id, &details, &contact); err != nil {
			return 0, fmt.Errorf("scan duplicate candidate: %w", err)
		}
		if sameDetails(details.String, e.Details) {
			return id, nil
		}
		if len(newKeys) == 0 {
			continue
		}
		cd, _ := parseContactData(contact.String)
		candidate := NewEntity{Name: e.Name, Kind: e.Kind, Details: details.String, ContactData: cd}
		if keysIntersect(newKeys, db.matcher.DuplicateKeys(candidate)) {
			return id, nil
		}
	}
	return 0, rows.Err()
}

// UpdateEntity applies the non-nil fields of u.
func (db *DB) UpdateEntity(ctx context.Context, id int64, u EntityUpdate) error {
	var (
		sets []string
		args []any
	)
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return ErrEmptyName
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if u.Details != nil {
		sets = append(sets, "details = NULLIF(?, '')")
		args = append(args, *u.Details)
	}
	if u.Image != nil {
		sets = append(sets, "image = NULLIF(?, '')")
		args = append(args, *u.Image)
	}
	if u.ContactData != nil {
		v, err := encodeContactData(*u.ContactData)
		if err != nil {
			return fmt.Errorf("encode contact data: %w", err)
		}
		sets = append(sets, "contact_data = ?")
		args = append(args, v)
	}
	if u.Birthday != nil {
		if *u.Birthday != "" {
			if _, err := ParseBirthday(*u.Birthday); err != nil {
				return err
			}
		}
		sets = append(sets, "birthday = NULLIF(?, '')")
		args = append(args, *u.Birthday)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, db.nowMillis(), id)

	res, err := db.ExecContext(ctx, "UPDATE entities SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	return requireAffected(res, "entity", id)
}

// DeleteEntity removes an entity and everything that depends on it.
func (db *DB) DeleteEntity(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return deleteEntityTx(ctx, tx, id)
	})
}

func deleteEntityTx(ctx context.Context, tx *sql.Tx, id int64) error {
	tagIDs, err := queryIDs(ctx, tx, "SELECT tag_id FROM entity_tags WHERE entity_id = ?", id)
	if err != nil {
		return fmt.Errorf("list entity tags: %w", err)
	}

	// Foreign keys cascade on a fresh schema; upgraded databases may carry
	// tables created without them, so dependents are removed explicitly.
	deps := []string{
		"DELETE FROM interactions WHERE entity_id = ?",
		"DELETE FROM photos WHERE entity_id = ?",
		"DELETE FROM entity_tags WHERE entity_id = ?",
		"DELETE FROM group_members WHERE group_id = ?1 OR member_id = ?1",
		"DELETE FROM favorites WHERE entity_id = ?",
		"DELETE FROM birthday_reminders WHERE entity_id = ?",
	}
	for _, stmt := range deps {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete dependents of %d: %w", id, err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if err := requireAffected(res, "entity", id); err != nil {
		return err
	}
	return recountTags(ctx, tx, tagIDs)
}

// SetHidden hides or unhides an entity.
func (db *DB) SetHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := db.ExecContext(ctx,
		"UPDATE entities SET is_hidden = ?, updated_at = ? WHERE id = ?",
		boolInt(hidden), db.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("set hidden: %w", err)
	}
	return requireAffected(res, "entity", id)
}

// SetFavorite adds or removes an entity from favorites. Repeating either is
// a no-op.
func (db *DB) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	if !favorite {
		if _, err := db.ExecContext(ctx, "DELETE FROM favorites WHERE entity_id = ?", id); err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("check entity: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO favorites (entity_id, created_at) VALUES (?, ?)", id, db.nowMillis(),
	); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// ListFavorites returns favorited entities, most recently added first.
func (db *DB) ListFavorites(ctx context.Context) ([]Entity, error) {
	if !db.Ready() {
		return nil, nil
	}
	return db.queryEntities(ctx, db, `
		SELECT e.id, e.name, e.type, e.details, e.image, e.contact_data, e.interaction_score,
			e.is_hidden, e.birthday, e.created_at, e.updated_at
		FROM favorites f JOIN entities e ON e.id = f.entity_id
		ORDER BY f.created_at DESC, e.id`)
}

// MergeEntities folds source into target and deletes source. Both must have
// the same kind. Interactions, photos, tags, group links, favorites and the
// birthday reminder move to target; contact data is merged without
// duplicates. Everything happens in one transaction.
func (db *DB) MergeEntities(ctx context.Context, sourceID, targetID int64) error {
	if sourceID == targetID {
		return ErrSelfReference
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		src, err := db.getEntity(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		dst, err := db.getEntity(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
		}
		if dst == nil {
			return fmt.Errorf("target %d: %w", targetID, ErrNotFound)
		}
		if src.Kind != dst.Kind {
			return fmt.Errorf("%w: %s vs %s", ErrKindMismatch, src.Kind, dst.Kind)
		}

		tagIDs, err := queryIDs(ctx, tx, "SELECT tag_id FROM entity_tags WHERE entity_id = ?", sourceID)
		if err != nil {
			return fmt.Errorf("list source tags: %w", err)
		}

		moves := []struct {
			sql  string
			args []any
		}{
			{"UPDATE interactions SET entity_id = ? WHERE entity_id = ?", []any{targetID, sourceID}},
			{"UPDATE photos SET entity_id = ? WHERE entity_id = ?", []any{targetID, sourceID}},
			{"INSERT OR IGNORE INTO entity_tags (entity_id, tag_id) SELECT ?, tag_id FROM entity_tags WHERE entity_id = ?", []any{targetID, sourceID}},
			{"DELETE FROM entity_tags WHERE entity_id = ?", []any{sourceID}},
			{`INSERT OR IGNORE INTO group_members (group_id, member_id, created_at)
				SELECT group_id, ?, created_at FROM group_members WHERE member_id = ? AND group_id != ?`, []any{targetID, sourceID, targetID}},
			{`INSERT OR IGNORE INTO group_members (group_id, member_id, created_at)
				SELECT ?, member_id, created_at FROM group_members WHERE group_id = ? AND member_id != ?`, []any{targetID, sourceID, targetID}},
			{"DELETE FROM group_members WHERE group_id = ?1 OR member_id = ?1", []any{sourceID}},
			{"INSERT OR IGNORE INTO favorites (entity_id, created_at) SELECT ?, created_at FROM favorites WHERE entity_id = ?", []any{targetID, sourceID}},
			{`UPDATE birthday_reminders SET entity_id = ?
				WHERE entity_id = ? AND NOT EXISTS (SELECT 1 FROM birthday_reminders WHERE entity_id = ?)`, []any{targetID, sourceID, targetID}},
		}
		for _, m := range moves {
			if _, err := tx.ExecContext(ctx, m.sql, m.args...); err != nil {
				return fmt.Errorf("move %d into %d: %w", sourceID, targetID, err)
			}
		}

		merged := MergeContactData(dst.ContactData, src.ContactData)
		contact, err := encodeContactData(merged)
		if err != nil {
			return fmt.Errorf("encode merged contact data: %w", err)
		}
		details := dst.Details
		if src.Details != "" && !sameDetails(src.Details, dst.Details) {
			if details == "" {
				details = src.Details
			} else {
				details = details + "\n" + src.Details
			}
		}
		image := dst.Image
		if image == "" {
			image = src.Image
		}
		birthday := dst.Birthday
		if birthday == "" {
			birthday = src.Birthday
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE entities SET details = NULLIF(?, ''), image = NULLIF(?, ''), contact_data = ?,
				birthday = NULLIF(?, ''), updated_at = ?
			WHERE id = ?
		`, details, image, contact, birthday, db.nowMillis(), targetID); err != nil {
			return fmt.Errorf("update merge target: %w", err)
		}

		if err := deleteEntityTx(ctx, tx, sourceID); err != nil {
			return err
		}
		if err := recountTags(ctx, tx, tagIDs); err != nil {
			return err
		}

		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		_, err = db.rescore(ctx, tx, targetID, s)
		return err
	})
	if err != nil {
		return fmt.Errorf("merge entities: %w", err)
	}
	db.log.Info("merged entities", zap.Int64("source", sourceID), zap.Int64("target", targetID))
	return nil
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
