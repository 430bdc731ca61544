package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddGroupMember puts memberID into groupID. The group must be a group
// entity and cannot contain itself. Adding an existing member is a no-op.
func (db *DB) AddGroupMember(ctx context.Context, groupID, memberID int64) error {
	if groupID == memberID {
		return ErrSelfReference
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var kind string
		err := tx.QueryRowContext(ctx, "SELECT type FROM entities WHERE id = ?", groupID).Scan(&kind)
		if err == sql.ErrNoRows {
			return fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if Kind(kind) != KindGroup {
			return fmt.Errorf("entity %d: %w", groupID, ErrNotGroup)
		}

		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", memberID).Scan(&exists); err != nil {
			return fmt.Errorf("check member: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("member %d: %w", memberID, ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO group_members (group_id, member_id, created_at) VALUES (?, ?, ?)",
			groupID, memberID, db.nowMillis(),
		); err != nil {
			return fmt.Errorf("add group member: %w", err)
		}
		return nil
	})
}

// RemoveGroupMember takes memberID out of groupID. Removing a non-member is
// a no-op.
func (db *DB) RemoveGroupMember(ctx context.Context, groupID, memberID int64) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND member_id = ?", groupID, memberID,
	); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

// GroupMembers returns the members of a group ordered by name.
func (db *DB) GroupMembers(ctx context.Context, groupID int64) ([]Entity, error) {
	if !db.Ready() {
		return nil, nil
	}
	return db.queryEntities(ctx, db, `
		SELECT e.id, e.name, e.type, e.details, e.image, e.contact_data, e.interaction_score,
			e.is_hidden, e.birthday, e.created_at, e.updated_at
		FROM group_members gm JOIN entities e ON e.id = gm.member_id
		WHERE gm.group_id = ?
		ORDER BY e.name COLLATE NOCASE, e.id`, groupID)
}

// GroupsOf returns the groups an entity belongs to ordered by name.
func (db *DB) GroupsOf(ctx context.Context, memberID int64) ([]Entity, error) {
	if !db.Ready() {
		return nil, nil
	}
	return db.queryEntities(ctx, db, `
		SELECT e.id, e.name, e.type, e.details, e.image, e.contact_data, e.interaction_score,
			e.is_hidden, e.birthday, e.created_at, e.updated_at
		FROM group_members gm JOIN entities e ON e.id = gm.group_id
		WHERE gm.member_id = ?
		ORDER BY e.name COLLATE NOCASE, e.id`, memberID)
}
