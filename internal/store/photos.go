package store

import (
	"context"
	"fmt"
	"strings"
)

// AddPhoto attaches a stored image file to an entity.
func (db *DB) AddPhoto(ctx context.Context, entityID int64, uri string) (int64, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return 0, fmt.Errorf("add photo: empty uri")
	}
	var exists int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", entityID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check entity: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("entity %d: %w", entityID, ErrNotFound)
	}

	res, err := db.ExecContext(ctx,
		"INSERT INTO photos (entity_id, uri, timestamp) VALUES (?, ?, ?)", entityID, uri, db.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("add photo: %w", err)
	}
	return res.LastInsertId()
}

// ListPhotos returns an entity's photos, newest first.
func (db *DB) ListPhotos(ctx context.Context, entityID int64) ([]Photo, error) {
	if !db.Ready() {
		return nil, nil
	}
	return queryPhotos(ctx, db,
		"SELECT id, entity_id, uri, timestamp FROM photos WHERE entity_id = ? ORDER BY timestamp DESC, id DESC", entityID)
}

func queryPhotos(ctx context.Context, q querier, query string, args ...any) ([]Photo, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var out []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.EntityID, &p.URI, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePhoto removes a photo record. The file on disk is the caller's
// concern.
func (db *DB) DeletePhoto(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return requireAffected(res, "photo", id)
}
