package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// EntityTag links an entity to a tag.
type EntityTag struct {
	EntityID int64
	TagID    int64
}

// TypeTag links an interaction type to a tag.
type TypeTag struct {
	InteractionTypeID int64
	TagID             int64
}

// Dataset is the complete user data held by the store. Ids are those of the
// database it was taken from.
type Dataset struct {
	Entities            []Entity
	Interactions        []Interaction
	Photos              []Photo
	Tags                []Tag
	EntityTags          []EntityTag
	InteractionTypes    []InteractionType
	InteractionTypeTags []TypeTag
	GroupMembers        []GroupMember
	Favorites           []Favorite
	BirthdayReminders   []BirthdayReminder
	Settings            *Settings
}

// RestoreStats counts what Restore wrote.
type RestoreStats struct {
	Entities     int
	Interactions int
	Photos       int
	Tags         int
	Skipped      int
}

// Snapshot reads every table into a Dataset inside one transaction.
func (db *DB) Snapshot(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if ds.Entities, err = db.queryEntities(ctx, tx, "SELECT "+entityColumns+" FROM entities ORDER BY id"); err != nil {
			return err
		}
		if ds.Interactions, err = queryInteractions(ctx, tx,
			"SELECT id, entity_id, timestamp, type, interaction_type_id, notes FROM interactions ORDER BY id"); err != nil {
			return err
		}
		if ds.Photos, err = queryPhotos(ctx, tx, "SELECT id, entity_id, uri, timestamp FROM photos ORDER BY id"); err != nil {
			return err
		}
		if ds.Tags, err = queryTags(ctx, tx, "SELECT "+tagColumns+" FROM tags ORDER BY id"); err != nil {
			return err
		}
		if ds.InteractionTypes, err = loadInteractionTypes(ctx, tx); err != nil {
			return err
		}
		for _, t := range ds.InteractionTypes {
			for _, tagID := range t.TagIDs {
				ds.InteractionTypeTags = append(ds.InteractionTypeTags, TypeTag{InteractionTypeID: t.ID, TagID: tagID})
			}
		}
		if ds.EntityTags, err = queryPairs(ctx, tx, "SELECT entity_id, tag_id FROM entity_tags ORDER BY entity_id, tag_id",
			func(a, b int64) EntityTag { return EntityTag{EntityID: a, TagID: b} }); err != nil {
			return err
		}
		if err := snapshotLinks(ctx, tx, ds); err != nil {
			return err
		}
		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		ds.Settings = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return ds, nil
}

func snapshotLinks(ctx context.Context, tx *sql.Tx, ds *Dataset) error {
	rows, err := tx.QueryContext(ctx, "SELECT group_id, member_id, created_at FROM group_members ORDER BY group_id, member_id")
	if err != nil {
		return fmt.Errorf("list group members: %w", err)
	}
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupID, &m.MemberID, &m.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan group member: %w", err)
		}
		ds.GroupMembers = append(ds.GroupMembers, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = tx.QueryContext(ctx, "SELECT entity_id, created_at FROM favorites ORDER BY entity_id")
	if err != nil {
		return fmt.Errorf("list favorites: %w", err)
	}
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.EntityID, &f.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan favorite: %w", err)
		}
		ds.Favorites = append(ds.Favorites, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = tx.QueryContext(ctx, "SELECT "+reminderColumns+" FROM birthday_reminders ORDER BY entity_id")
	if err != nil {
		return fmt.Errorf("list birthday reminders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			return fmt.Errorf("scan birthday reminder: %w", err)
		}
		ds.BirthdayReminders = append(ds.BirthdayReminders, r)
	}
	return rows.Err()
}

func queryPairs[T any](ctx context.Context, q querier, query string, mk func(a, b int64) T) ([]T, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, mk(a, b))
	}
	return out, rows.Err()
}

// Restore replaces all user data with ds in one transaction. Default tags
// survive the wipe and incoming tags with the same name are mapped onto
// them. Records are re-inserted under fresh ids; rows pointing at records
// absent from ds are skipped. Tag counts and scores are recomputed, and
// notification handles are cleared since they belong to the device that
// scheduled them.
//
// On any error the previous data is left untouched.
func (db *DB) Restore(ctx context.Context, ds *Dataset) (RestoreStats, error) {
	var stats RestoreStats
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := wipeUserData(ctx, tx); err != nil {
			return err
		}

		tagMap, err := restoreTags(ctx, tx, ds.Tags, &stats)
		if err != nil {
			return err
		}

		entityMap := make(map[int64]int64, len(ds.Entities))
		for _, e := range ds.Entities {
			kind, err := ParseKind(string(e.Kind))
			if err != nil {
				return fmt.Errorf("entity %d: %w", e.ID, err)
			}
			contact, err := encodeContactData(e.ContactData)
			if err != nil {
				return fmt.Errorf("encode contact data for %d: %w", e.ID, err)
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO entities (name, type, details, image, contact_data, interaction_score, is_hidden, birthday, created_at, updated_at)
				VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), ?, ?)
			`, e.Name, string(kind), e.Details, e.Image, contact, e.InteractionScore, boolInt(e.Hidden),
				e.Birthday, e.CreatedAt, e.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert entity %d: %w", e.ID, err)
			}
			if entityMap[e.ID], err = res.LastInsertId(); err != nil {
				return err
			}
			stats.Entities++
		}

		typeMap := make(map[int64]int64, len(ds.InteractionTypes))
		for _, t := range ds.InteractionTypes {
			var legacy *int64
			if t.TagID != nil {
				if id, ok := tagMap[*t.TagID]; ok {
					legacy = &id
				}
			}
			var tagIDs []int64
			for _, id := range t.TagIDs {
				if mapped, ok := tagMap[id]; ok {
					tagIDs = append(tagIDs, mapped)
				}
			}
			newID, err := insertInteractionType(ctx, tx, InteractionType{
				Name: t.Name, Icon: t.Icon, Score: t.Score, Color: t.Color,
				TagID: legacy, Kinds: t.Kinds, TagIDs: tagIDs,
			})
			if err != nil {
				return fmt.Errorf("insert interaction type %d: %w", t.ID, err)
			}
			typeMap[t.ID] = newID
		}
		for _, tt := range ds.InteractionTypeTags {
			typeID, ok1 := typeMap[tt.InteractionTypeID]
			tagID, ok2 := tagMap[tt.TagID]
			if !ok1 || !ok2 {
				stats.Skipped++
				continue
			}
			if err := linkTypeTags(ctx, tx, typeID, []int64{tagID}); err != nil {
				return err
			}
		}

		for _, i := range ds.Interactions {
			entityID, ok := entityMap[i.EntityID]
			if !ok {
				stats.Skipped++
				continue
			}
			var typeID *int64
			if i.InteractionTypeID != nil {
				if id, ok := typeMap[*i.InteractionTypeID]; ok {
					typeID = &id
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO interactions (entity_id, timestamp, type, interaction_type_id, notes)
				VALUES (?, ?, ?, ?, NULLIF(?, ''))
			`, entityID, i.Timestamp, i.Type, typeID, i.Notes); err != nil {
				return fmt.Errorf("insert interaction %d: %w", i.ID, err)
			}
			stats.Interactions++
		}

		for _, p := range ds.Photos {
			entityID, ok := entityMap[p.EntityID]
			if !ok || p.URI == "" {
				stats.Skipped++
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO photos (entity_id, uri, timestamp) VALUES (?, ?, ?)", entityID, p.URI, p.Timestamp,
			); err != nil {
				return fmt.Errorf("insert photo %d: %w", p.ID, err)
			}
			stats.Photos++
		}

		for _, et := range ds.EntityTags {
			entityID, ok1 := entityMap[et.EntityID]
			tagID, ok2 := tagMap[et.TagID]
			if !ok1 || !ok2 {
				stats.Skipped++
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO entity_tags (entity_id, tag_id) VALUES (?, ?)", entityID, tagID,
			); err != nil {
				return fmt.Errorf("insert entity tag: %w", err)
			}
		}

		for _, m := range ds.GroupMembers {
			groupID, ok1 := entityMap[m.GroupID]
			memberID, ok2 := entityMap[m.MemberID]
			if !ok1 || !ok2 || groupID == memberID {
				stats.Skipped++
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO group_members (group_id, member_id, created_at) VALUES (?, ?, ?)",
				groupID, memberID, m.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert group member: %w", err)
			}
		}

		for _, f := range ds.Favorites {
			entityID, ok := entityMap[f.EntityID]
			if !ok {
				stats.Skipped++
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO favorites (entity_id, created_at) VALUES (?, ?)", entityID, f.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert favorite: %w", err)
			}
		}

		for _, r := range ds.BirthdayReminders {
			entityID, ok := entityMap[r.EntityID]
			if !ok {
				stats.Skipped++
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO birthday_reminders
					(entity_id, birthday, reminder_time, days_in_advance, is_enabled, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, entityID, r.Birthday, r.ReminderTime, r.DaysInAdvance, boolInt(r.Enabled), r.CreatedAt, r.UpdatedAt); err != nil {
				return fmt.Errorf("insert birthday reminder: %w", err)
			}
		}

		if ds.Settings != nil {
			if err := ds.Settings.validate(); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO settings (id, decay_factor, decay_type) VALUES (1, ?, ?)",
				ds.Settings.DecayFactor, string(ds.Settings.DecayModel),
			); err != nil {
				return fmt.Errorf("restore settings: %w", err)
			}
		}

		if err := recalculateTagCounts(ctx, tx); err != nil {
			return err
		}
		s, err := getSettings(ctx, tx)
		if err != nil {
			return err
		}
		_, err = db.rescoreAll(ctx, tx, s)
		return err
	})
	if err != nil {
		return RestoreStats{}, fmt.Errorf("restore: %w", err)
	}
	db.log.Info("restored dataset",
		zap.Int("entities", stats.Entities),
		zap.Int("interactions", stats.Interactions),
		zap.Int("photos", stats.Photos),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// wipeUserData clears every data table except default tags and settings.
func wipeUserData(ctx context.Context, tx *sql.Tx) error {
	for _, table := range dataTables {
		var stmt string
		switch table {
		case "settings":
			continue
		case "tags":
			stmt = "DELETE FROM tags WHERE is_default = 0"
		default:
			stmt = "DELETE FROM " + table
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("wipe %s: %w", table, err)
		}
	}
	return nil
}

// restoreTags maps incoming tag ids to rows in the wiped database, reusing a
// surviving tag when the name matches ignoring case.
func restoreTags(ctx context.Context, tx *sql.Tx, tags []Tag, stats *RestoreStats) (map[int64]int64, error) {
	byName := make(map[string]int64)
	existing, err := queryTags(ctx, tx, "SELECT "+tagColumns+" FROM tags")
	if err != nil {
		return nil, err
	}
	for _, t := range existing {
		byName[strings.ToLower(t.Name)] = t.ID
	}

	out := make(map[int64]int64, len(tags))
	for _, t := range tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			stats.Skipped++
			continue
		}
		key := strings.ToLower(name)
		if id, ok := byName[key]; ok {
			out[t.ID] = id
			continue
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO tags (name, icon, color, is_default, count) VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, 0)",
			name, t.Icon, t.Color, boolInt(t.IsDefault))
		if err != nil {
			return nil, fmt.Errorf("insert tag %q: %w", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		byName[key] = id
		out[t.ID] = id
		stats.Tags++
	}
	return out, nil
}
