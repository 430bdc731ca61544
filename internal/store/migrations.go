package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, tx *sql.Tx) error
}

// LatestVersion is the schema version produced by the last migration step.
var LatestVersion = migrations[len(migrations)-1].Version

// migrations are the one-way upgrade steps, in order. A database at version v
// receives steps v+1..LatestVersion. Each step must tolerate having partially
// run before (a crash between its statements and its commit is impossible,
// but an externally modified database is not).
var migrations = []migration{
	{1, "core tables: entities, interactions, settings, photos", migrateCoreTables},
	{2, "interaction_types and interactions.interaction_type_id", migrateInteractionTypes},
	{3, "tags, entity_tags and interaction_types.tag_id", migrateTags},
	{4, "interactions.notes", migrateInteractionNotes},
	{5, "group_members", migrateGroupMembers},
	{6, "settings.decay_type", migrateDecayType},
	{7, "interaction_types.color and entity_type", migrateTypeColorAndKind},
	{8, "entities.is_hidden and favorites", migrateHiddenAndFavorites},
	{9, "interaction_type_tags junction", migrateTypeTagJunction},
	{10, "entities.contact_data and birthday", migrateContactData},
	{11, "birthday_reminders", migrateBirthdayReminders},
	{12, "tags: case-insensitive names, icon, color, is_default", migrateTagRebuild},
	{13, "tag count repair and default seeding", migrateRepairAndSeed},
}

// Migrate brings the schema to LatestVersion and marks the handle ready.
// A fresh database takes the bulk path; an older one runs the remaining steps.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.setForeignKeys(ctx, false); err != nil {
		return err
	}

	if err := db.ensureVersionTable(ctx); err != nil {
		return err
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case current == 0:
		// Tables without a ledger come from an older or externally modified
		// file; replay every step so missing columns get added.
		existing, err := tableExists(ctx, db, "entities")
		if err != nil {
			return err
		}
		if existing {
			db.log.Warn("schema ledger missing on existing database, replaying migrations")
			if err := db.runSteps(ctx, 0); err != nil {
				return err
			}
		} else if err := db.bulkCreate(ctx); err != nil {
			return err
		}
	case current < LatestVersion:
		if err := db.runSteps(ctx, current); err != nil {
			return err
		}
	case current > LatestVersion:
		db.log.Warn("database schema is newer than this binary",
			zap.Int("version", current), zap.Int("latest", LatestVersion))
	}

	if err := db.setForeignKeys(ctx, true); err != nil {
		return err
	}
	db.ready.Store(true)
	return nil
}

func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}
	return nil
}

// SchemaVersion returns the current schema version, 0 when nothing was applied.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

// bulkCreate builds the final schema in one pass and records every version.
func (db *DB) bulkCreate(ctx context.Context) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, finalSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if err := seedDefaults(ctx, tx); err != nil {
			return fmt.Errorf("seed defaults: %w", err)
		}
		for _, m := range migrations {
			if err := recordVersion(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bulk create: %w", err)
	}
	db.log.Info("created schema", zap.Int("version", LatestVersion))
	return nil
}

// runSteps applies every step above from, each in its own transaction.
func (db *DB) runSteps(ctx context.Context, from int) error {
	for _, m := range migrations {
		if m.Version <= from {
			continue
		}

		err := db.withTx(ctx, func(tx *sql.Tx) error {
			if err := m.Apply(ctx, tx); err != nil {
				return err
			}
			return recordVersion(ctx, tx, m)
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		db.log.Info("applied migration",
			zap.Int("version", m.Version), zap.String("description", m.Description))
	}
	return nil
}

func recordVersion(ctx context.Context, tx *sql.Tx, m migration) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_versions (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return nil
}

// --- introspection helpers ---

func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

func tableColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	cols, err := tableColumns(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c, column) {
			return true, nil
		}
	}
	return false, nil
}

// addColumn adds a column unless it is already present. If the ALTER fails
// the table is inspected again; a column that now exists is treated as done.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, alterErr := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	if alterErr == nil {
		return nil
	}

	exists, err = columnExists(ctx, tx, table, column)
	if err != nil {
		return fmt.Errorf("add column %s.%s: %v; verify: %w", table, column, alterErr, err)
	}
	if exists {
		return nil
	}
	return fmt.Errorf("add column %s.%s: %w", table, column, alterErr)
}

// rebuildTable replaces table with a new shape. createSQL is a CREATE TABLE
// statement with a single %s for the table name; columns are copied by name.
// On failure the original table is left (or put back) under its own name.
func rebuildTable(ctx context.Context, tx *sql.Tx, table, createSQL string, columns []string) (err error) {
	tmp := table + "_rebuild"
	dropped := false

	defer func() {
		if err == nil {
			return
		}
		if dropped {
			if _, rerr := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, table)); rerr != nil {
				err = fmt.Errorf("%w (restore %s: %v)", err, table, rerr)
			}
			return
		}
		tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tmp))
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tmp)); err != nil {
		return fmt.Errorf("rebuild %s: drop stale temp: %w", table, err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(createSQL, tmp)); err != nil {
		return fmt.Errorf("rebuild %s: create: %w", table, err)
	}
	cols := strings.Join(columns, ", ")
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmp, cols, cols, table)); err != nil {
		return fmt.Errorf("rebuild %s: copy: %w", table, err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", table)); err != nil {
		return fmt.Errorf("rebuild %s: drop: %w", table, err)
	}
	dropped = true
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, table)); err != nil {
		return fmt.Errorf("rebuild %s: rename: %w", table, err)
	}
	return nil
}

// --- steps ---

func migrateCoreTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS entities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    name              TEXT NOT NULL,
    type              TEXT NOT NULL CHECK (type IN ('person', 'group', 'topic')),
    details           TEXT,
    image             TEXT,
    interaction_score REAL NOT NULL DEFAULT 0,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS interactions (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    timestamp INTEGER NOT NULL,
    type      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_entity ON interactions(entity_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS settings (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    decay_factor REAL NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO settings (id, decay_factor) VALUES (1, 0);

CREATE TABLE IF NOT EXISTS photos (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    uri       TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_photos_entity ON photos(entity_id);
`)
	return err
}

func migrateInteractionTypes(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS interaction_types (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    name  TEXT NOT NULL,
    icon  TEXT NOT NULL DEFAULT '',
    score REAL NOT NULL DEFAULT 1
)`); err != nil {
		return err
	}
	if err := addColumn(ctx, tx, "interactions", "interaction_type_id",
		"INTEGER REFERENCES interaction_types(id) ON DELETE SET NULL"); err != nil {
		return err
	}
	// Link existing rows by their denormalized label.
	_, err := tx.ExecContext(ctx, `
		UPDATE interactions SET interaction_type_id = (
			SELECT t.id FROM interaction_types t WHERE t.name = interactions.type COLLATE NOCASE ORDER BY t.id LIMIT 1
		) WHERE interaction_type_id IS NULL`)
	return err
}

func migrateTags(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tags (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    name  TEXT NOT NULL UNIQUE,
    count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entity_tags (
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    tag_id    INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (entity_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_entity_tags_tag ON entity_tags(tag_id);
`); err != nil {
		return err
	}
	return addColumn(ctx, tx, "interaction_types", "tag_id", "INTEGER REFERENCES tags(id) ON DELETE SET NULL")
}

func migrateInteractionNotes(ctx context.Context, tx *sql.Tx) error {
	return addColumn(ctx, tx, "interactions", "notes", "TEXT")
}

func migrateGroupMembers(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS group_members (
    group_id   INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    member_id  INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_member ON group_members(member_id);
`)
	return err
}

func migrateDecayType(ctx context.Context, tx *sql.Tx) error {
	return addColumn(ctx, tx, "settings", "decay_type", "TEXT NOT NULL DEFAULT 'linear'")
}

func migrateTypeColorAndKind(ctx context.Context, tx *sql.Tx) error {
	if err := addColumn(ctx, tx, "interaction_types", "color", "TEXT NOT NULL DEFAULT '#666666'"); err != nil {
		return err
	}
	return addColumn(ctx, tx, "interaction_types", "entity_type", "TEXT")
}

func migrateHiddenAndFavorites(ctx context.Context, tx *sql.Tx) error {
	if err := addColumn(ctx, tx, "entities", "is_hidden", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS favorites (
    entity_id  INTEGER PRIMARY KEY REFERENCES entities(id) ON DELETE CASCADE,
    created_at INTEGER NOT NULL
)`)
	return err
}

func migrateTypeTagJunction(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS interaction_type_tags (
    interaction_type_id INTEGER NOT NULL REFERENCES interaction_types(id) ON DELETE CASCADE,
    tag_id              INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (interaction_type_id, tag_id)
)`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO interaction_type_tags (interaction_type_id, tag_id)
		SELECT id, tag_id FROM interaction_types WHERE tag_id IS NOT NULL`)
	return err
}

func migrateContactData(ctx context.Context, tx *sql.Tx) error {
	if err := addColumn(ctx, tx, "entities", "contact_data", "TEXT"); err != nil {
		return err
	}
	return addColumn(ctx, tx, "entities", "birthday", "TEXT")
}

func migrateBirthdayReminders(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS birthday_reminders (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id       INTEGER NOT NULL UNIQUE REFERENCES entities(id) ON DELETE CASCADE,
    birthday        TEXT NOT NULL,
    reminder_time   TEXT NOT NULL DEFAULT '09:00',
    days_in_advance INTEGER NOT NULL DEFAULT 0,
    is_enabled      INTEGER NOT NULL DEFAULT 1,
    notification_id TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
)`)
	return err
}

const tagsTableV12 = `
CREATE TABLE %s (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL COLLATE NOCASE UNIQUE,
    icon       TEXT,
    color      TEXT,
    is_default INTEGER NOT NULL DEFAULT 0,
    count      INTEGER NOT NULL DEFAULT 0
)`

func migrateTagRebuild(ctx context.Context, tx *sql.Tx) error {
	hasDefault, err := columnExists(ctx, tx, "tags", "is_default")
	if err != nil {
		return err
	}
	if hasDefault {
		return nil
	}

	if err := mergeCaseDuplicateTags(ctx, tx); err != nil {
		return err
	}
	return rebuildTable(ctx, tx, "tags", tagsTableV12, []string{"id", "name", "count"})
}

// mergeCaseDuplicateTags folds tags whose names differ only in case onto the
// lowest id, moving entity and interaction type links with them.
func mergeCaseDuplicateTags(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT t.id, (SELECT MIN(k.id) FROM tags k WHERE lower(k.name) = lower(t.name))
		FROM tags t`)
	if err != nil {
		return fmt.Errorf("find duplicate tags: %w", err)
	}
	type dup struct{ id, keep int64 }
	var dups []dup
	for rows.Next() {
		var d dup
		if err := rows.Scan(&d.id, &d.keep); err != nil {
			rows.Close()
			return fmt.Errorf("scan duplicate tag: %w", err)
		}
		if d.id != d.keep {
			dups = append(dups, d)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range dups {
		stmts := []struct {
			sql  string
			args []any
		}{
			{"INSERT OR IGNORE INTO entity_tags (entity_id, tag_id) SELECT entity_id, ? FROM entity_tags WHERE tag_id = ?", []any{d.keep, d.id}},
			{"DELETE FROM entity_tags WHERE tag_id = ?", []any{d.id}},
			{"INSERT OR IGNORE INTO interaction_type_tags (interaction_type_id, tag_id) SELECT interaction_type_id, ? FROM interaction_type_tags WHERE tag_id = ?", []any{d.keep, d.id}},
			{"DELETE FROM interaction_type_tags WHERE tag_id = ?", []any{d.id}},
			{"UPDATE interaction_types SET tag_id = ? WHERE tag_id = ?", []any{d.keep, d.id}},
			{"DELETE FROM tags WHERE id = ?", []any{d.id}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.sql, s.args...); err != nil {
				return fmt.Errorf("merge tag %d into %d: %w", d.id, d.keep, err)
			}
		}
	}
	return nil
}

func migrateRepairAndSeed(ctx context.Context, tx *sql.Tx) error {
	if err := recalculateTagCounts(ctx, tx); err != nil {
		return err
	}
	return seedDefaults(ctx, tx)
}
