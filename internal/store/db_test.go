package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNow is the fixed clock used by store tests.
var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	db, err := OpenMemory(opts...)
	require.NoError(t, err, "OpenMemory")
	t.Cleanup(func() { db.Close() })
	return db
}

// rawDB returns an unmigrated handle.
func rawDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB, ":memory:", WithClock(func() time.Time { return testNow }))
}

// applyThrough runs migration steps 1..version on a raw handle, leaving it
// at that version.
func applyThrough(t *testing.T, db *DB, version int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.setForeignKeys(ctx, false))
	require.NoError(t, db.ensureVersionTable(ctx))
	for _, m := range migrations {
		if m.Version > version {
			break
		}
		require.NoError(t, db.withTx(ctx, func(tx *sql.Tx) error {
			if err := m.Apply(ctx, tx); err != nil {
				return err
			}
			return recordVersion(ctx, tx, m)
		}), "step %d", m.Version)
	}
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, ":memory:", db.Path)
	assert.True(t, db.Ready())
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)
	assert.Equal(t, 13, LatestVersion)
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, table := range append([]string{"schema_versions"}, dataTables...) {
		ok, err := tableExists(ctx, db, table)
		require.NoError(t, err)
		assert.True(t, ok, "table %q", table)
	}
}

func TestFreshDatabaseSeedsDefaults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, name := range []string{"Family", "Friends", "Work"} {
		tag, err := db.GetTagByName(ctx, name)
		require.NoError(t, err)
		require.NotNil(t, tag, name)
		assert.True(t, tag.IsDefault, name)
	}

	general, err := db.GetInteractionTypeByName(ctx, "general contact")
	require.NoError(t, err)
	require.NotNil(t, general)
	assert.True(t, general.Global())

	s, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings, s)
}

func TestMigrateTwiceIsNoop(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	before, err := db.ListInteractionTypes(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	after, err := db.ListInteractionTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestStepsTwiceDoNotDuplicateSeeds(t *testing.T) {
	db := rawDB(t)
	ctx := context.Background()

	applyThrough(t, db, LatestVersion)
	require.NoError(t, db.runSteps(ctx, 0))

	var types, tags int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM interaction_types").Scan(&types))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tags").Scan(&tags))
	assert.Equal(t, len(defaultTypes), types)
	assert.Equal(t, len(defaultTags), tags)
}

func TestStepPathMatchesBulkSchema(t *testing.T) {
	ctx := context.Background()
	bulk := testDB(t)
	stepped := rawDB(t)
	applyThrough(t, stepped, LatestVersion)

	for _, table := range dataTables {
		want, err := tableColumns(ctx, bulk, table)
		require.NoError(t, err)
		got, err := tableColumns(ctx, stepped, table)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got, "columns of %s", table)
	}

	v, err := stepped.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)
}

func TestUpgradeFromVersion3(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)
	applyThrough(t, db, 3)

	_, err := db.Exec(`INSERT INTO entities (id, name, type, created_at, updated_at) VALUES (1, 'Rex', 'person', 1, 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO tags (id, name, count) VALUES (1, 'Pets', 7), (2, 'pets', 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO entity_tags (entity_id, tag_id) VALUES (1, 1), (1, 2)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO interactions (entity_id, timestamp, type) VALUES (1, 1, 'Walk')`)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx))
	require.True(t, db.Ready())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)

	tags, err := db.EntityTags(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Pets", tags[0].Name)
	assert.Equal(t, 1, tags[0].Count)

	e, err := db.GetEntity(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.Hidden)

	interactions, err := db.ListInteractions(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Empty(t, interactions[0].Notes)
}

func TestMigrateUnversionedDatabase(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)

	_, err := db.Exec(`
CREATE TABLE entities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    name              TEXT NOT NULL,
    type              TEXT NOT NULL,
    details           TEXT,
    image             TEXT,
    interaction_score REAL NOT NULL DEFAULT 0,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);
CREATE TABLE settings (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    decay_factor REAL NOT NULL DEFAULT 0
);
INSERT INTO settings (id, decay_factor) VALUES (1, 0.5);
INSERT INTO entities (id, name, type, details, created_at, updated_at) VALUES (1, 'Rex', 'person', 'dog walker', 1, 1);
`)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx))
	require.True(t, db.Ready())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)

	e, err := db.GetEntity(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "dog walker", e.Details)

	s, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.DecayFactor)

	types, err := db.ListInteractionTypes(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, types, "defaults seeded")

	_, err = db.RecordInteraction(ctx, 1, "Coffee", "")
	assert.NoError(t, err)
}

func TestAddColumnToleratesExistingColumn(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.withTx(ctx, func(tx *sql.Tx) error {
		return addColumn(ctx, tx, "entities", "birthday", "TEXT")
	}))
}

func TestRebuildTableRestoresOnFailure(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return rebuildTable(ctx, tx, "favorites", "CREATE TABLE %s (entity_id INTEGER PRIMARY KEY)",
			[]string{"entity_id", "no_such_column"})
	})
	require.Error(t, err)

	ok, err := tableExists(ctx, db, "favorites")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tableExists(ctx, db, "favorites_rebuild")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnreadyHandleReadsEmpty(t *testing.T) {
	db := rawDB(t)
	ctx := context.Background()

	assert.False(t, db.Ready())
	entities, err := db.ListEntities(ctx, EntityFilter{})
	require.NoError(t, err)
	assert.Nil(t, entities)
	tags, err := db.ListTags(ctx)
	require.NoError(t, err)
	assert.Nil(t, tags)
	s, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings, s)
}
