package store

// finalSchema creates every table at its current shape. Used by the bulk
// path on a fresh database; the numbered steps in migrations.go must arrive
// at the same set of columns.
const finalSchema = `
CREATE TABLE IF NOT EXISTS entities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    name              TEXT NOT NULL,
    type              TEXT NOT NULL CHECK (type IN ('person', 'group', 'topic')),
    details           TEXT,
    image             TEXT,
    interaction_score REAL NOT NULL DEFAULT 0,
    is_hidden         INTEGER NOT NULL DEFAULT 0,
    contact_data      TEXT,
    birthday          TEXT,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS interaction_types (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    icon        TEXT NOT NULL DEFAULT '',
    score       REAL NOT NULL DEFAULT 1,
    tag_id      INTEGER REFERENCES tags(id) ON DELETE SET NULL,
    color       TEXT NOT NULL DEFAULT '#666666',
    entity_type TEXT
);

CREATE TABLE IF NOT EXISTS interactions (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id           INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    timestamp           INTEGER NOT NULL,
    type                TEXT NOT NULL,
    interaction_type_id INTEGER REFERENCES interaction_types(id) ON DELETE SET NULL,
    notes               TEXT
);

CREATE INDEX IF NOT EXISTS idx_interactions_entity ON interactions(entity_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS settings (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    decay_factor REAL NOT NULL DEFAULT 0,
    decay_type   TEXT NOT NULL DEFAULT 'linear'
);

CREATE TABLE IF NOT EXISTS photos (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    uri       TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_photos_entity ON photos(entity_id);

CREATE TABLE IF NOT EXISTS tags (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL COLLATE NOCASE UNIQUE,
    icon       TEXT,
    color      TEXT,
    is_default INTEGER NOT NULL DEFAULT 0,
    count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entity_tags (
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    tag_id    INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (entity_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_entity_tags_tag ON entity_tags(tag_id);

CREATE TABLE IF NOT EXISTS interaction_type_tags (
    interaction_type_id INTEGER NOT NULL REFERENCES interaction_types(id) ON DELETE CASCADE,
    tag_id              INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (interaction_type_id, tag_id)
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id   INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    member_id  INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_member ON group_members(member_id);

CREATE TABLE IF NOT EXISTS favorites (
    entity_id  INTEGER PRIMARY KEY REFERENCES entities(id) ON DELETE CASCADE,
    created_at INTEGER NOT NULL
);

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
);
`

// dataTables lists every table holding user data, children before parents.
// Used by the import wipe and by schema comparison in tests.
var dataTables = []string{
	"birthday_reminders",
	"favorites",
	"group_members",
	"photos",
	"interactions",
	"interaction_type_tags",
	"interaction_types",
	"entity_tags",
	"entities",
	"tags",
	"settings",
}
