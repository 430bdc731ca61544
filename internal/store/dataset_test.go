package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/garden/internal/scoring"
)

// populate builds a small but complete dataset.
func populate(t *testing.T, db *DB) (person, group int64) {
	t.Helper()
	ctx := context.Background()

	person = mustCreate(t, db, NewEntity{
		Name: "Iris", Kind: KindPerson, Birthday: "1991-05-05",
		ContactData: ContactData{Emails: []Email{{Email: "iris@example.com"}}},
	})
	group = mustCreate(t, db, NewEntity{Name: "Run Club", Kind: KindGroup})
	require.NoError(t, db.AddGroupMember(ctx, group, person))
	_, err := db.AddTagToEntity(ctx, person, "Family")
	require.NoError(t, err)
	_, err = db.AddTagToEntity(ctx, group, "Running")
	require.NoError(t, err)
	_, err = db.RecordInteraction(ctx, group, "Group Hangout", "5k")
	require.NoError(t, err)
	_, err = db.AddPhoto(ctx, person, "/photos/iris.jpg")
	require.NoError(t, err)
	require.NoError(t, db.SetFavorite(ctx, person, true))
	_, err = db.UpsertBirthdayReminder(ctx, BirthdayReminder{EntityID: person, Birthday: "1991-05-05", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, db.SetReminderNotification(ctx, person, "device-handle"))
	require.NoError(t, db.UpdateSettings(ctx, Settings{DecayFactor: 0.05, DecayModel: scoring.Logarithmic}))
	return person, group
}

func TestSnapshot(t *testing.T) {
	db := testDB(t)
	populate(t, db)

	ds, err := db.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Entities, 2)
	assert.Len(t, ds.Interactions, 2)
	assert.Len(t, ds.Photos, 1)
	assert.Len(t, ds.EntityTags, 2)
	assert.Len(t, ds.GroupMembers, 1)
	assert.Len(t, ds.Favorites, 1)
	assert.Len(t, ds.BirthdayReminders, 1)
	assert.NotEmpty(t, ds.InteractionTypeTags)
	require.NotNil(t, ds.Settings)
	assert.Equal(t, scoring.Logarithmic, ds.Settings.DecayModel)
}

func TestRestoreIntoAnotherDatabase(t *testing.T) {
	ctx := context.Background()
	src := testDB(t)
	populate(t, src)
	ds, err := src.Snapshot(ctx)
	require.NoError(t, err)

	dst := testDB(t)
	mustCreate(t, dst, NewEntity{Name: "Will be wiped", Kind: KindTopic})

	stats, err := dst.Restore(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 2, stats.Interactions)
	assert.Equal(t, 1, stats.Photos)
	assert.Zero(t, stats.Skipped)

	entities, err := dst.ListEntities(ctx, EntityFilter{IncludeHidden: true})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	var iris *Entity
	for i := range entities {
		if entities[i].Name == "Iris" {
			iris = &entities[i]
		}
	}
	require.NotNil(t, iris)
	assert.Equal(t, "iris@example.com", iris.ContactData.Emails[0].Email)

	family, err := dst.GetTagByName(ctx, "Family")
	require.NoError(t, err)
	assert.True(t, family.IsDefault)
	assert.Equal(t, 1, family.Count, "default tag reused and recounted")

	var familyTags int
	require.NoError(t, dst.QueryRow("SELECT COUNT(*) FROM tags WHERE name = 'Family' COLLATE NOCASE").Scan(&familyTags))
	assert.Equal(t, 1, familyTags)

	groups, err := dst.GroupsOf(ctx, iris.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	r, err := dst.GetBirthdayReminder(ctx, iris.ID)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Empty(t, r.NotificationID)

	s, err := dst.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, scoring.Logarithmic, s.DecayModel)

	eligible, err := dst.EligibleInteractionTypes(ctx, iris.ID)
	require.NoError(t, err)
	assert.Contains(t, typeNames(eligible), "Family Dinner")
}

func TestRestoreFailureLeavesDataIntact(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	keep := mustCreate(t, db, NewEntity{Name: "Keeper", Kind: KindPerson})

	bad := &Dataset{Entities: []Entity{
		{ID: 1, Name: "Fine", Kind: KindPerson},
		{ID: 2, Name: "Broken", Kind: "robot"},
	}}
	_, err := db.Restore(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidKind)

	e, err := db.GetEntity(ctx, keep)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Keeper", e.Name)
}

func TestRestoreSkipsOrphans(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	stats, err := db.Restore(ctx, &Dataset{
		Entities:     []Entity{{ID: 10, Name: "Solo", Kind: KindPerson}},
		Interactions: []Interaction{{ID: 1, EntityID: 10, Type: "Coffee"}, {ID: 2, EntityID: 77, Type: "Coffee"}},
		EntityTags:   []EntityTag{{EntityID: 10, TagID: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Interactions)
	assert.Equal(t, 2, stats.Skipped)
}
