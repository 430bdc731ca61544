package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeNames(types []InteractionType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}

func TestEligibleTypesPerson(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Mo", Kind: KindPerson})

	types, err := db.EligibleInteractionTypes(ctx, id)
	require.NoError(t, err)
	names := typeNames(types)
	assert.Contains(t, names, GeneralContactType)
	assert.Contains(t, names, "Phone Call")
	assert.NotContains(t, names, "Family Dinner", "tag-bound types need the tag")
	assert.NotContains(t, names, "Research", "topic-only types")
	assert.NotContains(t, names, "Group Hangout")

	_, err = db.AddTagToEntity(ctx, id, "Family")
	require.NoError(t, err)
	types, err = db.EligibleInteractionTypes(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, typeNames(types), "Family Dinner")
}

func TestEligibleTypesLegacyTagLink(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Mo", Kind: KindPerson})
	tag, err := db.AddTagToEntity(ctx, id, "Sailing")
	require.NoError(t, err)

	typeID, err := db.CreateInteractionType(ctx, InteractionType{Name: "Regatta", Score: 2})
	require.NoError(t, err)
	_, err = db.Exec("UPDATE interaction_types SET tag_id = ?, entity_type = 'topic' WHERE id = ?", tag.ID, typeID)
	require.NoError(t, err)

	types, err := db.EligibleInteractionTypes(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, typeNames(types), "Regatta")
}

func TestEligibleTypesTopic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Go generics", Kind: KindTopic})

	types, err := db.EligibleInteractionTypes(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{GeneralContactType, "Research"}, typeNames(types))
}

func TestEligibleTypesGroup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	group := mustCreate(t, db, NewEntity{Name: "Cousins", Kind: KindGroup})
	nested := mustCreate(t, db, NewEntity{Name: "Little Cousins", Kind: KindGroup})
	member := mustCreate(t, db, NewEntity{Name: "Ari", Kind: KindPerson})
	deep := mustCreate(t, db, NewEntity{Name: "Bo", Kind: KindPerson})

	require.NoError(t, db.AddGroupMember(ctx, group, member))
	require.NoError(t, db.AddGroupMember(ctx, group, nested))
	require.NoError(t, db.AddGroupMember(ctx, nested, deep))
	_, err := db.AddTagToEntity(ctx, member, "Family")
	require.NoError(t, err)
	_, err = db.AddTagToEntity(ctx, deep, "Work")
	require.NoError(t, err)

	types, err := db.EligibleInteractionTypes(ctx, group)
	require.NoError(t, err)
	names := typeNames(types)
	assert.Contains(t, names, GeneralContactType)
	assert.Contains(t, names, "Phone Call", "from the person member")
	assert.Contains(t, names, "Family Dinner", "from the member's tag")
	assert.Contains(t, names, "Group Hangout", "the group's own kind")
	assert.NotContains(t, names, "Meeting", "nested groups are not descended into")

	seen := make(map[int64]bool)
	for _, it := range types {
		assert.False(t, seen[it.ID], "duplicate type %q", it.Name)
		seen[it.ID] = true
	}
}

func TestEligibleTypesGroupWithTopicMember(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.CreateInteractionType(ctx, InteractionType{Name: "Note", Score: 1})
	require.NoError(t, err)
	group := mustCreate(t, db, NewEntity{Name: "Reading List", Kind: KindGroup})
	topic := mustCreate(t, db, NewEntity{Name: "Go generics", Kind: KindTopic})
	require.NoError(t, db.AddGroupMember(ctx, group, topic))

	types, err := db.EligibleInteractionTypes(ctx, group)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{GeneralContactType, "Research", "Group Hangout"}, typeNames(types))
}

func TestEligibleTypesNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.EligibleInteractionTypes(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInheritedTagIDs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	group := mustCreate(t, db, NewEntity{Name: "Office", Kind: KindGroup})
	person := mustCreate(t, db, NewEntity{Name: "Dee", Kind: KindPerson})
	topic := mustCreate(t, db, NewEntity{Name: "Rust", Kind: KindTopic})
	require.NoError(t, db.AddGroupMember(ctx, group, person))

	work, err := db.AddTagToEntity(ctx, group, "Work")
	require.NoError(t, err)
	friends, err := db.AddTagToEntity(ctx, person, "Friends")
	require.NoError(t, err)

	got, err := db.InheritedTagIDs(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []int64{friends.ID}, got)

	got, err = db.InheritedTagIDs(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, []int64{work.ID}, got)

	got, err = db.InheritedTagIDs(ctx, topic)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGroupMembership(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	group := mustCreate(t, db, NewEntity{Name: "Choir", Kind: KindGroup})
	person := mustCreate(t, db, NewEntity{Name: "Eve", Kind: KindPerson})
	other := mustCreate(t, db, NewEntity{Name: "Fay", Kind: KindPerson})

	require.NoError(t, db.AddGroupMember(ctx, group, person))
	require.NoError(t, db.AddGroupMember(ctx, group, person))
	assert.ErrorIs(t, db.AddGroupMember(ctx, person, other), ErrNotGroup)
	assert.ErrorIs(t, db.AddGroupMember(ctx, group, group), ErrSelfReference)
	assert.ErrorIs(t, db.AddGroupMember(ctx, group, 999), ErrNotFound)

	members, err := db.GroupMembers(ctx, group)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, person, members[0].ID)

	groups, err := db.GroupsOf(ctx, person)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group, groups[0].ID)

	require.NoError(t, db.RemoveGroupMember(ctx, group, person))
	members, err = db.GroupMembers(ctx, group)
	require.NoError(t, err)
	assert.Empty(t, members)
}
