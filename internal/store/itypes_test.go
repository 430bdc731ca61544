package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/scoring"
)

func TestInteractionTypeCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	tag, err := db.AddTagToEntity(ctx, mustCreate(t, db, NewEntity{Name: "X", Kind: KindPerson}), "Family")
	require.NoError(t, err)

	id, err := db.CreateInteractionType(ctx, InteractionType{
		Name: "Letter", Icon: "mail-outline", Score: 2,
		Kinds: []Kind{KindPerson, KindGroup}, TagIDs: []int64{tag.ID},
	})
	require.NoError(t, err)

	got, err := db.GetInteractionTypeByName(ctx, "LETTER")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, []Kind{KindPerson, KindGroup}, got.Kinds)
	assert.Equal(t, fallbackTypeColor, got.Color)

	got.Score = 5
	got.Kinds = nil
	got.TagIDs = nil
	require.NoError(t, db.UpdateInteractionType(ctx, *got))

	types, err := db.ListInteractionTypes(ctx)
	require.NoError(t, err)
	for _, it := range types {
		if it.ID == id {
			assert.Equal(t, 5.0, it.Score)
			assert.True(t, it.Global())
		}
	}

	require.NoError(t, db.DeleteInteractionType(ctx, id))
	assert.ErrorIs(t, db.DeleteInteractionType(ctx, id), ErrNotFound)
	assert.ErrorIs(t, db.UpdateInteractionType(ctx, InteractionType{ID: id, Name: "Gone"}), ErrNotFound)

	_, err = db.CreateInteractionType(ctx, InteractionType{Name: " "})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestApplyInteractionTypeConfig(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Config", Kind: KindPerson})

	_, err := db.RecordInteraction(ctx, id, "Coffee", "")
	require.NoError(t, err)
	_, err = db.RecordInteraction(ctx, id, "Call", "")
	require.NoError(t, err)

	cfg := TypeConfig{
		Tags: []TagSpec{{Name: "Climbing", Icon: "trail-sign-outline", Color: "#335C67"}},
		Types: []TypeSpec{
			{Name: "Call", Icon: "call-outline", Score: 2},
			{Name: "Crag Day", Tags: []string{"climbing", "Outdoors"}, Score: 4},
			{Name: "Belay", Kinds: []Kind{KindPerson}, Tags: []string{"Climbing"}, Score: 3},
		},
	}
	require.NoError(t, db.ApplyInteractionTypeConfig(ctx, cfg))

	types, err := db.ListInteractionTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 3)
	assert.Equal(t, []string{"Call", "Crag Day", "Belay"}, typeNames(types))
	assert.Len(t, types[1].TagIDs, 2)
	assert.Nil(t, types[1].TagID)
	require.NotNil(t, types[2].TagID, "single-tag types keep the legacy link")

	climbing, err := db.GetTagByName(ctx, "climbing")
	require.NoError(t, err)
	assert.True(t, climbing.IsDefault)
	assert.Equal(t, "#335C67", climbing.Color)
	outdoors, err := db.GetTagByName(ctx, "Outdoors")
	require.NoError(t, err)
	assert.NotNil(t, outdoors)

	list, err := db.ListInteractions(ctx, id, 0)
	require.NoError(t, err)
	for _, i := range list {
		switch i.Type {
		case "Call":
			require.NotNil(t, i.InteractionTypeID, "relinked by name")
			assert.Equal(t, types[0].ID, *i.InteractionTypeID)
		case "Coffee":
			assert.Nil(t, i.InteractionTypeID)
		}
	}

	e, err := db.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 2+scoring.DefaultWeight, e.InteractionScore, 1e-9, "rescored under the new weights")
}

func TestTypeChangesRescore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Iris", Kind: KindPerson})
	_, err := db.RecordInteraction(ctx, id, "Coffee", "")
	require.NoError(t, err)

	score := func() float64 {
		t.Helper()
		e, err := db.GetEntity(ctx, id)
		require.NoError(t, err)
		return e.InteractionScore
	}
	assert.InDelta(t, 3.0, score(), 1e-9)

	coffee, err := db.GetInteractionTypeByName(ctx, "Coffee")
	require.NoError(t, err)
	coffee.Score = 5
	require.NoError(t, db.UpdateInteractionType(ctx, *coffee))
	assert.InDelta(t, 5.0, score(), 1e-9)

	require.NoError(t, db.DeleteInteractionType(ctx, coffee.ID))
	assert.InDelta(t, scoring.DefaultWeight, score(), 1e-9)
}

func TestApplyInteractionTypeConfigRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, "mock", WithLogger(zap.NewNop()))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE interactions SET interaction_type_id = NULL")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = db.ApplyInteractionTypeConfig(context.Background(), TypeConfig{
		Types: []TypeSpec{{Name: "Never Written", Score: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadyHandleSkipsSweep(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, "mock")

	n, err := db.UpdateAllInteractionScores(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statements on an unready handle")
}

func TestRecomputeScoreQueriesHistory(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, "mock", WithClock(func() time.Time { return testNow }))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT decay_factor, decay_type FROM settings WHERE id = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"decay_factor", "decay_type"}).AddRow(0.0, "linear"))
	mock.ExpectQuery("FROM interactions i").
		WithArgs(1.0, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp", "score"}).
			AddRow(testNow.UnixMilli(), 2.0).
			AddRow(testNow.UnixMilli(), 3.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE entities SET interaction_score = ?, updated_at = ? WHERE id = ?")).
		WithArgs(5.0, testNow.UnixMilli(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	score, err := db.RecomputeScore(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
