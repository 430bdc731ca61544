package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBirthday(t *testing.T) {
	tests := []struct {
		in      string
		want    Birthday
		wantErr bool
	}{
		{in: "1990-07-14", want: Birthday{Year: 1990, Month: time.July, Day: 14}},
		{in: "--07-14", want: Birthday{Month: time.July, Day: 14}},
		{in: "--02-29", want: Birthday{Month: time.February, Day: 29}},
		{in: "2000-02-29", want: Birthday{Year: 2000, Month: time.February, Day: 29}},
		{in: "2001-02-29", wantErr: true},
		{in: "--13-01", wantErr: true},
		{in: "07/14/1990", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBirthday(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBirthday)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestBirthdayNext(t *testing.T) {
	from := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	b := Birthday{Month: time.March, Day: 10}
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), b.Next(from), "today counts")

	b = Birthday{Year: 1980, Month: time.January, Day: 2}
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), b.Next(from))

	leap := Birthday{Month: time.February, Day: 29}
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), leap.Next(from))
	assert.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
		leap.Next(time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseReminderTime(t *testing.T) {
	h, m, err := ParseReminderTime("07:45")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)

	for _, bad := range []string{"7:45", "24:00", "12:60", "noon", ""} {
		_, _, err := ParseReminderTime(bad)
		assert.ErrorIs(t, err, ErrInvalidReminderTime, bad)
	}
}

func TestBirthdayReminderLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Gus", Kind: KindPerson, Birthday: "--11-05"})

	none, err := db.GetBirthdayReminder(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, none)

	rid, err := db.UpsertBirthdayReminder(ctx, BirthdayReminder{
		EntityID: id, Birthday: "--11-05", DaysInAdvance: 2, Enabled: true,
	})
	require.NoError(t, err)

	r, err := db.GetBirthdayReminder(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, rid, r.ID)
	assert.Equal(t, "09:00", r.ReminderTime)
	assert.Equal(t, 2, r.DaysInAdvance)
	assert.True(t, r.Enabled)
	assert.Empty(t, r.NotificationID)

	require.NoError(t, db.SetReminderNotification(ctx, id, "notif-123"))

	again, err := db.UpsertBirthdayReminder(ctx, BirthdayReminder{
		EntityID: id, Birthday: "--11-05", ReminderTime: "18:30", Enabled: false,
	})
	require.NoError(t, err)
	assert.Equal(t, rid, again, "one reminder per entity")

	r, err = db.GetBirthdayReminder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "18:30", r.ReminderTime)
	assert.False(t, r.Enabled)
	assert.Equal(t, "notif-123", r.NotificationID, "handle survives so it can be cancelled")

	require.NoError(t, db.SetReminderNotification(ctx, id, ""))
	all, err := db.ListBirthdayReminders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].NotificationID)

	require.NoError(t, db.DeleteBirthdayReminder(ctx, id))
	require.NoError(t, db.DeleteBirthdayReminder(ctx, id))
	assert.ErrorIs(t, db.SetReminderNotification(ctx, id, "x"), ErrNotFound)
}

func TestUpsertBirthdayReminderValidation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := mustCreate(t, db, NewEntity{Name: "Hal", Kind: KindPerson})

	_, err := db.UpsertBirthdayReminder(ctx, BirthdayReminder{EntityID: id, Birthday: "soon"})
	assert.ErrorIs(t, err, ErrInvalidBirthday)
	_, err = db.UpsertBirthdayReminder(ctx, BirthdayReminder{EntityID: id, Birthday: "--01-01", ReminderTime: "9am"})
	assert.ErrorIs(t, err, ErrInvalidReminderTime)
	_, err = db.UpsertBirthdayReminder(ctx, BirthdayReminder{EntityID: id, Birthday: "--01-01", DaysInAdvance: -1})
	assert.Error(t, err)
	_, err = db.UpsertBirthdayReminder(ctx, BirthdayReminder{EntityID: 999, Birthday: "--01-01"})
	assert.ErrorIs(t, err, ErrNotFound)
}
