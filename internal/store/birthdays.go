package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidBirthday     = errors.New("birthday must be YYYY-MM-DD or --MM-DD")
	ErrInvalidReminderTime = errors.New("reminder time must be HH:MM")
)

// Birthday is a parsed birthday. Year is zero when unknown (--MM-DD form).
type Birthday struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseBirthday accepts YYYY-MM-DD or --MM-DD.
func ParseBirthday(s string) (Birthday, error) {
	s = strings.TrimSpace(s)
	var b Birthday
	switch {
	case len(s) == 7 && strings.HasPrefix(s, "--"):
		t, err := time.Parse("01-02", s[2:])
		if err != nil {
			// time.Parse rejects Feb 29 without a year.
			if s[2:] != "02-29" {
				return b, fmt.Errorf("%w: %q", ErrInvalidBirthday, s)
			}
			return Birthday{Month: time.February, Day: 29}, nil
		}
		return Birthday{Month: t.Month(), Day: t.Day()}, nil
	case len(s) == 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return b, fmt.Errorf("%w: %q", ErrInvalidBirthday, s)
		}
		return Birthday{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
	}
	return b, fmt.Errorf("%w: %q", ErrInvalidBirthday, s)
}

// String formats the birthday back to its stored form.
func (b Birthday) String() string {
	if b.Year == 0 {
		return fmt.Sprintf("--%02d-%02d", int(b.Month), b.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", b.Year, int(b.Month), b.Day)
}

// Next returns the first occurrence of the birthday on or after the day of
// from, in from's location. Feb 29 falls on Feb 28 in common years.
func (b Birthday) Next(from time.Time) time.Time {
	y, m, d := from.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, from.Location())
	for year := y; ; year++ {
		day := b.Day
		if b.Month == time.February && day == 29 && !isLeap(year) {
			day = 28
		}
		t := time.Date(year, b.Month, day, 0, 0, 0, 0, from.Location())
		if !t.Before(today) {
			return t
		}
	}
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// ParseReminderTime parses an HH:MM reminder time.
func ParseReminderTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidReminderTime, s)
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidReminderTime, s)
	}
	return hour, minute, nil
}

// BirthdayReminder configures a notification ahead of an entity's birthday.
type BirthdayReminder struct {
	ID            int64
	EntityID      int64
	Birthday      string
	ReminderTime  string
	DaysInAdvance int
	Enabled       bool
	// NotificationID is the opaque handle returned by the scheduler, empty
	// when nothing is scheduled.
	NotificationID string
	CreatedAt      int64
	UpdatedAt      int64
}

const reminderColumns = `id, entity_id, birthday, reminder_time, days_in_advance, is_enabled, notification_id, created_at, updated_at`

func scanReminder(scan func(dest ...any) error) (BirthdayReminder, error) {
	var (
		r       BirthdayReminder
		enabled int
		notifID sql.NullString
	)
	err := scan(&r.ID, &r.EntityID, &r.Birthday, &r.ReminderTime, &r.DaysInAdvance,
		&enabled, &notifID, &r.CreatedAt, &r.UpdatedAt)
	r.Enabled = enabled != 0
	r.NotificationID = notifID.String
	return r, err
}

// UpsertBirthdayReminder creates or replaces the reminder for r.EntityID.
// An existing notification handle is kept so the caller can cancel it.
func (db *DB) UpsertBirthdayReminder(ctx context.Context, r BirthdayReminder) (int64, error) {
	if _, err := ParseBirthday(r.Birthday); err != nil {
		return 0, err
	}
	if r.ReminderTime == "" {
		r.ReminderTime = "09:00"
	}
	if _, _, err := ParseReminderTime(r.ReminderTime); err != nil {
		return 0, err
	}
	if r.DaysInAdvance < 0 {
		return 0, fmt.Errorf("days in advance must not be negative: %d", r.DaysInAdvance)
	}

	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", r.EntityID).Scan(&exists); err != nil {
			return fmt.Errorf("check entity: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("entity %d: %w", r.EntityID, ErrNotFound)
		}

		now := db.nowMillis()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO birthday_reminders (entity_id, birthday, reminder_time, days_in_advance, is_enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id) DO UPDATE SET
				birthday = excluded.birthday,
				reminder_time = excluded.reminder_time,
				days_in_advance = excluded.days_in_advance,
				is_enabled = excluded.is_enabled,
				updated_at = excluded.updated_at
		`, r.EntityID, strings.TrimSpace(r.Birthday), r.ReminderTime, r.DaysInAdvance, boolInt(r.Enabled), now, now); err != nil {
			return fmt.Errorf("upsert birthday reminder: %w", err)
		}
		return tx.QueryRowContext(ctx,
			"SELECT id FROM birthday_reminders WHERE entity_id = ?", r.EntityID).Scan(&id)
	})
	return id, err
}

// GetBirthdayReminder returns an entity's reminder, or nil if none exists.
func (db *DB) GetBirthdayReminder(ctx context.Context, entityID int64) (*BirthdayReminder, error) {
	if !db.Ready() {
		return nil, nil
	}
	row := db.QueryRowContext(ctx,
		"SELECT "+reminderColumns+" FROM birthday_reminders WHERE entity_id = ?", entityID)
	r, err := scanReminder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get birthday reminder: %w", err)
	}
	return &r, nil
}

// ListBirthdayReminders returns every reminder ordered by entity.
func (db *DB) ListBirthdayReminders(ctx context.Context) ([]BirthdayReminder, error) {
	if !db.Ready() {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+reminderColumns+" FROM birthday_reminders ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("list birthday reminders: %w", err)
	}
	defer rows.Close()

	var out []BirthdayReminder
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan birthday reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetReminderNotification stores the scheduler handle for an entity's
// reminder. An empty handle clears it.
func (db *DB) SetReminderNotification(ctx context.Context, entityID int64, notificationID string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE birthday_reminders SET notification_id = NULLIF(?, ''), updated_at = ? WHERE entity_id = ?",
		notificationID, db.nowMillis(), entityID)
	if err != nil {
		return fmt.Errorf("set reminder notification: %w", err)
	}
	return requireAffected(res, "birthday reminder for entity", entityID)
}

// DeleteBirthdayReminder removes an entity's reminder. Missing reminders are
// not an error.
func (db *DB) DeleteBirthdayReminder(ctx context.Context, entityID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM birthday_reminders WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("delete birthday reminder: %w", err)
	}
	return nil
}
