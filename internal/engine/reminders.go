package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/store"
)

// ReminderRequest is what the notification collaborator needs to deliver a
// birthday reminder.
type ReminderRequest struct {
	EntityID      int64
	Name          string
	Birthday      store.Birthday
	ReminderTime  string
	DaysInAdvance int
	// FireAt is the next delivery time, computed from the other fields.
	FireAt time.Time
}

// Scheduler delivers reminders. Schedule returns an opaque handle that
// Cancel accepts later.
type Scheduler interface {
	Schedule(ctx context.Context, req ReminderRequest) (string, error)
	Cancel(ctx context.Context, id string) error
}

// NopScheduler accepts everything and delivers nothing.
type NopScheduler struct{}

func (NopScheduler) Schedule(context.Context, ReminderRequest) (string, error) { return "", nil }
func (NopScheduler) Cancel(context.Context, string) error                      { return nil }

// LogScheduler records reminders in the log only. It stands in for a real
// notification service when garden runs headless.
type LogScheduler struct {
	Log *zap.Logger
}

func (s LogScheduler) Schedule(_ context.Context, req ReminderRequest) (string, error) {
	id := uuid.NewString()
	s.Log.Info("birthday reminder scheduled",
		zap.String("notification_id", id),
		zap.Int64("entity_id", req.EntityID),
		zap.String("name", req.Name),
		zap.Time("fire_at", req.FireAt))
	return id, nil
}

func (s LogScheduler) Cancel(_ context.Context, id string) error {
	s.Log.Info("birthday reminder cancelled", zap.String("notification_id", id))
	return nil
}

// nextFire returns the first reminder delivery at or after now.
func nextFire(b store.Birthday, reminderTime string, daysInAdvance int, now time.Time) (time.Time, error) {
	hour, minute, err := store.ParseReminderTime(reminderTime)
	if err != nil {
		return time.Time{}, err
	}
	from := now
	for {
		day := b.Next(from)
		fire := time.Date(day.Year(), day.Month(), day.Day()-daysInAdvance, hour, minute, 0, 0, now.Location())
		if !fire.Before(now) {
			return fire, nil
		}
		from = day.AddDate(0, 0, 1)
	}
}

// SetBirthdayReminder stores r and reschedules its notification. A disabled
// reminder is stored with nothing scheduled.
func (e *Engine) SetBirthdayReminder(ctx context.Context, r store.BirthdayReminder) error {
	if _, err := e.DB.UpsertBirthdayReminder(ctx, r); err != nil {
		return err
	}
	stored, err := e.DB.GetBirthdayReminder(ctx, r.EntityID)
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if stored == nil {
		return fmt.Errorf("reminder for %d: %w", r.EntityID, store.ErrNotFound)
	}
	return e.reschedule(ctx, *stored)
}

// RemoveBirthdayReminder cancels and deletes an entity's reminder.
func (e *Engine) RemoveBirthdayReminder(ctx context.Context, entityID int64) error {
	r, err := e.DB.GetBirthdayReminder(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if r == nil {
		return nil
	}
	if r.NotificationID != "" {
		if err := e.Scheduler.Cancel(ctx, r.NotificationID); err != nil {
			return fmt.Errorf("cancel notification: %w", err)
		}
	}
	return e.DB.DeleteBirthdayReminder(ctx, entityID)
}

// SyncBirthdayReminders reschedules every stored reminder, for example after
// an import cleared the notification handles. It returns how many reminders
// are now scheduled. Failures are logged and the sweep continues.
func (e *Engine) SyncBirthdayReminders(ctx context.Context) (int, error) {
	reminders, err := e.DB.ListBirthdayReminders(ctx)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, r := range reminders {
		if err := e.reschedule(ctx, r); err != nil {
			e.log.Warn("reschedule birthday reminder", zap.Int64("entity_id", r.EntityID), zap.Error(err))
			continue
		}
		if r.Enabled {
			scheduled++
		}
	}
	e.log.Info("birthday reminders synced", zap.Int("scheduled", scheduled), zap.Int("total", len(reminders)))
	return scheduled, nil
}

func (e *Engine) reschedule(ctx context.Context, r store.BirthdayReminder) error {
	if r.NotificationID != "" {
		if err := e.Scheduler.Cancel(ctx, r.NotificationID); err != nil {
			e.log.Warn("cancel stale notification", zap.String("notification_id", r.NotificationID), zap.Error(err))
		}
		if err := e.DB.SetReminderNotification(ctx, r.EntityID, ""); err != nil {
			return err
		}
	}
	if !r.Enabled {
		return nil
	}

	entity, err := e.DB.GetEntity(ctx, r.EntityID)
	if err != nil {
		return fmt.Errorf("load entity: %w", err)
	}
	if entity == nil {
		return fmt.Errorf("entity %d: %w", r.EntityID, store.ErrNotFound)
	}
	b, err := store.ParseBirthday(r.Birthday)
	if err != nil {
		return err
	}
	fire, err := nextFire(b, r.ReminderTime, r.DaysInAdvance, e.now())
	if err != nil {
		return err
	}

	handle, err := e.Scheduler.Schedule(ctx, ReminderRequest{
		EntityID:      r.EntityID,
		Name:          entity.Name,
		Birthday:      b,
		ReminderTime:  r.ReminderTime,
		DaysInAdvance: r.DaysInAdvance,
		FireAt:        fire,
	})
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	if handle == "" {
		return nil
	}
	return e.DB.SetReminderNotification(ctx, r.EntityID, handle)
}
