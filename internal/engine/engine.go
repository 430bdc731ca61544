package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/store"
)

// Engine runs the background work around the store: the periodic score
// sweep and birthday reminder scheduling.
type Engine struct {
	DB        *store.DB
	Scheduler Scheduler

	log      *zap.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the time source used for reminder scheduling.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. A nil scheduler disables reminder delivery.
func New(db *store.DB, sched Scheduler, opts ...Option) *Engine {
	if sched == nil {
		sched = NopScheduler{}
	}
	e := &Engine{
		DB:        db,
		Scheduler: sched,
		log:       zap.NewNop(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Stop shuts down the engine's background goroutines and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// DeleteEntity removes an entity and cancels its scheduled birthday
// notification, if any.
func (e *Engine) DeleteEntity(ctx context.Context, id int64) error {
	r, err := e.DB.GetBirthdayReminder(ctx, id)
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if err := e.DB.DeleteEntity(ctx, id); err != nil {
		return err
	}
	if r != nil && r.NotificationID != "" {
		if err := e.Scheduler.Cancel(ctx, r.NotificationID); err != nil {
			e.log.Warn("cancel notification for deleted entity",
				zap.Int64("entity_id", id), zap.String("notification_id", r.NotificationID), zap.Error(err))
		}
	}
	return nil
}
