package engine

// Score decay is computed in internal/scoring and applied by the store.
// Scores only change when interactions or settings change, so a long-lived
// process re-sweeps periodically to let time-based decay show up.

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepScores recomputes every entity's score.
func (e *Engine) SweepScores(ctx context.Context) (int, error) {
	n, err := e.DB.UpdateAllInteractionScores(ctx)
	if err != nil {
		return 0, err
	}
	e.log.Debug("score sweep", zap.Int("entities", n))
	return n, nil
}

// StartDecayTimer sweeps scores once now and then every interval until Stop.
// A non-positive interval only runs the initial sweep.
func (e *Engine) StartDecayTimer(interval time.Duration) {
	if _, err := e.SweepScores(context.Background()); err != nil {
		e.log.Error("score sweep failed", zap.Error(err))
	}
	if interval <= 0 {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := e.SweepScores(context.Background()); err != nil {
					e.log.Error("score sweep failed", zap.Error(err))
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}
