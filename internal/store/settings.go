package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lazypower/garden/internal/scoring"
)

// ErrInvalidSettings is returned for a negative factor or unknown model.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the singleton decay configuration.
type Settings struct {
	DecayFactor float64
	DecayModel  scoring.DecayModel
}

// DefaultSettings is what a fresh database starts with: no decay.
var DefaultSettings = Settings{DecayFactor: 0, DecayModel: scoring.Linear}

// GetSettings returns the decay settings, or the defaults when the row is
// missing.
func (db *DB) GetSettings(ctx context.Context) (Settings, error) {
	if !db.Ready() {
		return DefaultSettings, nil
	}
	return getSettings(ctx, db)
}

func getSettings(ctx context.Context, q querier) (Settings, error) {
	var (
		s     Settings
		model string
	)
	err := q.QueryRowContext(ctx,
		"SELECT decay_factor, decay_type FROM settings WHERE id = 1",
	).Scan(&s.DecayFactor, &model)
	if err == sql.ErrNoRows {
		return DefaultSettings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	m, err := scoring.ParseDecayModel(model)
	if err != nil {
		m = scoring.Linear
	}
	s.DecayModel = m
	return s, nil
}

// UpdateSettings stores new decay settings and rescores every entity in the
// same transaction.
func (db *DB) UpdateSettings(ctx context.Context, s Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	s.DecayModel, _ = scoring.ParseDecayModel(string(s.DecayModel))

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (id, decay_factor, decay_type) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET decay_factor = excluded.decay_factor, decay_type = excluded.decay_type
		`, s.DecayFactor, string(s.DecayModel)); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		_, err := db.rescoreAll(ctx, tx, s)
		return err
	})
}

func (s Settings) validate() error {
	if s.DecayFactor < 0 {
		return fmt.Errorf("%w: decay factor must be >= 0, got %v", ErrInvalidSettings, s.DecayFactor)
	}
	if _, err := scoring.ParseDecayModel(string(s.DecayModel)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}
