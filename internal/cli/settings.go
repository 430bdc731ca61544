package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/engine"
	"github.com/lazypower/garden/internal/scoring"
	"github.com/lazypower/garden/internal/store"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show decay settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				s, err := db.GetSettings(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "decay: %s, factor %g\n", s.DecayModel, s.DecayFactor)
				return nil
			})
		},
	}

	var (
		factor float64
		model  string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change decay settings and rescore every entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				s, err := db.GetSettings(ctx)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("factor") {
					s.DecayFactor = factor
				}
				if cmd.Flags().Changed("model") {
					m, err := scoring.ParseDecayModel(model)
					if err != nil {
						return err
					}
					s.DecayModel = m
				}
				if err := db.UpdateSettings(ctx, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "decay: %s, factor %g\n", s.DecayModel, s.DecayFactor)
				return nil
			})
		},
	}
	set.Flags().Float64Var(&factor, "factor", 0, "decay factor (>= 0)")
	set.Flags().StringVar(&model, "model", "", "linear, exponential or logarithmic")
	cmd.AddCommand(set)
	return cmd
}

func newScoresCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Maintain interaction scores",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Recompute every entity's score from its history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				eng := engine.New(db, nil, engine.WithLogger(a.log))
				n, err := eng.SweepScores(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rescored %s entities\n", humanize.Comma(int64(n)))
				return nil
			})
		},
	})
	return cmd
}
