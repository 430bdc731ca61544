package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/engine"
	"github.com/lazypower/garden/internal/store"
)

func (a *app) engine(db *store.DB) *engine.Engine {
	return engine.New(db, engine.LogScheduler{Log: a.log}, engine.WithLogger(a.log))
}

func newReminderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Manage birthday reminders",
	}

	var (
		at       string
		days     int
		disabled bool
	)
	set := &cobra.Command{
		Use:   "set ID BIRTHDAY",
		Short: "Set a birthday reminder (BIRTHDAY is YYYY-MM-DD or --MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				r := store.BirthdayReminder{
					EntityID:      id,
					Birthday:      args[1],
					ReminderTime:  at,
					DaysInAdvance: days,
					Enabled:       !disabled,
				}
				if err := a.engine(db).SetBirthdayReminder(ctx, r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reminder set for #%d\n", id)
				return nil
			})
		},
	}
	set.Flags().StringVar(&at, "at", "09:00", "time of day, HH:MM")
	set.Flags().IntVar(&days, "days", 0, "days in advance")
	set.Flags().BoolVar(&disabled, "disabled", false, "store the reminder without scheduling it")

	remove := &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm"},
		Short:   "Remove a birthday reminder",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				return a.engine(db).RemoveBirthdayReminder(ctx, id)
			})
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List birthday reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				reminders, err := db.ListBirthdayReminders(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(reminders) == 0 {
					fmt.Fprintln(w, "No birthday reminders.")
					return nil
				}
				for _, r := range reminders {
					state := "on"
					if !r.Enabled {
						state = "off"
					}
					fmt.Fprintf(w, "#%-4d %-10s %s  %dd ahead  %s\n",
						r.EntityID, r.Birthday, r.ReminderTime, r.DaysInAdvance, state)
				}
				return nil
			})
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Reschedule every stored reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				n, err := a.engine(db).SyncBirthdayReminders(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s scheduled\n", n, plural(n, "reminder", "reminders"))
				return nil
			})
		},
	}

	cmd.AddCommand(set, remove, list, sync)
	return cmd
}
