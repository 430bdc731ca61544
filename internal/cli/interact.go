package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/store"
)

func newInteractCmd(a *app) *cobra.Command {
	var (
		notes string
		at    string
	)
	cmd := &cobra.Command{
		Use:   "interact ID TYPE",
		Short: "Record an interaction with an entity",
		Long:  "Record an interaction of the named type. Recording against a group also records it for every member.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			typeName := strings.Join(args[1:], " ")
			when := time.Now()
			if at != "" {
				when, err = time.ParseInLocation("2006-01-02 15:04", at, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --at %q (want YYYY-MM-DD HH:MM): %w", at, err)
				}
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				n, err := db.RecordInteractionAt(ctx, id, typeName, notes, when)
				if err != nil {
					return err
				}
				e, err := db.GetEntity(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s with %s (%d %s), score now %.2f\n",
					typeName, e.Name, n, plural(n, "row", "rows"), e.InteractionScore)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "optional notes")
	cmd.Flags().StringVar(&at, "at", "", "when it happened, YYYY-MM-DD HH:MM (default now)")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history ID",
		Short: "Show an entity's interactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				list, err := db.ListInteractions(ctx, id, limit)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(w, "No interactions recorded.")
					return nil
				}
				for _, i := range list {
					ts := time.UnixMilli(i.Timestamp)
					fmt.Fprintf(w, "#%-5d %s  %-14s %s", i.ID, ts.Format("2006-01-02 15:04"), humanize.Time(ts), i.Type)
					if i.Notes != "" {
						fmt.Fprintf(w, " - %s", i.Notes)
					}
					fmt.Fprintln(w)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "max interactions to show (0 for all)")
	return cmd
}
