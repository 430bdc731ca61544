package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				v, err := db.SchemaVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d (latest %d)\n", db.Path, v, store.LatestVersion)
				return nil
			})
		},
	}
}
