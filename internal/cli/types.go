package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/config"
	"github.com/lazypower/garden/internal/store"
)

func printTypes(w io.Writer, types []store.InteractionType) {
	for _, t := range types {
		scope := "all"
		if len(t.Kinds) > 0 {
			kinds := make([]string, len(t.Kinds))
			for i, k := range t.Kinds {
				kinds[i] = string(k)
			}
			scope = strings.Join(kinds, ",")
		}
		if len(t.TagIDs) > 0 || t.TagID != nil {
			scope += " +tags"
		}
		fmt.Fprintf(w, "#%-4d %-20s %5.1f  %s\n", t.ID, t.Name, t.Score, scope)
	}
}

func newTypesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List interaction types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				types, err := db.ListInteractionTypes(ctx)
				if err != nil {
					return err
				}
				printTypes(cmd.OutOrStdout(), types)
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "eligible ID",
		Short: "List the interaction types that apply to an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				types, err := db.EligibleInteractionTypes(ctx, id)
				if err != nil {
					return err
				}
				printTypes(cmd.OutOrStdout(), types)
				return nil
			})
		},
	})
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Apply configuration files to the database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply [FILE]",
		Short: "Replace every interaction type with those in a YAML defaults file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.TypesFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no types file given and types_file is not configured")
			}
			tc, err := config.LoadTypeConfigFile(path)
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				if err := db.ApplyInteractionTypeConfig(ctx, tc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d interaction types and %d tags from %s\n",
					len(tc.Types), len(tc.Tags), path)
				return nil
			})
		},
	})
	return cmd
}
