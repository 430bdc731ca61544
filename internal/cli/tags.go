package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/store"
)

func newTagCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags and entity tagging",
	}

	add := &cobra.Command{
		Use:   "add ID TAG",
		Short: "Tag an entity, creating the tag on first use",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				t, err := db.AddTagToEntity(ctx, id, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tagged #%d with %s\n", id, t.Name)
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm ID TAG_ID",
		Short: "Remove a tag from an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				return db.RemoveTagFromEntity(ctx, ids[0], ids[1])
			})
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tags with their usage counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				tags, err := db.ListTags(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, t := range tags {
					def := ""
					if t.IsDefault {
						def = " (default)"
					}
					fmt.Fprintf(w, "#%-4d %-20s %s%s\n", t.ID, t.Name, humanize.Comma(int64(t.Count)), def)
				}
				return nil
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename TAG_ID NAME",
		Short: "Rename a tag",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				return db.RenameTag(ctx, id, strings.Join(args[1:], " "))
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete TAG_ID",
		Short: "Delete a tag and all of its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				return db.DeleteTag(ctx, id)
			})
		},
	}

	repair := &cobra.Command{
		Use:   "repair",
		Short: "Recount tag usage from the entity links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				if err := db.RecalculateTagCounts(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tag counts recalculated")
				return nil
			})
		},
	}

	cmd.AddCommand(add, rm, list, rename, del, repair)
	return cmd
}
