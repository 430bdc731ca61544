package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/garden/internal/store"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func ago(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func newEntityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entity",
		Aliases: []string{"e"},
		Short:   "Manage people, groups and topics",
	}
	cmd.AddCommand(
		newEntityAddCmd(a),
		newEntityListCmd(a),
		newEntityShowCmd(a),
		newEntityEditCmd(a),
		newEntityDeleteCmd(a),
		newEntityFlagCmd(a, "hide", "Hide an entity from lists", func(ctx context.Context, db *store.DB, id int64) error {
			return db.SetHidden(ctx, id, true)
		}),
		newEntityFlagCmd(a, "unhide", "Show a hidden entity again", func(ctx context.Context, db *store.DB, id int64) error {
			return db.SetHidden(ctx, id, false)
		}),
		newEntityFlagCmd(a, "fav", "Pin an entity to favorites", func(ctx context.Context, db *store.DB, id int64) error {
			return db.SetFavorite(ctx, id, true)
		}),
		newEntityFlagCmd(a, "unfav", "Remove an entity from favorites", func(ctx context.Context, db *store.DB, id int64) error {
			return db.SetFavorite(ctx, id, false)
		}),
	)
	return cmd
}

func newEntityAddCmd(a *app) *cobra.Command {
	var ne store.NewEntity
	var kind string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a person, group or topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := store.ParseKind(kind)
			if err != nil {
				return err
			}
			ne.Name = strings.Join(args, " ")
			ne.Kind = k
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				id, created, err := db.CreateEntity(ctx, ne)
				if err != nil {
					return err
				}
				if !created {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (#%d)\n", ne.Name, id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s #%d: %s\n", ne.Kind, id, ne.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "person", "person, group or topic")
	cmd.Flags().StringVarP(&ne.Details, "details", "d", "", "free-form details")
	cmd.Flags().StringVar(&ne.Birthday, "birthday", "", "YYYY-MM-DD or --MM-DD")
	cmd.Flags().StringVar(&ne.Image, "image", "", "image uri")
	return cmd
}

func newEntityListCmd(a *app) *cobra.Command {
	var (
		kind   string
		all    bool
		search string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List entities by score",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.EntityFilter{IncludeHidden: all, NameLike: search}
			if kind != "" {
				k, err := store.ParseKind(kind)
				if err != nil {
					return err
				}
				f.Kind = k
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				entities, err := db.ListEntities(ctx, f)
				if err != nil {
					return err
				}
				printEntities(cmd.OutOrStdout(), entities)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only this kind")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include hidden entities")
	cmd.Flags().StringVarP(&search, "search", "s", "", "name substring")
	return cmd
}

func printEntities(w io.Writer, entities []store.Entity) {
	if len(entities) == 0 {
		fmt.Fprintln(w, "No entities found.")
		return
	}
	for _, e := range entities {
		hidden := ""
		if e.Hidden {
			hidden = " (hidden)"
		}
		fmt.Fprintf(w, "#%-4d %-7s %7.2f  %s%s\n", e.ID, e.Kind, e.InteractionScore, e.Name, hidden)
	}
}

func newEntityShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an entity with its tags, types and recent interactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				return showEntity(ctx, cmd.OutOrStdout(), db, id)
			})
		},
	}
}

func showEntity(ctx context.Context, w io.Writer, db *store.DB, id int64) error {
	e, err := db.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("entity %d: %w", id, store.ErrNotFound)
	}

	fmt.Fprintf(w, "## %s (#%d, %s)\n", e.Name, e.ID, e.Kind)
	fmt.Fprintf(w, "score: %.2f   added: %s\n", e.InteractionScore, ago(e.CreatedAt))
	if e.Details != "" {
		fmt.Fprintf(w, "details: %s\n", e.Details)
	}
	if e.Birthday != "" {
		fmt.Fprintf(w, "birthday: %s\n", e.Birthday)
	}
	for _, p := range e.ContactData.PhoneNumbers {
		fmt.Fprintf(w, "phone: %s %s\n", p.Number, p.Label)
	}
	for _, m := range e.ContactData.Emails {
		fmt.Fprintf(w, "email: %s %s\n", m.Email, m.Label)
	}

	tags, err := db.EntityTags(ctx, id)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		names := make([]string, len(tags))
		for i, t := range tags {
			names[i] = t.Name
		}
		fmt.Fprintf(w, "tags: %s\n", strings.Join(names, ", "))
	}

	switch e.Kind {
	case store.KindGroup:
		members, err := db.GroupMembers(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "members: %d\n", len(members))
		for _, m := range members {
			fmt.Fprintf(w, "  - %s (#%d)\n", m.Name, m.ID)
		}
	case store.KindPerson:
		groups, err := db.GroupsOf(ctx, id)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Fprintf(w, "group: %s (#%d)\n", g.Name, g.ID)
		}
	}

	types, err := db.EligibleInteractionTypes(ctx, id)
	if err != nil {
		return err
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	fmt.Fprintf(w, "interaction types: %s\n", strings.Join(names, ", "))

	recent, err := db.ListInteractions(ctx, id, 5)
	if err != nil {
		return err
	}
	if len(recent) > 0 {
		fmt.Fprintln(w, "recent:")
		for _, i := range recent {
			fmt.Fprintf(w, "  %-14s %s", ago(i.Timestamp), i.Type)
			if i.Notes != "" {
				fmt.Fprintf(w, " - %s", i.Notes)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

func newEntityEditCmd(a *app) *cobra.Command {
	var name, details, birthday, image string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change an entity's name, details, birthday or image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var u store.EntityUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("details") {
				u.Details = &details
			}
			if cmd.Flags().Changed("birthday") {
				u.Birthday = &birthday
			}
			if cmd.Flags().Changed("image") {
				u.Image = &image
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				if err := db.UpdateEntity(ctx, id, u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated #%d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVarP(&details, "details", "d", "", "new details")
	cmd.Flags().StringVar(&birthday, "birthday", "", "YYYY-MM-DD, --MM-DD, or empty to clear")
	cmd.Flags().StringVar(&image, "image", "", "new image uri")
	return cmd
}

func newEntityDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete an entity and everything attached to it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				if err := a.engine(db).DeleteEntity(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted #%d\n", id)
				return nil
			})
		},
	}
}

func newEntityFlagCmd(a *app, use, short string, fn func(ctx context.Context, db *store.DB, id int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				if err := fn(ctx, db, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s #%d\n", use, id)
				return nil
			})
		},
	}
}

func newMergeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge SOURCE TARGET",
		Short: "Fold SOURCE into TARGET and delete SOURCE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withDB(func(ctx context.Context, db *store.DB) error {
				if err := db.MergeEntities(ctx, ids[0], ids[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "merged #%d into #%d\n", ids[0], ids[1])
				return nil
			})
		},
	}
}

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage group membership",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add GROUP MEMBER",
			Short: "Add MEMBER to GROUP",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				return a.withDB(func(ctx context.Context, db *store.DB) error {
					return db.AddGroupMember(ctx, ids[0], ids[1])
				})
			},
		},
		&cobra.Command{
			Use:     "remove GROUP MEMBER",
			Aliases: []string{"rm"},
			Short:   "Remove MEMBER from GROUP",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				return a.withDB(func(ctx context.Context, db *store.DB) error {
					return db.RemoveGroupMember(ctx, ids[0], ids[1])
				})
			},
		},
		&cobra.Command{
			Use:     "list GROUP",
			Aliases: []string{"ls"},
			Short:   "List a group's members",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return a.withDB(func(ctx context.Context, db *store.DB) error {
					members, err := db.GroupMembers(ctx, id)
					if err != nil {
						return err
					}
					printEntities(cmd.OutOrStdout(), members)
					return nil
				})
			},
		},
	)
	return cmd
}
