package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/backup"
	"github.com/lazypower/garden/internal/store"
)

// EnvPassphrase supplies the backup passphrase when --passphrase is absent.
const EnvPassphrase = "GARDEN_PASSPHRASE"

func passphraseFrom(flag string) string {
	if flag != "" {
		return backup.NormalizePassphrase(flag)
	}
	return backup.NormalizePassphrase(os.Getenv(EnvPassphrase))
}

func newExportCmd(a *app) *cobra.Command {
	var (
		out        string
		plain      bool
		passphrase string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export everything to a backup file",
		Long: "Export every entity, interaction, tag, type and photo to a single backup file.\n" +
			"Backups are encrypted with a six-word passphrase unless --plain is given. When no\n" +
			"passphrase is supplied one is generated and printed; keep it, it cannot be recovered.",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			pass := passphraseFrom(passphrase)
			if !plain && pass == "" {
				generated, err := backup.GeneratePassphrase()
				if err != nil {
					return err
				}
				pass = generated
				fmt.Fprintf(w, "passphrase: %s\n", pass)
			}
			if out == "" {
				ext := ".garden"
				if plain {
					ext = ".json"
				}
				out = "garden-backup-" + time.Now().Format("20060102-150405") + ext
			}

			return a.withDB(func(ctx context.Context, db *store.DB) error {
				exp := backup.NewExporter(db, a.log)
				var buf bytes.Buffer
				var err error
				if plain {
					err = exp.WritePlain(ctx, &buf)
				} else {
					err = exp.WriteEncrypted(ctx, &buf, pass)
				}
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, buf.Bytes(), 0o600); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(w, "wrote %s (%s)\n", out, humanize.Bytes(uint64(buf.Len())))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default garden-backup-<time>.garden)")
	cmd.Flags().BoolVar(&plain, "plain", false, "write unencrypted JSON")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "six-word passphrase (or "+EnvPassphrase+")")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var (
		passphrase  string
		recoverMode bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace all data with the contents of a backup file",
		Long: "Replace all data with a backup. Encrypted and plain backups are both accepted.\n" +
			"If anything fails the database is left as it was.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			doc, err := backup.ReadDocument(raw, backup.ReadOptions{
				Passphrase: passphraseFrom(passphrase),
				Recover:    recoverMode,
			})
			if err != nil {
				return err
			}
			dir, err := a.photoDir()
			if err != nil {
				return err
			}

			return a.withDB(func(ctx context.Context, db *store.DB) error {
				stats, err := backup.NewImporter(db, dir, a.log).Import(ctx, doc)
				if err != nil {
					return err
				}
				if _, err := a.engine(db).SyncBirthdayReminders(ctx); err != nil {
					a.log.Warn("sync birthday reminders after import", zap.Error(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s entities, %s interactions, %s photos, %s tags (%d skipped) from backup of %s\n",
					humanize.Comma(int64(stats.Entities)), humanize.Comma(int64(stats.Interactions)),
					humanize.Comma(int64(stats.Photos)), humanize.Comma(int64(stats.Tags)), stats.Skipped,
					humanize.Time(time.UnixMilli(doc.Timestamp)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "backup passphrase (or "+EnvPassphrase+")")
	cmd.Flags().BoolVar(&recoverMode, "recover", false, "skip the integrity check (last resort for damaged backups)")
	return cmd
}

func newPassphraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passphrase",
		Short: "Generate a random six-word backup passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := backup.GeneratePassphrase()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
