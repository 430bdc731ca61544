package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/config"
	"github.com/lazypower/garden/internal/logging"
	"github.com/lazypower/garden/internal/store"
)

// app carries the global flags and what PersistentPreRunE builds from them.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg config.Config
	log *zap.Logger
}

// Execute runs the garden command line.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}
	root := &cobra.Command{
		Use:           "garden",
		Short:         "Keep track of the people, groups and topics in your life",
		Long:          "Garden records interactions with people, groups and topics and scores how recently and how well you have kept in touch. Single Go binary, local SQLite file.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.garden/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides config and "+config.EnvDB+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newVersionCmd(),
		newServeCmd(a),
		newMigrateCmd(a),
		newEntityCmd(a),
		newMergeCmd(a),
		newMemberCmd(a),
		newInteractCmd(a),
		newHistoryCmd(a),
		newTagCmd(a),
		newTypesCmd(a),
		newConfigCmd(a),
		newSettingsCmd(a),
		newScoresCmd(a),
		newReminderCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newPassphraseCmd(),
	)
	return root
}

func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".garden", "config.yaml")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) resolveDBPath() (string, error) {
	if a.cfg.Database.Path != "" {
		return a.cfg.Database.Path, nil
	}
	return store.DefaultDBPath()
}

// openDB opens (and migrates) the configured database.
func (a *app) openDB() (*store.DB, error) {
	path, err := a.resolveDBPath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path, store.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// withDB opens the database for the duration of fn.
func (a *app) withDB(fn func(ctx context.Context, db *store.DB) error) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

// photoDir is where imported photos are written.
func (a *app) photoDir() (string, error) {
	if a.cfg.Database.PhotoDir != "" {
		return a.cfg.Database.PhotoDir, nil
	}
	path, err := a.resolveDBPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), "photos"), nil
}
