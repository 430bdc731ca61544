package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return a.runServe()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func (a *app) runServe() error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng := a.engine(db)
	eng.StartDecayTimer(a.cfg.Scoring.SweepInterval)
	defer eng.Stop()

	if _, err := eng.SyncBirthdayReminders(context.Background()); err != nil {
		a.log.Warn("sync birthday reminders", zap.Error(err))
	}

	srv := server.New(db, eng, VersionString(), a.log)
	addr := a.cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("garden serving", zap.String("addr", addr), zap.String("db", db.Path))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	a.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
