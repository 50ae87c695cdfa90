package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdprop/waterbill/internal/api"
	"github.com/gdprop/waterbill/internal/auth"
	"github.com/gdprop/waterbill/internal/config"
	"github.com/gdprop/waterbill/internal/cron"
	"github.com/gdprop/waterbill/internal/ingest"
	"github.com/gdprop/waterbill/internal/migrate"
	"github.com/gdprop/waterbill/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:   "waterbill",
		Short: "Rental property water billing service",
	}
	root.AddCommand(serveCmd(), workerCmd(), ingestCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// openStorage opens the configured backend, running goose migrations first
// when auto-migration is enabled, and seeds the fixed roster, rate table and
// operator account.
func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.AutoMigrate && cfg.DBDriver != "memory" {
		if err := migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
			log.Printf("auto-migration failed: %v", err)
		}
	}

	st, err := storage.Open(ctx, storage.Config{
		Driver: cfg.DBDriver,
		DSN:    cfg.DBDSN,
		Seed:   cfg.SeedData,
	})
	if err != nil {
		return nil, err
	}

	if cfg.SeedData && cfg.OperatorPassword != "" {
		hash, err := auth.HashPassword(cfg.OperatorPassword)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("hash operator password: %w", err)
		}
		if err := storage.SeedOperator(ctx, st, storage.DefaultOperatorUsername, hash); err != nil {
			st.Close()
			return nil, fmt.Errorf("seed operator: %w", err)
		}
	}
	return st, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer st.Close()

			authSvc, err := auth.NewService(st, cfg.JWTSecret)
			if err != nil {
				return fmt.Errorf("init auth: %w", err)
			}

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           api.NewMux(cfg, st, authSvc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on :%s (driver=%s)", cfg.Port, cfg.DBDriver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Printf("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the usage ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer st.Close()

			err = cron.Run(ctx, cfg, st)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func ingestCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one usage ingestion batch and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if dir == "" {
				dir = cfg.SampleDataDir
			}
			ctx := cmd.Context()

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer st.Close()

			summary, err := ingest.NewOrchestrator(st).RunDir(ctx, dir)
			if err != nil {
				return err
			}
			log.Printf("batch %s: files=%d stored=%d purged=%d failures=%d",
				summary.BatchID, summary.FilesProcessed, summary.SamplesStored,
				summary.Purged, len(summary.Failures))
			if summary.Failed() {
				return fmt.Errorf("%d sources failed", len(summary.Failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of usage CSV exports (default: WATERBILL_SAMPLE_DATA_DIR)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.FromEnv()
				return migrate.Up(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.FromEnv()
				return migrate.Down(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.FromEnv()
				return migrate.Status(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		},
	)
	return cmd
}
