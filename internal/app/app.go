// Package app wires configuration, logging, and the sync components
// behind the CLI.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/genos-program/airtable-supabase-sync/internal/airtable"
	"github.com/genos-program/airtable-supabase-sync/internal/config"
	"github.com/genos-program/airtable-supabase-sync/internal/mapping"
	"github.com/genos-program/airtable-supabase-sync/internal/supabase"
	"github.com/genos-program/airtable-supabase-sync/internal/syncer"
	"github.com/genos-program/airtable-supabase-sync/internal/transform"
)

var rootCmd = &cobra.Command{
	Use:          "airtable-supabase-sync",
	Short:        "One-way sync of an Airtable table into Supabase",
	Long:         "Copies all Airtable records into the destination table, auto-matches Airtable emails to auth accounts, and tracks a last-sync watermark for incremental runs.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger.With(zap.String("run_id", uuid.NewString())), nil
}

func runSync(ctx context.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", zap.Error(err))
		return err
	}

	store, err := supabase.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("could not connect to supabase", zap.Error(err))
		return err
	}
	defer store.Close()

	s := syncer.New(
		airtable.NewClient(cfg, logger),
		store,
		mapping.NewReconciler(store, cfg.MappingBatchSize, cfg.MappingBatchPause, logger),
		transform.NewMapper(cfg.FieldMapping),
		cfg.SupabaseTableName,
		cfg.SyncBatchSize,
		logger,
	)
	if err := s.Run(ctx); err != nil {
		logger.Error("sync failed", zap.Error(err))
		return err
	}
	return nil
}
