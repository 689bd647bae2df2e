package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/genos-program/airtable-supabase-sync/internal/config"
	"github.com/genos-program/airtable-supabase-sync/internal/supabase"
)

var migrateApply bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Print (or apply) the SQL that creates the sync tables",
	Long:  "Prints the DDL for user_mappings and sync_metadata for manual execution in the Supabase SQL editor. With --apply it runs the DDL over the direct database connection instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !migrateApply {
			fmt.Println("=== SQL FOR MANUAL EXECUTION ===")
			fmt.Print(supabase.SetupSQL)
			fmt.Println("================================")
			fmt.Println("Paste the SQL above into the Supabase SQL Editor and run it,")
			fmt.Println("or re-run this command with --apply.")
			return nil
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		url, err := config.DatabaseURL()
		if err != nil {
			logger.Error("configuration error", zap.Error(err))
			return err
		}

		ctx := cmd.Context()
		store, err := supabase.New(ctx, &config.Config{
			SupabaseDBURL:  url,
			AuthUsersTable: "auth.users",
			HTTPTimeout:    30 * time.Second,
		}, logger)
		if err != nil {
			logger.Error("could not connect to supabase", zap.Error(err))
			return err
		}
		defer store.Close()

		if err := store.Apply(ctx, supabase.SetupSQL); err != nil {
			logger.Error("migration failed", zap.Error(err))
			return err
		}
		logger.Info("sync tables created")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateApply, "apply", false, "execute the DDL instead of printing it")
	rootCmd.AddCommand(migrateCmd)
}
