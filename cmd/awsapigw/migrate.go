package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/awsapigw/bootstrap"
	"github.com/artpar/awsapigw/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply record store migrations",
	Long: `Create or upgrade the record store schema and exit.

serve applies migrations on startup too. Run this ahead of a deploy
when the database user of the server cannot alter tables.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
	_, closeStore, err := bootstrap.OpenRecordStore(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", cfg.Database.Driver)
	return nil
}
