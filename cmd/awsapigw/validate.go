package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/awsapigw/adapters/redis"
	"github.com/artpar/awsapigw/bootstrap"
	"github.com/artpar/awsapigw/config"
	"github.com/artpar/awsapigw/domain/provision"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the awsapigw configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Database is reachable and migrated (optional)
  - Redis cache is reachable (optional)

Examples:
  awsapigw validate
  awsapigw validate --config /etc/awsapigw/config.yaml --check-database`,
	RunE: runValidate,
}

var (
	validateCheckDatabase bool
	validateCheckCache    bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check the database is reachable")
	validateCmd.Flags().BoolVar(&validateCheckCache, "check-cache", false, "check the redis cache is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config syntax valid\n", checkMark)

	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Key service: %s (region %s)\n", checkMark, cfg.KeyService.Mode, cfg.KeyService.Region)
	fmt.Fprintf(out, "  %s Usage plans: %d\n", checkMark, len(provision.ParseUsagePlans(cfg.Provisioning.UsagePlans)))
	if cfg.API.TokenHash == "" {
		fmt.Fprintf(out, "  %s Callback auth disabled\n", crossMark)
	}

	if validateCheckDatabase {
		reportCheck(out, "Database reachable", checkDatabase(cmd.Context(), cfg))
	}
	if validateCheckCache {
		if !cfg.Cache.Enabled {
			fmt.Fprintf(out, "  %s Cache disabled, skipped\n", checkMark)
		} else {
			reportCheck(out, "Cache reachable", checkCache(cmd.Context(), cfg))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func reportCheck(out io.Writer, name string, err error) {
	if err != nil {
		fmt.Fprintf(out, "  %s %s\n", crossMark, name)
		fmt.Fprintf(out, "      Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "  %s %s\n", checkMark, name)
}

func checkDatabase(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, closeStore, err := bootstrap.OpenRecordStore(ctx, cfg.Database, zerolog.Nop())
	if err != nil {
		return err
	}
	defer closeStore()
	return store.Ping(ctx)
}

func checkCache(ctx context.Context, cfg *config.Config) error {
	client, err := redis.Connect(ctx, redis.Options{
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		DB:       cfg.Cache.DBIndex,
		Password: cfg.Cache.Auth,
		Timeout:  cfg.Cache.Timeout,
	})
	if err != nil {
		return err
	}
	return client.Close()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
