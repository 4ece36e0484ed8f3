package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/awsapigw/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the callback server",
	Long: `Start the awsapigw callback server.

The server will:
  - Load configuration from awsapigw.yaml (or --config)
  - Or load configuration from AWSAPIGW_* environment variables
  - Open the record store and apply migrations
  - Serve module callbacks under /v1/services

The config file is watched and reloaded on change or SIGHUP.

Environment variables (for container deployments):
  AWSAPIGW_DATABASE_DSN           - Record store DSN (default: awsapigw.db)
  AWSAPIGW_SERVER_PORT            - Server port (default: 8080)
  AWSAPIGW_AWS_ACCESS_KEY_ID      - Default AWS access key ID
  AWSAPIGW_AWS_SECRET_ACCESS_KEY  - Default AWS secret access key
  AWSAPIGW_AWS_REGION             - Default AWS region
  AWSAPIGW_USAGE_PLANS            - Default usage plan IDs
  AWSAPIGW_LOG_LEVEL              - Log level: debug, info, warn, error

Examples:
  awsapigw serve
  awsapigw serve --config /etc/awsapigw/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s not found, using environment variables\n", cfgFile)
	}

	app, err := bootstrap.New(context.Background(), bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
