package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "awsapigw",
	Short: "API Gateway key provisioning for billing platform services",
	Long: `awsapigw provisions one AWS API Gateway key per billing service.

It answers the billing platform's module callbacks (create, suspend,
unsuspend, terminate, reset) and keeps a local record of every key.

Quick start:
  awsapigw serve      # Start the callback server

Operations:
  awsapigw create 42      # Provision a key for service 42
  awsapigw describe 42    # Show the key of service 42
  awsapigw list           # List provisioned services
  awsapigw validate       # Validate configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "awsapigw.yaml", "config file path")
}
