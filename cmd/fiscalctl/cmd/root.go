package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fiscalctl",
	Short: "Fiscalctl is a command line tool for the fiscalsync platform",
	Long: `fiscalctl is the command-line interface for the fiscalsync document
synchronization platform.

fiscalsync incrementally downloads fiscal documents (service invoices and
freight waybills) from the government distribution service on behalf of
client companies, each authenticated with its own digital certificate, and
persists them for reporting.

Common workflows:

  Start an incremental sync for a client:
    fiscalctl sync <client-id> --family invoices

  Sync a fixed date range:
    fiscalctl sync <client-id> --family waybills --mode period --from 2026-01-01 --to 2026-01-31

  Watch a run:
    fiscalctl status <job-id>

  List recent runs:
    fiscalctl jobs

  Cancel a run:
    fiscalctl cancel <job-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    FISCALSYNC_URL      API endpoint (default: http://localhost:8460)
    FISCALSYNC_TOKEN    Tenant API token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".fiscalctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".fiscalctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "FISCALSYNC_VARNAME"
	viper.SetEnvPrefix("FISCALSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fiscalctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8460", "Fiscalsync API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
