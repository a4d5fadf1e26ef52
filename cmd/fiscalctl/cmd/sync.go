package cmd

import (
	"time"

	"fiscalsync/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	syncFamily string
	syncMode   string
	syncFrom   string
	syncTo     string
)

var syncCmd = &cobra.Command{
	Use:   "sync [client_id]",
	Short: "Start a synchronization run for a client",
	Long: `Start a synchronization run for a client company.

Incremental mode (the default) downloads whatever appeared at the remote
source since the last run. Period mode re-fetches a fixed date range:

  fiscalctl sync <client-id> --family invoices
  fiscalctl sync <client-id> --family waybills --mode period --from 2026-01-01 --to 2026-01-31`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		clientID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FISCALSYNC_TOKEN environment variable")
			return
		}

		req := api.StartSyncRequest{
			Family: syncFamily,
			Mode:   syncMode,
		}

		if syncMode == "period" {
			start, err := time.Parse("2006-01-02", syncFrom)
			if err != nil {
				cmd.Printf("Invalid --from date: %v\n", err)
				return
			}
			end, err := time.Parse("2006-01-02", syncTo)
			if err != nil {
				cmd.Printf("Invalid --to date: %v\n", err)
				return
			}
			req.PeriodStart = &start
			req.PeriodEnd = &end
		}

		client := NewSyncClient(url, token)
		resp, err := client.StartSync(clientID, req)
		if err != nil {
			cmd.Printf("Failed to start sync: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Sync started\n", colorGreen, colorReset)
		cmd.Printf("%sJob ID:%s %s\n", colorDim, colorReset, resp.JobID)
		cmd.Printf("\nTrack it with: fiscalctl status %s\n", resp.JobID)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncFamily, "family", "invoices", "Document family: invoices or waybills")
	syncCmd.Flags().StringVar(&syncMode, "mode", "incremental", "Sync mode: incremental or period")
	syncCmd.Flags().StringVar(&syncFrom, "from", "", "Period start date (YYYY-MM-DD), period mode only")
	syncCmd.Flags().StringVar(&syncTo, "to", "", "Period end date (YYYY-MM-DD), period mode only")

	rootCmd.AddCommand(syncCmd)
}
