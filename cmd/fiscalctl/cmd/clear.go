package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete finished synchronization runs",
	Long: `Delete completed, failed and cancelled runs from the job log. Active
runs and downloaded documents are untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"), viper.GetString("token"))

		resp, err := client.ClearTerminalJobs()
		if err != nil {
			cmd.Printf("Error clearing runs: %s\n", err)
			os.Exit(1)
		}
		cmd.Printf("%s✓%s Cleared %d finished run(s).\n", colorGreen, colorReset, resp.Count)
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
