package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a running synchronization",
	Long: `Request cancellation of an active synchronization run. The run stops at
the next batch boundary; progress made so far is kept.

With --all, cancels every active run for the tenant instead.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"), viper.GetString("token"))

		all, _ := cmd.Flags().GetBool("all")
		if all {
			resp, err := client.CancelAll()
			if err != nil {
				cmd.Printf("Error cancelling runs: %s\n", err)
				os.Exit(1)
			}
			cmd.Printf("%s✓%s Cancelled %d active run(s).\n", colorGreen, colorReset, resp.Count)
			return
		}

		if len(args) != 1 {
			cmd.Println("Provide a job ID, or pass --all to cancel every active run.")
			os.Exit(1)
		}

		jobID := args[0]
		if err := client.CancelJob(jobID); err != nil {
			cmd.Printf("Error cancelling run: %s\n", err)
			os.Exit(1)
		}
		cmd.Printf("%s✓%s Run %s cancelled.\n", colorGreen, colorReset, jobID)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [job_id]",
	Short: "Resume a stalled or failed synchronization",
	Long: `Re-dispatch a synchronization run that stalled or failed. The run picks
up from its saved cursor; documents fetched before the interruption are
not downloaded again.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"), viper.GetString("token"))

		jobID := args[0]
		if err := client.ResumeJob(jobID); err != nil {
			cmd.Printf("Error resuming run: %s\n", err)
			os.Exit(1)
		}
		cmd.Printf("%s✓%s Run %s resuming.\n", colorGreen, colorReset, jobID)
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(resumeCmd)

	cancelCmd.Flags().Bool("all", false, "Cancel every active run for the tenant")
}
