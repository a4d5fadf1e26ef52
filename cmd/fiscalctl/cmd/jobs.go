package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent synchronization runs",
	Long:  `List the most recent synchronization runs for your tenant, newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"), viper.GetString("token"))

		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := client.ListJobs(limit)
		if err != nil {
			cmd.Printf("Error fetching jobs: %s\n", err)
			os.Exit(1)
		}

		if len(resp.Jobs) == 0 {
			cmd.Println("No synchronization runs found.")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tFAMILY\tMODE\tSTATUS\tNEW\tEXISTING\tCURSOR\tSTARTED")
		for _, j := range resp.Jobs {
			started := "-"
			if j.StartedAt != nil {
				started = relativeTime(*j.StartedAt) + " ago"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				j.ID,
				j.ClientID,
				j.Family,
				j.Mode,
				j.Status,
				j.NewCount,
				j.ExistingCount,
				j.LastSeenNSU,
				started,
			)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().IntP("limit", "l", 20, "Maximum number of runs to list")
}
