package cmd

import (
	"fmt"
	"time"

	"fiscalsync/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a synchronization run",
	Long:  `Retrieve detailed status for a synchronization run, including its state, progress counters, cursor position and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FISCALSYNC_TOKEN environment variable")
			return
		}

		client := NewSyncClient(url, token)
		job, err := client.GetJob(jobID)
		if err != nil {
			cmd.Printf("Failed to get job: %v\n", err)
			return
		}

		printStatus(cmd, job)
	},
}

func printStatus(cmd *cobra.Command, job *api.JobResponse) {
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sSync Run Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sClient:%s      %s\n", colorDim, colorReset, job.ClientID)
	cmd.Printf("%sFamily:%s      %s\n", colorDim, colorReset, job.Family)
	cmd.Printf("%sMode:%s        %s\n", colorDim, colorReset, job.Mode)
	if job.PeriodStart != nil && job.PeriodEnd != nil {
		cmd.Printf("%sPeriod:%s      %s .. %s\n", colorDim, colorReset,
			job.PeriodStart.Format("2006-01-02"), job.PeriodEnd.Format("2006-01-02"))
	}
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sStage:%s       %s\n", colorDim, colorReset, job.Stage)
	cmd.Printf("%sAttempt:%s     %d\n", colorDim, colorReset, job.Attempt)

	if job.ExpectedTotal > 0 {
		cmd.Printf("%sProgress:%s    %d/%d\n", colorDim, colorReset, job.ProgressCount, job.ExpectedTotal)
	}
	cmd.Printf("%sCursor:%s      NSU %d\n", colorDim, colorReset, job.LastSeenNSU)
	cmd.Printf("%sDocuments:%s   %s%d new%s, %d existing\n", colorDim, colorReset,
		colorGreen, job.NewCount, colorReset, job.ExistingCount)
	if job.ParseFailCount > 0 {
		cmd.Printf("%sSkipped:%s     %s%d unparseable%s\n", colorDim, colorReset, colorYellow, job.ParseFailCount, colorReset)
	}
	if job.ArtifactOKCount > 0 || job.ArtifactFailCount > 0 {
		cmd.Printf("%sArtifacts:%s   %d rendered, %d failed\n", colorDim, colorReset, job.ArtifactOKCount, job.ArtifactFailCount)
	}

	if job.LastError != nil {
		cmd.Printf("%sLast Error:%s  %s%s%s\n", colorDim, colorReset, colorRed, *job.LastError, colorReset)
	}
	if job.CertificateExpired {
		cmd.Printf("%s⚠ The client's digital certificate has expired.%s\n", colorRed, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartedAt))
	if job.StartedAt != nil && job.FinishedAt != nil {
		duration := job.FinishedAt.Sub(*job.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.FinishedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(job.FinishedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "running", "resuming":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "completed":
		return icon + " " + colorGreen + status + colorReset
	case "failed":
		return icon + " " + colorRed + status + colorReset
	case "running", "resuming":
		return icon + " " + colorYellow + status + colorReset
	case "pending":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	return formatDuration(time.Since(t))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
