package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// watchInterval is how often --watch polls batch progress. Shortened in
// tests.
var watchInterval = 2 * time.Second

var imposeCmd = &cobra.Command{
	Use:   "impose [order_id]",
	Short: "Dispatch an order's planned runs to the renderer",
	Long: `Start an imposition batch for the order. The controller dispatches the
planned runs to the renderer sequentially and the command returns as
soon as the batch is accepted.

With --watch the command polls batch progress until it finishes and
exits non-zero if any run failed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the LABELPLANE_TOKEN environment variable")
			return
		}

		orderID := args[0]
		reprocess, _ := cmd.Flags().GetBool("reprocess")
		watch, _ := cmd.Flags().GetBool("watch")

		client := NewLabelClient(viper.GetString("url"), token)
		resp, err := client.StartImpose(orderID, reprocess)
		if err != nil {
			cmd.Printf("Failed to start imposition: %s\n", err)
			osExit(1)
		}
		cmd.Printf("Imposition started: %d run(s)\n", resp.Total)

		if !watch {
			cmd.Printf("Track progress with: labelctl progress %s\n", orderID)
			return
		}

		for {
			time.Sleep(watchInterval)

			p, err := client.GetProgress(orderID)
			if err != nil {
				cmd.Printf("Failed to fetch progress: %s\n", err)
				osExit(1)
			}

			cmd.Printf("[%s] run %d/%d  ok=%d failed=%d skipped=%d\n",
				p.Status, p.CurrentIndex+1, p.Total, p.Succeeded, p.Failed, p.Skipped)

			if p.Status == "complete" || p.Status == "error" {
				for _, e := range p.Errors {
					cmd.Printf("  run %d: %s\n", e.RunNumber, e.Message)
				}
				if p.Status == "error" || p.Failed > 0 {
					osExit(1)
				}
				return
			}
		}
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress [order_id]",
	Short: "Show imposition batch progress for an order",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the LABELPLANE_TOKEN environment variable")
			return
		}

		client := NewLabelClient(viper.GetString("url"), token)
		p, err := client.GetProgress(args[0])
		if err != nil {
			cmd.Printf("Failed to fetch progress: %s\n", err)
			osExit(1)
		}

		cmd.Printf("Status:    %s\n", p.Status)
		cmd.Printf("Progress:  %d/%d (current run %d)\n", p.CurrentIndex+1, p.Total, p.CurrentRun)
		cmd.Printf("Succeeded: %d  Failed: %d  Skipped: %d\n", p.Succeeded, p.Failed, p.Skipped)
		for _, e := range p.Errors {
			cmd.Printf("  run %d: %s\n", e.RunNumber, e.Message)
		}
		for _, id := range p.Awaiting {
			cmd.Printf("  awaiting completion: %s\n", id)
		}
	},
}

func init() {
	imposeCmd.Flags().Bool("reprocess", false, "Reset and re-impose runs that already succeeded")
	imposeCmd.Flags().Bool("watch", false, "Poll progress until the batch finishes")

	rootCmd.AddCommand(imposeCmd)
	rootCmd.AddCommand(progressCmd)
}
