package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runsCmd = &cobra.Command{
	Use:   "runs [order_id]",
	Short: "List an order's production runs",
	Long:  `List every production run of an order with its status, frame count, meters to print, and any quantity override or roll split plan.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the LABELPLANE_TOKEN environment variable")
			return
		}

		client := NewLabelClient(viper.GetString("url"), token)
		runs, err := client.ListRuns(args[0])
		if err != nil {
			cmd.Printf("Error fetching runs: %s\n", err)
			osExit(1)
		}

		if len(runs) == 0 {
			cmd.Println("No runs found for this order.")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"#", "RUN ID", "STATUS", "FRAMES", "METERS", "OVERRIDE", "SPLIT", "ERROR"})
		for _, r := range runs {
			override := "-"
			if r.QuantityOverride > 0 {
				override = fmt.Sprintf("%d", r.QuantityOverride)
			}
			split := "-"
			if r.SplitStrategy != "" {
				split = fmt.Sprintf("%s %v", r.SplitStrategy, r.SplitCounts)
			}
			errMsg := ""
			if r.ErrorMessage != nil {
				errMsg = *r.ErrorMessage
				if len(errMsg) > 40 {
					errMsg = errMsg[:37] + "..."
				}
			}
			t.AppendRow(table.Row{
				r.RunNumber,
				r.ID,
				strings.ToUpper(r.Status),
				r.FramesCount,
				fmt.Sprintf("%.2f", r.MetersToPrint),
				override,
				split,
				errMsg,
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
