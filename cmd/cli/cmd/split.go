package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"labelplane/pkg/api"
)

var splitCmd = &cobra.Command{
	Use:   "split [run_id]",
	Short: "Show or choose a run's roll split plan",
	Long: `Without --choose, list the distinct split plans for the run's achieved
quantity. With --choose fill_first or even, the plan is computed by the
controller; with --choose custom, the counts given via --counts are
stored as-is.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the LABELPLANE_TOKEN environment variable")
			return
		}

		runID := args[0]
		choose, _ := cmd.Flags().GetString("choose")
		counts, _ := cmd.Flags().GetIntSlice("counts")

		client := NewLabelClient(viper.GetString("url"), token)

		if choose == "" {
			opts, err := client.GetSplitOptions(runID)
			if err != nil {
				cmd.Printf("Failed to fetch split options: %s\n", err)
				osExit(1)
			}

			cmd.Printf("Achieved %d labels per slot, roll capacity %d\n", opts.Achieved, opts.Capacity)
			if len(opts.Plans) == 0 {
				cmd.Println("Run fits a single roll; no split needed.")
				return
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"STRATEGY", "ROLLS", "COUNTS"})
			for _, p := range opts.Plans {
				t.AppendRow(table.Row{p.Strategy, len(p.Counts), p.Counts})
			}
			t.SetStyle(table.StyleLight)
			t.Render()
			return
		}

		plan, err := client.ChooseSplit(runID, api.ChooseSplitRequest{
			Strategy: choose,
			Counts:   counts,
		})
		if err != nil {
			cmd.Printf("Failed to choose split: %s\n", err)
			osExit(1)
		}
		cmd.Printf("Split plan stored: %s %v\n", plan.Strategy, plan.Counts)
	},
}

func init() {
	splitCmd.Flags().String("choose", "", "Split strategy to store (fill_first, even, custom)")
	splitCmd.Flags().IntSlice("counts", nil, "Roll counts for --choose custom")

	rootCmd.AddCommand(splitCmd)
}
