package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var overrideCmd = &cobra.Command{
	Use:   "override [run_id]",
	Short: "Pin or clear a run's per-slot quantity",
	Long: `Set a quantity override on a run. The override supersedes the
demand-derived quantity for every slot; frames, meters, and the roll
split plan are recomputed. A quantity of 0 clears the override.

Overrides that print far past demand are allowed but reported as
warnings.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the LABELPLANE_TOKEN environment variable")
			return
		}

		quantity, _ := cmd.Flags().GetInt("quantity")

		client := NewLabelClient(viper.GetString("url"), token)
		resp, err := client.SetOverride(args[0], quantity)
		if err != nil {
			cmd.Printf("Failed to set override: %s\n", err)
			osExit(1)
		}

		if quantity == 0 {
			cmd.Println("Override cleared.")
		} else {
			cmd.Printf("Override set to %d per slot.\n", quantity)
		}
		cmd.Printf("Run %d: %d frames, %.2f meters\n",
			resp.Run.RunNumber, resp.Run.FramesCount, resp.Run.MetersToPrint)
		for _, w := range resp.Warnings {
			cmd.Printf("Warning: %s\n", w)
		}
	},
}

func init() {
	overrideCmd.Flags().IntP("quantity", "q", 0, "Per-slot quantity (0 clears the override)")
	overrideCmd.MarkFlagRequired("quantity")

	rootCmd.AddCommand(overrideCmd)
}
