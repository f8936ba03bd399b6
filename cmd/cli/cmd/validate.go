package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"labelplane/pkg/api"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a proposed slot layout",
	Long: `Validate a proposed layout against the order's items and the dieline
geometry. The layout file is the proposer's JSON output: a list of runs,
each assigning items to slots with quantities.

With --accept, a layout with no violations is persisted as planned
production runs and their IDs are printed. A layout with violations is
only reported; nothing is auto-repaired.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the LABELPLANE_TOKEN environment variable")
			return
		}

		orderID, _ := cmd.Flags().GetString("order")
		dielineID, _ := cmd.Flags().GetString("dieline")
		file, _ := cmd.Flags().GetString("file")
		accept, _ := cmd.Flags().GetBool("accept")

		data, err := os.ReadFile(file)
		if err != nil {
			cmd.Printf("Failed to read layout file: %v\n", err)
			osExit(1)
		}

		var runs struct {
			Runs []api.ProposedRun `json:"runs"`
		}
		if err := json.Unmarshal(data, &runs); err != nil {
			cmd.Printf("Failed to parse layout file: %v\n", err)
			osExit(1)
		}

		client := NewLabelClient(viper.GetString("url"), token)
		resp, err := client.ValidateLayout(api.ValidateLayoutRequest{
			OrderID:   orderID,
			DielineID: dielineID,
			Runs:      runs.Runs,
		}, accept)
		if err != nil {
			cmd.Printf("Validation request failed: %v\n", err)
			osExit(1)
		}

		if !resp.Valid {
			cmd.Printf("Layout is NOT producible. %d violation(s):\n", len(resp.Violations))
			for _, v := range resp.Violations {
				cmd.Printf("  - %s\n", v)
			}
			osExit(1)
		}

		cmd.Println("Layout is producible.")
		for _, id := range resp.RunIDs {
			cmd.Printf("Created run %s\n", id)
		}
	},
}

func init() {
	validateCmd.Flags().String("order", "", "Order UUID (required)")
	validateCmd.Flags().String("dieline", "", "Dieline UUID (required)")
	validateCmd.Flags().StringP("file", "f", "", "Path to the layout proposal JSON (required)")
	validateCmd.Flags().Bool("accept", false, "Persist the layout as planned runs when valid")
	validateCmd.MarkFlagRequired("order")
	validateCmd.MarkFlagRequired("dieline")
	validateCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(validateCmd)
}
