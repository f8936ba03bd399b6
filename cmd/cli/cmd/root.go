package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// osExit is swapped out in tests that assert exit codes.
var osExit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "labelctl",
	Short: "Labelctl is a command line tool for the labelplane production controller",
	Long: `labelctl is the command-line interface for labelplane, the label
production run planner and imposition dispatcher.

Labelplane turns ordered label quantities into press-ready production
runs: it validates proposed slot layouts against dieline geometry,
computes frame counts and meters to print, and dispatches runs to the
imposition renderer one at a time.

Common workflows:

  Validate a proposed layout (and accept it as planned runs):
    labelctl validate --order <order-id> --dieline <dieline-id> --file layout.json --accept

  Inspect an order's runs:
    labelctl runs <order-id>

  Dispatch an order to the renderer and watch progress:
    labelctl impose <order-id> --watch

  Pin a run's quantity (0 clears the override):
    labelctl override <run-id> --quantity 12000

  Review and choose a roll split plan:
    labelctl split <run-id>
    labelctl split <run-id> --choose even

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    LABELPLANE_URL      API endpoint (default: http://localhost:7171)
    LABELPLANE_TOKEN    Operator API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".labelctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".labelctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "LABELPLANE_VARNAME"
	viper.SetEnvPrefix("LABELPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.labelctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:7171", "Labelplane Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
