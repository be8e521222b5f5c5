package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "inspector",
	Short: "Inspect the resolved extgate service configuration",
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (default ./config.yaml or ./configs/config.yaml)")
	rootCmd.AddCommand(policiesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
