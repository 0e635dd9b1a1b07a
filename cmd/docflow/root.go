package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "docflow",
	Short:        "Durable multi-party document approval",
	Long:         "docflow collects interview, background check and contract feedback for a document, notifies the approver and records the final approval.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}
