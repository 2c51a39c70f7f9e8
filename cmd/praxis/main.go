// Package main provides the praxis CLI: run and resume agent turns,
// inspect stored conversations and run logs, and manage agent configs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
)

func main() {
	root := &cobra.Command{
		Use:           "praxis",
		Short:         "Provider-abstracted LLM agent runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")

	root.AddCommand(
		buildRunCmd(),
		buildResumeCmd(),
		buildAgentsCmd(),
		buildHistoryCmd(),
		buildRunLogCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
