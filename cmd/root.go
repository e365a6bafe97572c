// Package cmd implements the docprompt command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "docprompt",
	Short: "docprompt indexes documentation and answers questions about it",
	Long: `docprompt is a documentation question-answering service.

It splits documentation files into sections, embeds them into a vector
index, and answers prompts with completions grounded in the most
relevant sections.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
}
