// Package cmd wires the CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orgpedia",
	Short: "Orgpedia - retrieval-augmented chat backend",
	Long: `Orgpedia is a retrieval-augmented chat backend. It indexes uploaded
documents as embeddings in PostgreSQL, retrieves the most similar
documents for each question and streams grounded answers from a chat
model back to the client.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
