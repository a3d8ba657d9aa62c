// voicegate - voice input bridge for terminal coding agents
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voicegate",
	Short: "Voice input bridge for terminal coding agents",
	Long: `voicegate runs a local HTTP service that queues spoken input for a
coding agent and enforces, through checkpoint hooks, that the agent answers
before it acts or stops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
