package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "orgcopilot",
	Short: "Conversational front-end for the campus agent network",
	Long: `orgcopilot routes free-text requests through a network of remote AI
agents and manages broadcast drafts through a human approval workflow.

Run "orgcopilot start" to launch the server, then talk to it with
"orgcopilot ask" and the "orgcopilot broadcast" subcommands.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the orgcopilot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orgcopilot version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
