// Package cmd provides the command-line interface for the branchwatch tool.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "branchwatch",
	Short: "Branchwatch evaluates the CI health of a repository branch",
	Long: `Branchwatch combines open build-failure tickets from Jira with historical
Evergreen waterfall task outcomes into a single RED/YELLOW/GREEN verdict used
to decide whether to lock a source branch.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add persistent flags that will be available to all commands
	rootCmd.PersistentFlags().StringP("repository", "r", "", "GitHub repository name that Evergreen projects track (e.g., 'owner/repo')")
}
