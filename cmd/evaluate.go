package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evgops/branchwatch/internal/evergreen"
	"github.com/evgops/branchwatch/internal/github"
	"github.com/evgops/branchwatch/internal/health"
	"github.com/evgops/branchwatch/internal/jira"
	"github.com/evgops/branchwatch/internal/logging"
)

const (
	defaultBranch       = "master"
	defaultSlackChannel = "#code-lockdown"
	defaultLookbackDays = 14
)

// evaluateCmd runs one branch-health evaluation: it queries Jira for open
// build-failure tickets and Evergreen for waterfall history, evaluates both
// against the lockdown thresholds, and logs (and optionally notifies) the
// resulting verdict.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate branch CI health from Jira BF counts and Evergreen redness",
	Long: `Evaluate branch CI health from Jira BF counts and Evergreen redness data.

The command fetches every open build-failure ticket attributed to the branch's
active Evergreen projects, classifies them by test type, temperature, and
assigned team, and compares the counts against fixed lockdown thresholds. It
also folds the last two weeks of Evergreen waterfall task outcomes into a
per-project median daily failure count.

The run produces one status message with a RED, YELLOW, or GREEN action line:

  RED    - at least one metric exceeds 100% of its threshold; lock the branch
  YELLOW - at least one metric exceeds 50%, none exceed 100%; no action
  GREEN  - all metrics are within 50% of their thresholds; unlock the branch

For Jira API authentication set JIRA_URL, JIRA_USERNAME, and JIRA_TOKEN.
For Evergreen API authentication set EVERGREEN_API_USER and EVERGREEN_API_KEY.
Set GITHUB_TOKEN to enable a pre-flight check that the branch exists.

Example:
  branchwatch evaluate -r 10gen/mongo --branch master --notify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := cmd.Flags().GetString("repository")
		if err != nil {
			return err
		}
		branch, err := cmd.Flags().GetString("branch")
		if err != nil {
			return err
		}
		notify, err := cmd.Flags().GetBool("notify")
		if err != nil {
			return err
		}
		channel, err := cmd.Flags().GetString("channel")
		if err != nil {
			return err
		}
		lookbackDays, err := cmd.Flags().GetInt("lookback-days")
		if err != nil {
			return err
		}

		if repository == "" {
			return fmt.Errorf("repository flag is required")
		}
		if lookbackDays <= 0 {
			return fmt.Errorf("lookback-days must be positive, got %d", lookbackDays)
		}

		logging.Info("starting branch health evaluation",
			"repository", repository,
			"branch", branch,
			"notify", notify,
			"lookback_days", lookbackDays)

		ctx := context.Background()

		// Pre-flight: catch a mistyped branch before spending two
		// collaborator round-trips on it. Runs only with a GitHub token.
		githubClient, err := github.NewClient()
		if err != nil {
			return fmt.Errorf("failed to initialize github client: %v", err)
		}
		if githubClient != nil {
			exists, err := githubClient.BranchExists(ctx, repository, branch)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("branch %q does not exist in repository %q", branch, repository)
			}
		}

		jiraClient, err := jira.NewClient()
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %v", err)
		}

		evergreenClient, err := evergreen.NewClient()
		if err != nil {
			return fmt.Errorf("failed to initialize evergreen client: %v", err)
		}

		orchestrator := health.NewOrchestrator(jiraClient, evergreenClient, lookbackDays)
		result, err := orchestrator.EvaluateBranchHealth(ctx, repository, branch, channel, notify)
		if err != nil {
			return err
		}

		logging.Info("branch health evaluation complete",
			"repository", repository,
			"branch", branch,
			"verdict", string(result.Verdict))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("branch", defaultBranch, "Branch name that Evergreen projects track")
	evaluateCmd.Flags().Bool("notify", false, "Send the status message to the Slack channel")
	evaluateCmd.Flags().String("channel", defaultSlackChannel, "Slack channel to notify")
	evaluateCmd.Flags().Int("lookback-days", defaultLookbackDays, "Days of Evergreen waterfall history to sample")
}
