package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evgops/branchwatch/internal/logging"
	"github.com/evgops/branchwatch/pkg/models"
)

// Ticket-query scoping: which Jira projects, statuses, and priorities count
// as an active build failure.
var (
	jiraProjects = []string{"Build Failures"}
	bfStatuses   = []string{"Needs Triage", "Open", "In Progress", "Waiting for Bug Fix"}
	bfPriorities = []string{"Blocker - P1", "Critical - P2", "Major - P3", "Minor - P4"}
)

// evergreenProjectField is the Jira custom-field name that attributes a BF
// to its CI projects.
const evergreenProjectField = "Evergreen Project"

// TicketService fetches build-failure tickets matching a JQL query.
type TicketService interface {
	FetchBuildFailures(ctx context.Context, jql string) ([]models.BuildFailure, error)
}

// CIService is the CI-orchestration collaborator: project discovery,
// waterfall history, and the chat notification side-channel.
type CIService interface {
	WaterfallService
	GetProjectsInfo(ctx context.Context, repo, branch string) (*models.EvgProjectsInfo, error)
	SendSlackNotification(ctx context.Context, target, message string) error
}

// Orchestrator sequences the two external collaborators and the aggregation
// components into one branch-health evaluation per run. Each run is
// stateless; construct a fresh Orchestrator-driven evaluation from live
// queries every time.
type Orchestrator struct {
	tickets      TicketService
	ci           CIService
	lookbackDays int
}

// NewOrchestrator wires the two collaborators into an orchestrator with the
// given waterfall lookback.
func NewOrchestrator(tickets TicketService, ci CIService, lookbackDays int) *Orchestrator {
	return &Orchestrator{
		tickets:      tickets,
		ci:           ci,
		lookbackDays: lookbackDays,
	}
}

// Result is the outcome of one evaluation run.
type Result struct {
	Verdict Verdict
	Message string
}

// EvaluateBranchHealth computes the branch verdict for the given repository
// and branch, logs the full status message, and dispatches it to the given
// chat channel when notify is set. Any upstream failure aborts the run
// before a verdict is produced; a notification failure does not invalidate
// the already-computed result.
func (o *Orchestrator) EvaluateBranchHealth(ctx context.Context, repo, branch, channel string, notify bool) (*Result, error) {
	statusMessage := fmt.Sprintf("`[STATUS]` '%s' repo '%s' branch", repo, branch)

	logging.Info("getting evergreen projects data", "repo", repo, "branch", branch)
	projectsInfo, err := o.ci.GetProjectsInfo(ctx, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to get evergreen projects info: %w", err)
	}
	projectNames := projectsInfo.BranchToProjects[branch]
	if len(projectNames) == 0 {
		return nil, fmt.Errorf("no evergreen projects track branch %q of repo %q", branch, repo)
	}
	if len(projectsInfo.ActiveProjectNames()) == 0 {
		return nil, fmt.Errorf("no active evergreen projects for repo %q", repo)
	}
	logging.Info("got evergreen projects data", "project_count", len(projectNames))

	report, err := o.makeBFsReport(ctx, projectsInfo)
	if err != nil {
		return nil, err
	}
	bfCountStatus, percentages := EvaluateBFCounts(report)
	statusMessage += "\n" + bfCountStatus + "\n"

	// Look at versions that started before the beginning of yesterday so
	// in-flight runs have had time to complete.
	windowEnd := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	windowStart := windowEnd.AddDate(0, 0, -o.lookbackDays)

	waterfallReport, err := MakeWaterfallReport(ctx, o.ci, projectNames, windowEnd, o.lookbackDays)
	if err != nil {
		return nil, err
	}
	rednessStatus, err := waterfallReport.RednessStatus(windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	statusMessage += "\n" + rednessStatus + "\n"

	verdict := ClassifyPercentages(percentages)
	statusMessage += "\n" + actionLine(verdict) + "\n"

	for _, line := range strings.Split(statusMessage, "\n") {
		logging.Info(line)
	}

	if notify {
		logging.Info("notifying slack channel with results", "slack_channel", channel)
		if err := o.ci.SendSlackNotification(ctx, channel, strings.TrimSpace(statusMessage)); err != nil {
			// The verdict is already computed and logged; failing the
			// run here would discard a valid result.
			logging.Error("failed to send slack notification",
				"slack_channel", channel,
				"error", err)
		}
	}

	return &Result{Verdict: verdict, Message: statusMessage}, nil
}

// makeBFsReport queries the bug tracker for active BFs scoped to the active
// project set and folds them into a fresh report.
func (o *Orchestrator) makeBFsReport(ctx context.Context, projectsInfo *models.EvgProjectsInfo) (*BFsReport, error) {
	query := ActiveBFsQuery(projectsInfo.ActiveProjectNames())
	logging.Info("getting active BFs from jira", "query", query)

	bfs, err := o.tickets.FetchBuildFailures(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch build failures: %w", err)
	}
	logging.Info("got active BFs", "count", len(bfs))

	report := NewBFsReport()
	for _, bf := range bfs {
		report.Add(bf, projectsInfo)
	}
	return report, nil
}

// ActiveBFsQuery renders the JQL query selecting open build-failure tickets
// attributed to any of the given CI projects.
func ActiveBFsQuery(activeProjects []string) string {
	return fmt.Sprintf("project in (%s) AND status in (%s) AND priority in (%s) AND %q in (%s)",
		iterableToJQL(jiraProjects),
		iterableToJQL(bfStatuses),
		iterableToJQL(bfPriorities),
		evergreenProjectField,
		iterableToJQL(activeProjects))
}

// iterableToJQL renders a set of values as a quoted, comma-separated JQL
// list. Entries are sorted so queries are stable across runs.
func iterableToJQL(entries []string) string {
	sorted := make([]string, len(entries))
	copy(sorted, entries)
	sort.Strings(sorted)
	quoted := make([]string, 0, len(sorted))
	for _, entry := range sorted {
		quoted = append(quoted, fmt.Sprintf("%q", entry))
	}
	return strings.Join(quoted, ", ")
}

// actionLine renders the verdict into the stable `[ACTION]` message line.
func actionLine(verdict Verdict) string {
	switch verdict {
	case VerdictRed:
		return "`[ACTION]` RED: At least one metric exceeds 100% of its threshold. Lock the branch if it is not already."
	case VerdictGreen:
		return "`[ACTION]` GREEN: All metrics are within 50% of their thresholds. The branch should be unlocked if it is not already."
	default:
		return "`[ACTION]` YELLOW: At least one metric exceeds 50% of its threshold, but none exceed 100%. No action is required."
	}
}
