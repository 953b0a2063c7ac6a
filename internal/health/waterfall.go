package health

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evgops/branchwatch/internal/logging"
	"github.com/evgops/branchwatch/pkg/models"
)

// maxConcurrentWaterfallQueries bounds how many per-day Evergreen queries
// run in flight at once.
const maxConcurrentWaterfallQueries = 4

// WaterfallService is the slice of the Evergreen client the aggregator needs.
type WaterfallService interface {
	// GetWaterfallStatus returns per-build task-status counts for the
	// given projects within the half-open window [start, end).
	GetWaterfallStatus(ctx context.Context, projects []string, start, end time.Time) ([]models.TaskStatusCounts, error)
}

// WaterfallReport holds, per project, the ordered sequence of daily tallies
// collected over the lookback window.
type WaterfallReport map[string][]models.TaskStatusCounts

// MakeWaterfallReport partitions the lookback window into consecutive 1-day
// sub-windows ending at windowEnd, queries the CI collaborator for each day,
// and folds the per-build counts into one daily tally per project. The daily
// queries run concurrently; the fold is associative and commutative per
// project, so ordering does not affect the result.
func MakeWaterfallReport(ctx context.Context, service WaterfallService, projects []string, windowEnd time.Time, lookbackDays int) (WaterfallReport, error) {
	if lookbackDays <= 0 {
		return nil, fmt.Errorf("lookback must cover at least one day, got %d", lookbackDays)
	}

	var mu sync.Mutex
	var taskStatusCounts []models.TaskStatusCounts

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentWaterfallQueries)

	for day := 0; day < lookbackDays; day++ {
		dayWindowEnd := windowEnd.AddDate(0, 0, -day)
		dayWindowStart := dayWindowEnd.AddDate(0, 0, -1)

		group.Go(func() error {
			logging.Info("getting evergreen waterfall data",
				"projects", projects,
				"window_start", dayWindowStart.Format(time.RFC3339),
				"window_end", dayWindowEnd.Format(time.RFC3339))

			buildStatuses, err := service.GetWaterfallStatus(groupCtx, projects, dayWindowStart, dayWindowEnd)
			if err != nil {
				return fmt.Errorf("failed to get waterfall status for window starting %s: %w",
					dayWindowStart.Format(time.RFC3339), err)
			}

			dailyStatuses := accumulateProjectStatuses(projects, buildStatuses)

			mu.Lock()
			taskStatusCounts = append(taskStatusCounts, dailyStatuses...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	report := make(WaterfallReport, len(projects))
	for _, project := range projects {
		report[project] = nil
	}
	for _, counts := range taskStatusCounts {
		report[counts.Project] = append(report[counts.Project], counts)
	}
	return report, nil
}

// accumulateProjectStatuses folds build-level counts into one tally per
// project. A project with no builds in the window still yields its identity
// tally, so every project gets exactly one entry per day.
func accumulateProjectStatuses(projects []string, buildStatuses []models.TaskStatusCounts) []models.TaskStatusCounts {
	projectStatuses := make([]models.TaskStatusCounts, 0, len(projects))
	for _, project := range projects {
		projectStatus := models.TaskStatusCounts{Project: project}
		for _, buildStatus := range buildStatuses {
			if buildStatus.Project == project {
				projectStatus = projectStatus.Add(buildStatus)
			}
		}
		projectStatuses = append(projectStatuses, projectStatus)
	}
	return projectStatuses
}

// RednessStatus renders the per-project median failed-task count over the
// lookback window. A project with zero days of data means the active set and
// the CI data disagree; that fails the run loudly rather than defaulting the
// median to zero, which would mask a real outage.
func (r WaterfallReport) RednessStatus(windowStart, windowEnd time.Time) (string, error) {
	const dateFormat = "2006-01-02"
	statusMessage := fmt.Sprintf(
		"`[STATUS]` Evergreen waterfall red and purple boxes median count per day between %s and %s",
		windowStart.Format(dateFormat), windowEnd.Format(dateFormat))

	projects := make([]string, 0, len(r))
	for project := range r {
		projects = append(projects, project)
	}
	sort.Strings(projects)

	for _, project := range projects {
		dailyCounts := r[project]
		failedCounts := make([]int, 0, len(dailyCounts))
		for _, counts := range dailyCounts {
			failedCounts = append(failedCounts, counts.Failed)
		}
		logging.Info("daily per project red box counts",
			"project", project,
			"daily_red_box_counts", failedCounts)

		medianFailed, err := roundedMedian(failedCounts)
		if err != nil {
			return "", fmt.Errorf("no waterfall data for project %q: %w", project, err)
		}
		statusMessage += fmt.Sprintf("\n%s: %d", project, medianFailed)
	}

	return statusMessage, nil
}

// median returns the statistical median of the values. Medians resist single
// anomalous days better than means while still reflecting sustained redness.
func median(values []int) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("median of an empty series is undefined")
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid]), nil
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2, nil
}

// roundedMedian returns the display form of the median, rounded to the
// nearest integer.
func roundedMedian(values []int) (int, error) {
	m, err := median(values)
	if err != nil {
		return 0, err
	}
	return int(math.Round(m)), nil
}
