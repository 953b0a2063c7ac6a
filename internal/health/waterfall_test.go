package health

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evgops/branchwatch/pkg/models"
)

func TestMedian(t *testing.T) {
	testCases := []struct {
		name     string
		values   []int
		expected float64
	}{
		{name: "single value", values: []int{5}, expected: 5},
		{name: "odd length", values: []int{3, 1, 2}, expected: 2},
		{name: "even length averages the middle pair", values: []int{1, 2, 3, 4}, expected: 2.5},
		{
			name:     "outlier resilience over a two-week window",
			values:   []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 50},
			expected: 2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := median(tc.values)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("median(%v) = %v, expected %v", tc.values, got, tc.expected)
			}
		})
	}
}

func TestMedianOfEmptySeriesFails(t *testing.T) {
	if _, err := median(nil); err == nil {
		t.Error("median of an empty series must fail loudly, got nil error")
	}
	if _, err := roundedMedian(nil); err == nil {
		t.Error("roundedMedian of an empty series must fail loudly, got nil error")
	}
}

func TestRoundedMedian(t *testing.T) {
	got, err := roundedMedian([]int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Errorf("roundedMedian([1 2 3 4]) = %d, expected 3", got)
	}
}

func TestAccumulateProjectStatuses(t *testing.T) {
	projects := []string{"mongodb-mongo-master", "sys-perf"}
	buildStatuses := []models.TaskStatusCounts{
		{Project: "mongodb-mongo-master", Succeeded: 10, Failed: 2},
		{Project: "mongodb-mongo-master", Succeeded: 5, Failed: 3},
		{Project: "other-project", Failed: 100},
	}

	statuses := accumulateProjectStatuses(projects, buildStatuses)
	if len(statuses) != 2 {
		t.Fatalf("expected one tally per project, got %d", len(statuses))
	}

	byProject := make(map[string]models.TaskStatusCounts)
	for _, status := range statuses {
		byProject[status.Project] = status
	}

	master := byProject["mongodb-mongo-master"]
	if master.Succeeded != 15 || master.Failed != 5 {
		t.Errorf("expected folded counts {15 5}, got {%d %d}", master.Succeeded, master.Failed)
	}

	// A project with zero builds on the day still yields its identity tally.
	perf, ok := byProject["sys-perf"]
	if !ok {
		t.Fatal("expected an identity tally for sys-perf")
	}
	if perf.Failed != 0 || perf.Succeeded != 0 {
		t.Errorf("expected identity tally for sys-perf, got %+v", perf)
	}
}

// fakeWaterfallService records the windows it was queried with and returns a
// fixed per-day failure count per project.
type fakeWaterfallService struct {
	mu           sync.Mutex
	windows      [][2]time.Time
	failedPerDay map[string]int
	err          error
}

func (f *fakeWaterfallService) GetWaterfallStatus(ctx context.Context, projects []string, start, end time.Time) ([]models.TaskStatusCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.windows = append(f.windows, [2]time.Time{start, end})

	var statuses []models.TaskStatusCounts
	for _, project := range projects {
		statuses = append(statuses, models.TaskStatusCounts{
			Project: project,
			Failed:  f.failedPerDay[project],
		})
	}
	return statuses, nil
}

func TestMakeWaterfallReport(t *testing.T) {
	service := &fakeWaterfallService{failedPerDay: map[string]int{
		"mongodb-mongo-master": 2,
		"sys-perf":             0,
	}}
	projects := []string{"mongodb-mongo-master", "sys-perf"}
	windowEnd := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	report, err := MakeWaterfallReport(context.Background(), service, projects, windowEnd, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(service.windows) != 14 {
		t.Errorf("expected 14 daily queries, got %d", len(service.windows))
	}
	for _, window := range service.windows {
		if got := window[1].Sub(window[0]); got != 24*time.Hour {
			t.Errorf("expected 1-day sub-windows, got %v", got)
		}
		if window[1].After(windowEnd) {
			t.Errorf("sub-window end %v is after the overall window end %v", window[1], windowEnd)
		}
	}

	for _, project := range projects {
		if got := len(report[project]); got != 14 {
			t.Errorf("expected 14 daily tallies for %s, got %d", project, got)
		}
	}
}

func TestMakeWaterfallReportPropagatesQueryError(t *testing.T) {
	service := &fakeWaterfallService{err: context.DeadlineExceeded}
	windowEnd := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	_, err := MakeWaterfallReport(context.Background(), service, []string{"mongodb-mongo-master"}, windowEnd, 3)
	if err == nil {
		t.Fatal("a failed daily query must abort the run, got nil error")
	}
}

func TestMakeWaterfallReportRejectsEmptyLookback(t *testing.T) {
	service := &fakeWaterfallService{}
	if _, err := MakeWaterfallReport(context.Background(), service, []string{"p"}, time.Now().UTC(), 0); err == nil {
		t.Fatal("expected an error for a zero-day lookback")
	}
}

func TestRednessStatus(t *testing.T) {
	report := WaterfallReport{
		"mongodb-mongo-master": {
			{Project: "mongodb-mongo-master", Failed: 2},
			{Project: "mongodb-mongo-master", Failed: 2},
			{Project: "mongodb-mongo-master", Failed: 50},
		},
	}
	windowEnd := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	windowStart := windowEnd.AddDate(0, 0, -14)

	status, err := report.RednessStatus(windowStart, windowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(status, "mongodb-mongo-master: 2") {
		t.Errorf("status should report the median of 2, got:\n%s", status)
	}
	if !strings.Contains(status, "2024-06-01") || !strings.Contains(status, "2024-06-15") {
		t.Errorf("status should include the window dates, got:\n%s", status)
	}
}

func TestRednessStatusFailsOnProjectWithoutData(t *testing.T) {
	report := WaterfallReport{
		"mongodb-mongo-master": nil,
	}
	windowEnd := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	if _, err := report.RednessStatus(windowEnd.AddDate(0, 0, -14), windowEnd); err == nil {
		t.Fatal("a project with zero days of data must fail the run, got nil error")
	}
}
