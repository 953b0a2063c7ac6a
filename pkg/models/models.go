// Package models defines data structures shared across the application.
package models

import (
	"sort"
	"strings"
)

// TestType categorizes which kind of test suite a build failure affects.
type TestType string

const (
	// TestTypeCorrectness marks failures in correctness test suites.
	TestTypeCorrectness TestType = "correctness"

	// TestTypePerformance marks failures in performance test suites.
	TestTypePerformance TestType = "performance"
)

// Temperature is the severity/urgency classification of a build failure.
type Temperature string

const (
	// TemperatureHot is the most severe classification.
	TemperatureHot Temperature = "hot"

	// TemperatureCold marks a lower-urgency failure.
	TemperatureCold Temperature = "cold"

	// TemperatureNone means the ticket has not been classified yet.
	// It is a valid, countable classification, not a parse failure.
	TemperatureNone Temperature = "none"
)

// UnassignedTeam is the sentinel bucket for tickets without an assigned team.
const UnassignedTeam = "unassigned"

// BuildFailure represents one open build-failure ticket fetched from the
// bug tracker.
type BuildFailure struct {
	// Key is the full ticket identifier (e.g., "BF-12345").
	Key string

	// AssignedTeam is the owning team, or UnassignedTeam when the ticket
	// has no team set.
	AssignedTeam string

	// Temperature is the severity classification of the ticket.
	Temperature Temperature

	// EvergreenProjects is the set of CI project identifiers the ticket
	// is attributed to.
	EvergreenProjects []string
}

// TaskStatusCounts is an immutable tally of CI task outcomes for one project
// over one time slice.
type TaskStatusCounts struct {
	Project      string
	Succeeded    int
	Failed       int
	Started      int
	Undispatched int
	Inactive     int
}

// Add combines two tallies for the same project field-wise. The operation is
// associative and commutative; the zero-count value is its identity. The
// project identifier carries through from the receiver.
func (c TaskStatusCounts) Add(other TaskStatusCounts) TaskStatusCounts {
	return TaskStatusCounts{
		Project:      c.Project,
		Succeeded:    c.Succeeded + other.Succeeded,
		Failed:       c.Failed + other.Failed,
		Started:      c.Started + other.Started,
		Undispatched: c.Undispatched + other.Undispatched,
		Inactive:     c.Inactive + other.Inactive,
	}
}

// EvgProjectsInfo describes which CI projects track which branches of a
// repository, and which of those projects are currently active.
type EvgProjectsInfo struct {
	// BranchToProjects maps a branch name to the project identifiers
	// tracking it.
	BranchToProjects map[string][]string

	// activeProjects is the set of active project identifiers used to
	// scope the ticket query.
	activeProjects map[string]bool
}

// NewEvgProjectsInfo builds an EvgProjectsInfo from a branch mapping and the
// active project identifiers.
func NewEvgProjectsInfo(branchToProjects map[string][]string, activeProjects []string) *EvgProjectsInfo {
	active := make(map[string]bool, len(activeProjects))
	for _, name := range activeProjects {
		active[name] = true
	}
	return &EvgProjectsInfo{
		BranchToProjects: branchToProjects,
		activeProjects:   active,
	}
}

// TracksProject reports whether the given project identifier is in the
// active set.
func (i *EvgProjectsInfo) TracksProject(name string) bool {
	return i.activeProjects[name]
}

// ActiveProjectNames returns the active project identifiers in sorted order.
func (i *EvgProjectsInfo) ActiveProjectNames() []string {
	names := make([]string, 0, len(i.activeProjects))
	for name := range i.activeProjects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsPerformanceProject reports whether a CI project identifier belongs to a
// performance test project. Performance projects carry "perf" in their
// identifier (e.g., "sys-perf", "mongo-perf").
func IsPerformanceProject(name string) bool {
	return strings.Contains(strings.ToLower(name), "perf")
}
