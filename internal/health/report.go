// Package health implements the aggregation-and-threshold-evaluation engine
// that turns open build-failure tickets and CI waterfall history into a
// RED/YELLOW/GREEN branch verdict.
package health

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/evgops/branchwatch/pkg/models"
)

// classifiedBF is a build-failure ticket with its classification tags fixed
// at ingestion time.
type classifiedBF struct {
	key          string
	assignedTeam string
	testType     models.TestType
	temperature  models.Temperature
}

// BFsReport aggregates classified build-failure tickets for one evaluation
// run. It is populated once via Add and read through Count; counts are
// computed on demand from filter predicates rather than pre-aggregated, so
// new category combinations need no schema change.
type BFsReport struct {
	bfs   []classifiedBF
	teams map[string]bool
}

// NewBFsReport returns an empty report.
func NewBFsReport() *BFsReport {
	return &BFsReport{
		teams: make(map[string]bool),
	}
}

// Add classifies a single ticket and folds it into the report. Tickets with
// no project in the active set are excluded here, at ingestion, not filtered
// later. A missing team maps to the unassigned bucket and an unclassified
// temperature is counted as-is; there is no error path.
func (r *BFsReport) Add(bf models.BuildFailure, projectsInfo *models.EvgProjectsInfo) {
	testType := models.TestTypeCorrectness
	attributed := false
	for _, project := range bf.EvergreenProjects {
		if !projectsInfo.TracksProject(project) {
			continue
		}
		attributed = true
		if models.IsPerformanceProject(project) {
			testType = models.TestTypePerformance
		}
	}
	if !attributed {
		return
	}

	team := bf.AssignedTeam
	if team == "" {
		team = models.UnassignedTeam
	}
	temperature := bf.Temperature
	if temperature == "" {
		temperature = models.TemperatureNone
	}

	r.teams[team] = true
	r.bfs = append(r.bfs, classifiedBF{
		key:          bf.Key,
		assignedTeam: team,
		testType:     testType,
		temperature:  temperature,
	})
}

// CountFilter selects tickets by test type and temperature, optionally
// restricted to a single assigned team. An empty AssignedTeam means no team
// restriction.
type CountFilter struct {
	TestTypes    []models.TestType
	Temperatures []models.Temperature
	AssignedTeam string
}

// Count returns the number of tickets matching the filter. It is a pure read
// and returns 0 when nothing matches.
func (r *BFsReport) Count(filter CountFilter) int {
	count := 0
	for _, bf := range r.bfs {
		if filter.AssignedTeam != "" && bf.assignedTeam != filter.AssignedTeam {
			continue
		}
		if !containsTestType(filter.TestTypes, bf.testType) {
			continue
		}
		if !containsTemperature(filter.Temperatures, bf.temperature) {
			continue
		}
		count++
	}
	return count
}

// AssignedTeams returns every team seen during ingestion, in sorted order.
func (r *BFsReport) AssignedTeams() []string {
	teams := make([]string, 0, len(r.teams))
	for team := range r.teams {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	return teams
}

// Len returns the total number of tickets in the report.
func (r *BFsReport) Len() int {
	return len(r.bfs)
}

// Table renders a test-type x temperature cross-tab of the report. It is
// formatting only and carries no decision logic.
func (r *BFsReport) Table() string {
	temperatures := []models.Temperature{
		models.TemperatureHot,
		models.TemperatureCold,
		models.TemperatureNone,
	}
	testTypes := []models.TestType{
		models.TestTypeCorrectness,
		models.TestTypePerformance,
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "\thot\tcold\tnone\ttotal\n")
	for _, testType := range testTypes {
		total := 0
		fmt.Fprintf(w, "%s", testType)
		for _, temperature := range temperatures {
			count := r.Count(CountFilter{
				TestTypes:    []models.TestType{testType},
				Temperatures: []models.Temperature{temperature},
			})
			total += count
			fmt.Fprintf(w, "\t%d", count)
		}
		fmt.Fprintf(w, "\t%d\n", total)
	}
	w.Flush()
	return buf.String()
}

func containsTestType(haystack []models.TestType, needle models.TestType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func containsTemperature(haystack []models.Temperature, needle models.Temperature) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}
