package health

import (
	"fmt"

	"github.com/evgops/branchwatch/pkg/models"
)

// Thresholds for the three build-failure categories. All must stay positive
// constants: the percentage math divides by them.
const (
	overallHotThreshold  = 30
	overallColdThreshold = 100
	overallPerfThreshold = 30
	perTeamHotThreshold  = 7
	perTeamColdThreshold = 20
	perTeamPerfThreshold = 10
)

// Verdict is the tri-state branch-health classification.
type Verdict string

const (
	VerdictRed    Verdict = "RED"
	VerdictYellow Verdict = "YELLOW"
	VerdictGreen  Verdict = "GREEN"
)

// percentOfThreshold returns how far a count is through its threshold, as a
// percentage. Thresholds are positive by construction.
func percentOfThreshold(count, threshold int) float64 {
	return float64(count) / float64(threshold) * 100
}

// ClassifyPercentages folds a set of threshold percentages into a verdict.
// RED is checked first and is authoritative: any percentage over 100 forces
// RED even if every other percentage would qualify for GREEN.
func ClassifyPercentages(percentages []float64) Verdict {
	anyOver50 := false
	for _, percentage := range percentages {
		if percentage > 100 {
			return VerdictRed
		}
		if percentage >= 50 {
			anyOver50 = true
		}
	}
	if anyOver50 {
		return VerdictYellow
	}
	return VerdictGreen
}

// bfCategory is one row of the threshold table: a (test types, temperatures)
// predicate with its overall and per-team limits.
type bfCategory struct {
	label            string
	testTypes        []models.TestType
	temperatures     []models.Temperature
	overallThreshold int
	perTeamThreshold int
}

// bfCategories is the static threshold table. Hot and cold cover correctness
// tests; unclassified correctness tickets count as cold. Performance tickets
// count regardless of temperature.
var bfCategories = []bfCategory{
	{
		label:            "Hot",
		testTypes:        []models.TestType{models.TestTypeCorrectness},
		temperatures:     []models.Temperature{models.TemperatureHot},
		overallThreshold: overallHotThreshold,
		perTeamThreshold: perTeamHotThreshold,
	},
	{
		label:            "Cold",
		testTypes:        []models.TestType{models.TestTypeCorrectness},
		temperatures:     []models.Temperature{models.TemperatureCold, models.TemperatureNone},
		overallThreshold: overallColdThreshold,
		perTeamThreshold: perTeamColdThreshold,
	},
	{
		label:            "Perf",
		testTypes:        []models.TestType{models.TestTypePerformance},
		temperatures:     []models.Temperature{models.TemperatureHot, models.TemperatureCold, models.TemperatureNone},
		overallThreshold: overallPerfThreshold,
		perTeamThreshold: perTeamPerfThreshold,
	},
}

// EvaluateBFCounts compares a populated report against the threshold table.
// It returns the status-message lines describing each category and the full
// list of threshold percentages feeding the verdict.
func EvaluateBFCounts(report *BFsReport) (string, []float64) {
	var percentages []float64

	statusMessage := "`[STATUS]` The current BF count\n```\n" + report.Table() + "```"

	makeLine := func(scope, label string, count, threshold int) string {
		percentage := percentOfThreshold(count, threshold)
		percentages = append(percentages, percentage)
		return fmt.Sprintf("%s %s BFs: %d (%.2f%% of threshold %d)", scope, label, count, percentage, threshold)
	}

	for _, category := range bfCategories {
		count := report.Count(CountFilter{
			TestTypes:    category.testTypes,
			Temperatures: category.temperatures,
		})
		statusMessage += "\n" + makeLine("Overall", category.label, count, category.overallThreshold)
	}

	// A single worst-offending team drives the per-team signal, not a sum
	// across teams.
	for _, category := range bfCategories {
		maxCount := 0
		for _, team := range report.AssignedTeams() {
			count := report.Count(CountFilter{
				TestTypes:    category.testTypes,
				Temperatures: category.temperatures,
				AssignedTeam: team,
			})
			if count > maxCount {
				maxCount = count
			}
		}
		statusMessage += "\n" + makeLine("Max per Assigned Team", category.label, maxCount, category.perTeamThreshold)
	}

	return statusMessage, percentages
}
