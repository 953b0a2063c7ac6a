// Package jira provides the bug-tracker adapter that fetches open
// build-failure tickets.
package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/evgops/branchwatch/internal/config"
	"github.com/evgops/branchwatch/internal/logging"
	"github.com/evgops/branchwatch/pkg/models"
)

// Custom-field identifiers on the Build Failures Jira project.
const (
	// assignedTeamsFieldID is the "Assigned Teams" field.
	assignedTeamsFieldID = "customfield_12751"
	// evergreenProjectsFieldID is the "Evergreen Project" field.
	evergreenProjectsFieldID = "customfield_14278"
	// temperatureFieldID is the "Temperature" field.
	temperatureFieldID = "customfield_24859"
)

const (
	searchPageSize  = 100
	fetchAttempts   = 3
	fetchBackoffMin = 2 * time.Second
)

// Client handles interactions with the JIRA API.
type Client struct {
	client *jira.Client
}

// NewClient creates a new JIRA client from environment configuration.
func NewClient() (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, err
	}

	tp := jira.BasicAuthTransport{
		Username: cfg.Jira.Username,
		Password: cfg.Jira.Token,
	}
	client, err := jira.NewClient(tp.Client(), cfg.Jira.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %v", err)
	}

	logging.Debug("jira configuration",
		"url", cfg.Jira.URL,
		"username", cfg.Jira.Username,
		"token", logging.MaskSensitive(cfg.Jira.Token))

	return &Client{client: client}, nil
}

// FetchBuildFailures returns every ticket matching the JQL query, mapped to
// the shared BuildFailure shape. The search is paginated and retried with
// backoff on transient failures.
func (c *Client) FetchBuildFailures(ctx context.Context, jql string) ([]models.BuildFailure, error) {
	options := &jira.SearchOptions{
		MaxResults: searchPageSize,
		Fields: []string{
			"key",
			assignedTeamsFieldID,
			evergreenProjectsFieldID,
			temperatureFieldID,
		},
	}

	var lastErr error
	backoff := fetchBackoffMin
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		var bfs []models.BuildFailure
		err := c.client.Issue.SearchPagesWithContext(ctx, jql, options, func(issue jira.Issue) error {
			bfs = append(bfs, buildFailureFromIssue(issue))
			return nil
		})
		if err == nil {
			return bfs, nil
		}
		lastErr = err

		if attempt < fetchAttempts {
			logging.Warn("jira search failed, retrying",
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("jira search failed after %d attempts: %v", fetchAttempts, lastErr)
}

// buildFailureFromIssue maps a Jira issue onto the BuildFailure model.
// Classification gaps are not errors: a missing team maps to the unassigned
// sentinel and a missing temperature to the unclassified one.
func buildFailureFromIssue(issue jira.Issue) models.BuildFailure {
	bf := models.BuildFailure{
		Key:         issue.Key,
		Temperature: models.TemperatureNone,
	}
	if issue.Fields == nil {
		return bf
	}

	teams := fieldValues(issue.Fields.Unknowns[assignedTeamsFieldID])
	if len(teams) > 0 {
		// A BF is owned by its first assigned team; additional teams
		// are watchers.
		bf.AssignedTeam = teams[0]
	}

	bf.EvergreenProjects = fieldValues(issue.Fields.Unknowns[evergreenProjectsFieldID])

	if temps := fieldValues(issue.Fields.Unknowns[temperatureFieldID]); len(temps) > 0 {
		bf.Temperature = parseTemperature(temps[0])
	}

	return bf
}

// fieldValues extracts the string values from a Jira custom field, which may
// come back as a plain string, an option object with a "value" key, or an
// array of either.
func fieldValues(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case map[string]interface{}:
		if value, ok := v["value"].(string); ok && value != "" {
			return []string{value}
		}
		return nil
	case []interface{}:
		var values []string
		for _, entry := range v {
			values = append(values, fieldValues(entry)...)
		}
		return values
	default:
		return nil
	}
}

// parseTemperature maps the raw field value onto the Temperature enum.
// Unknown values are treated as unclassified.
func parseTemperature(raw string) models.Temperature {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hot":
		return models.TemperatureHot
	case "cold":
		return models.TemperatureCold
	default:
		return models.TemperatureNone
	}
}
