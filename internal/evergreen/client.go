// Package evergreen provides the CI-orchestration adapter: project
// discovery, waterfall task-status history, and the Slack notification
// side-channel.
package evergreen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evgops/branchwatch/internal/config"
	"github.com/evgops/branchwatch/internal/logging"
	"github.com/evgops/branchwatch/pkg/models"
)

const (
	requestTimeout  = 30 * time.Second
	requestAttempts = 3
	backoffMin      = time.Second

	projectsPageSize = 500

	// gitterRequester selects versions created by the repotracker, i.e.
	// mainline waterfall versions, excluding patch builds.
	gitterRequester = "gitter_request"
)

// Client is a typed client for the Evergreen REST v2 API.
type Client struct {
	baseURL string
	user    string
	apiKey  string
	http    *http.Client
}

// NewClient creates an Evergreen API client from environment configuration.
func NewClient() (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateEvergreenConfig(cfg); err != nil {
		return nil, err
	}

	logging.Debug("evergreen configuration",
		"api_server", cfg.Evergreen.APIServer,
		"user", cfg.Evergreen.User,
		"api_key", logging.MaskSensitive(cfg.Evergreen.APIKey))

	return &Client{
		baseURL: strings.TrimRight(cfg.Evergreen.APIServer, "/"),
		user:    cfg.Evergreen.User,
		apiKey:  cfg.Evergreen.APIKey,
		http:    &http.Client{Timeout: requestTimeout},
	}, nil
}

// apiProject is the subset of the projects endpoint response we consume.
type apiProject struct {
	Identifier string `json:"identifier"`
	Owner      string `json:"owner_name"`
	Repo       string `json:"repo_name"`
	Branch     string `json:"branch_name"`
	Enabled    bool   `json:"enabled"`
}

// apiVersion is the subset of the versions endpoint response we consume.
type apiVersion struct {
	Builds []apiBuild `json:"builds"`
}

type apiBuild struct {
	StatusCounts struct {
		Succeeded    int `json:"succeeded"`
		Failed       int `json:"failed"`
		Started      int `json:"started"`
		Undispatched int `json:"undispatched"`
		Inactive     int `json:"inactive"`
	} `json:"status_counts"`
}

// GetProjectsInfo returns which Evergreen projects track each branch of the
// given "owner/name" repository, plus the set of enabled projects used to
// scope the ticket query.
func (c *Client) GetProjectsInfo(ctx context.Context, repo, branch string) (*models.EvgProjectsInfo, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("repository must be in 'owner/name' format, got %q", repo)
	}
	owner, name := parts[0], parts[1]

	branchToProjects := make(map[string][]string)
	var activeProjects []string

	startAt := ""
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(projectsPageSize))
		if startAt != "" {
			query.Set("start_at", startAt)
		}

		var page []apiProject
		if err := c.do(ctx, http.MethodGet, "/rest/v2/projects", query, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list evergreen projects: %w", err)
		}

		for _, project := range page {
			if project.Owner != owner || project.Repo != name {
				continue
			}
			branchToProjects[project.Branch] = append(branchToProjects[project.Branch], project.Identifier)
			if project.Enabled {
				activeProjects = append(activeProjects, project.Identifier)
			}
		}

		if len(page) < projectsPageSize {
			break
		}
		startAt = page[len(page)-1].Identifier
	}

	if len(branchToProjects[branch]) == 0 {
		return nil, fmt.Errorf("no evergreen projects found for repo %q branch %q", repo, branch)
	}

	return models.NewEvgProjectsInfo(branchToProjects, activeProjects), nil
}

// GetWaterfallStatus returns per-build task-status counts for the given
// projects across mainline versions created within [start, end).
func (c *Client) GetWaterfallStatus(ctx context.Context, projects []string, start, end time.Time) ([]models.TaskStatusCounts, error) {
	var statuses []models.TaskStatusCounts

	for _, project := range projects {
		query := url.Values{}
		query.Set("requester", gitterRequester)
		query.Set("created_after", start.UTC().Format(time.RFC3339))
		query.Set("created_before", end.UTC().Format(time.RFC3339))

		var versions []apiVersion
		path := fmt.Sprintf("/rest/v2/projects/%s/versions", url.PathEscape(project))
		if err := c.do(ctx, http.MethodGet, path, query, nil, &versions); err != nil {
			return nil, fmt.Errorf("failed to get versions for project %q: %w", project, err)
		}

		for _, version := range versions {
			for _, build := range version.Builds {
				statuses = append(statuses, models.TaskStatusCounts{
					Project:      project,
					Succeeded:    build.StatusCounts.Succeeded,
					Failed:       build.StatusCounts.Failed,
					Started:      build.StatusCounts.Started,
					Undispatched: build.StatusCounts.Undispatched,
					Inactive:     build.StatusCounts.Inactive,
				})
			}
		}
	}

	return statuses, nil
}

// SendSlackNotification posts a message to the given Slack target through
// Evergreen's notification endpoint.
func (c *Client) SendSlackNotification(ctx context.Context, target, message string) error {
	body := map[string]string{
		"target": target,
		"msg":    message,
	}
	if err := c.do(ctx, http.MethodPost, "/rest/v2/notifications/slack", nil, body, nil); err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	return nil
}

// do issues one API request with authentication, bounded retry with
// doubling backoff on transport errors and 5xx responses, and JSON-decodes
// the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	backoff := backoffMin
	for attempt := 1; attempt <= requestAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Api-User", c.user)
		req.Header.Set("Api-Key", c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			lastErr = c.handleResponse(resp, out)
			if lastErr == nil {
				return nil
			}
			if resp.StatusCode < 500 {
				// Client errors will not heal on retry.
				return lastErr
			}
		}

		if attempt < requestAttempts {
			logging.Warn("evergreen request failed, retrying",
				"method", method,
				"path", path,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("evergreen request failed after %d attempts: %v", requestAttempts, lastErr)
}

func (c *Client) handleResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("evergreen API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode evergreen response: %v", err)
	}
	return nil
}
