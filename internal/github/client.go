// Package github provides a small GitHub adapter used to verify that the
// tracked repository branch exists before an evaluation run starts.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"

	"github.com/evgops/branchwatch/internal/config"
	"github.com/evgops/branchwatch/internal/logging"
)

// Client encapsulates the GitHub API client.
type Client struct {
	client *github.Client
}

// NewClient creates a new GitHub API client using configuration from
// environment variables. It returns a nil client without error when no
// token is configured; callers treat that as "pre-flight disabled".
func NewClient() (*Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.GitHub.Token == "" {
		logging.Debug("no github token configured, branch pre-flight disabled")
		return nil, nil
	}

	domain := cfg.GitHub.Domain
	if domain == "" {
		domain = "github.com"
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.GitHub.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	var client *github.Client
	if domain == "github.com" {
		client = github.NewClient(tc)
	} else {
		baseURL := fmt.Sprintf("https://%s/api/v3/", domain)
		client, err = github.NewEnterpriseClient(baseURL, baseURL, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to create github enterprise client: %v", err)
		}
	}

	logging.Debug("github configuration",
		"domain", domain,
		"token", logging.MaskSensitive(cfg.GitHub.Token))

	return &Client{client: client}, nil
}

// BranchExists reports whether the given branch exists in the "owner/name"
// repository.
func (c *Client) BranchExists(ctx context.Context, repository, branch string) (bool, error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("repository must be in 'owner/name' format, got %q", repository)
	}

	_, resp, err := c.client.Repositories.GetBranch(ctx, parts[0], parts[1], branch, false)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up branch %q of %q: %v", branch, repository, err)
	}
	return true, nil
}
