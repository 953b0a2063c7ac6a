// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Jira      JiraConfig
	Evergreen EvergreenConfig
	GitHub    GitHubConfig
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	URL      string
	Username string
	Token    string
}

// EvergreenConfig holds Evergreen API specific configuration.
type EvergreenConfig struct {
	APIServer string
	User      string
	APIKey    string
}

// GitHubConfig holds GitHub specific configuration. The token is optional:
// without it the branch pre-flight check is skipped.
type GitHubConfig struct {
	Domain string
	Token  string
}

// DefaultEvergreenAPIServer is used when EVERGREEN_API_SERVER is not set.
const DefaultEvergreenAPIServer = "https://evergreen.mongodb.com/api"

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map specific environment variables
	v.BindEnv("jira.url", "JIRA_URL")
	v.BindEnv("jira.username", "JIRA_USERNAME")
	v.BindEnv("jira.token", "JIRA_TOKEN")
	v.BindEnv("evergreen.api_server", "EVERGREEN_API_SERVER")
	v.BindEnv("evergreen.user", "EVERGREEN_API_USER")
	v.BindEnv("evergreen.api_key", "EVERGREEN_API_KEY")
	v.BindEnv("github.domain", "GITHUB_DOMAIN")
	v.BindEnv("github.token", "GITHUB_TOKEN")

	v.SetDefault("evergreen.api_server", DefaultEvergreenAPIServer)

	config := &Config{
		Jira: JiraConfig{
			URL:      v.GetString("jira.url"),
			Username: v.GetString("jira.username"),
			Token:    v.GetString("jira.token"),
		},
		Evergreen: EvergreenConfig{
			APIServer: v.GetString("evergreen.api_server"),
			User:      v.GetString("evergreen.user"),
			APIKey:    v.GetString("evergreen.api_key"),
		},
		GitHub: GitHubConfig{
			Domain: v.GetString("github.domain"),
			Token:  v.GetString("github.token"),
		},
	}

	return config, nil
}

// ValidateJiraConfig validates JIRA-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Username == "" {
		missingVars = append(missingVars, "JIRA_USERNAME")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateEvergreenConfig validates Evergreen-specific configuration.
func ValidateEvergreenConfig(config *Config) error {
	var missingVars []string

	if config.Evergreen.APIServer == "" {
		missingVars = append(missingVars, "EVERGREEN_API_SERVER")
	}
	if config.Evergreen.User == "" {
		missingVars = append(missingVars, "EVERGREEN_API_USER")
	}
	if config.Evergreen.APIKey == "" {
		missingVars = append(missingVars, "EVERGREEN_API_KEY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
