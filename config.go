package jiraslackpm

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrCredentialMissing means a required setting is absent. The process
// cannot do anything useful without it.
var ErrCredentialMissing = errors.New("credential missing")

// Sinks a load can write to.
const (
	SinkBigQuery = "bigquery"
	SinkSQLite   = "sqlite"
)

// Config is everything a load run needs from the environment.
type Config struct {
	JiraBaseURL  string `yaml:"jira_base_url"`
	JiraEmail    string `yaml:"-"`
	JiraAPIToken string `yaml:"-"`

	Sink        string `yaml:"sink"`
	ProjectID   string `yaml:"project_id"`
	Dataset     string `yaml:"dataset"`
	SQLitePath  string `yaml:"sqlite_path"`
	UsersTable  string `yaml:"users_table"`
	IssuesTable string `yaml:"issues_table"`

	Window   time.Duration `yaml:"window"`
	Timezone string        `yaml:"timezone"`
	// StoryPoints names the story point strategy, see StoryPointsStrategies.
	StoryPoints string `yaml:"story_points"`

	// SlackToken is only needed when a notification is requested.
	SlackToken   string `yaml:"-"`
	SlackChannel string `yaml:"slack_channel"`
}

// MergeFile fills the settings that are still empty from the YAML file at
// path. Secrets are never read from the file.
func (c *Config) MergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.JiraBaseURL, file.JiraBaseURL)
	fill(&c.Sink, file.Sink)
	fill(&c.ProjectID, file.ProjectID)
	fill(&c.Dataset, file.Dataset)
	fill(&c.SQLitePath, file.SQLitePath)
	fill(&c.UsersTable, file.UsersTable)
	fill(&c.IssuesTable, file.IssuesTable)
	fill(&c.Timezone, file.Timezone)
	fill(&c.StoryPoints, file.StoryPoints)
	fill(&c.SlackChannel, file.SlackChannel)
	if c.Window == 0 {
		c.Window = file.Window
	}
	return nil
}

// SetDefaults fills the settings that have a default and are still empty.
func (c *Config) SetDefaults() {
	if c.Sink == "" {
		c.Sink = SinkBigQuery
	}
	if c.Dataset == "" {
		c.Dataset = "jira"
	}
	if c.UsersTable == "" {
		c.UsersTable = UsersTableName
	}
	if c.IssuesTable == "" {
		c.IssuesTable = IssuesTableName
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.StoryPoints == "" {
		c.StoryPoints = StoryPointsCustomField
	}
}

// Location returns the time zone run timestamps are stamped in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate checks every setting a load needs. Missing credentials are
// reported together, wrapped in ErrCredentialMissing.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateJira checks the settings needed to call the Jira API only.
func (c *Config) ValidateJira() error {
	var missing []string
	for _, kv := range [][2]string{
		{"JIRA_BASE_URL", c.JiraBaseURL},
		{"JIRA_API_EMAIL", c.JiraEmail},
		{"JIRA_API_TOKEN", c.JiraAPIToken},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			missing = append(missing, kv[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCredentialMissing, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateWarehouse checks the settings needed to open the warehouse only.
func (c *Config) ValidateWarehouse() error {
	return c.validate(false)
}

func (c *Config) validate(jira bool) error {
	var missing []string
	need := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if jira {
		need("JIRA_BASE_URL", c.JiraBaseURL)
		need("JIRA_API_EMAIL", c.JiraEmail)
		need("JIRA_API_TOKEN", c.JiraAPIToken)
	}

	switch c.Sink {
	case SinkBigQuery:
		need("GCP_PROJECT_ID", c.ProjectID)
		need("dataset", c.Dataset)
	case SinkSQLite:
		need("sqlite-path", c.SQLitePath)
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCredentialMissing, strings.Join(missing, ", "))
	}
	if c.Window < 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.StoryPoints != "" {
		if _, ok := StoryPointsStrategies[c.StoryPoints]; !ok {
			return fmt.Errorf("unknown story points strategy %q", c.StoryPoints)
		}
	}
	return nil
}

// ValidateSlack checks the settings needed to post notifications.
func (c *Config) ValidateSlack() error {
	if strings.TrimSpace(c.SlackToken) == "" {
		return fmt.Errorf("%w: SLACK_OAUTH_ACCESS_TOKEN", ErrCredentialMissing)
	}
	return nil
}
