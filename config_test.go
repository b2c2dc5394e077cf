package jiraslackpm_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kren/jiraslackpm"
)

func validConfig() jiraslackpm.Config {
	return jiraslackpm.Config{
		JiraBaseURL:  "https://example.atlassian.net",
		JiraEmail:    "bot@example.com",
		JiraAPIToken: "token",
		Sink:         jiraslackpm.SinkBigQuery,
		ProjectID:    "my-project",
		Dataset:      "jira",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	c := validConfig()
	require.NoError(t, c.Validate())

	c = jiraslackpm.Config{Sink: jiraslackpm.SinkBigQuery, Dataset: "jira"}
	err := c.Validate()
	require.ErrorIs(t, err, jiraslackpm.ErrCredentialMissing)
	assert.Contains(t, err.Error(), "JIRA_BASE_URL, JIRA_API_EMAIL, JIRA_API_TOKEN, GCP_PROJECT_ID")

	c = validConfig()
	c.Sink = jiraslackpm.SinkSQLite
	require.ErrorIs(t, c.Validate(), jiraslackpm.ErrCredentialMissing)
	c.SQLitePath = "jira.db"
	require.NoError(t, c.Validate())

	c = validConfig()
	c.Sink = "postgres"
	err = c.Validate()
	require.Error(t, err)
	assert.NotErrorIs(t, err, jiraslackpm.ErrCredentialMissing)

	c = validConfig()
	c.Window = -time.Hour
	require.Error(t, c.Validate())

	c = validConfig()
	c.Timezone = "Mars/Olympus_Mons"
	require.Error(t, c.Validate())
}

func TestConfigLocation(t *testing.T) {
	t.Parallel()

	c := validConfig()
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	c.Timezone = "America/Chicago"
	loc, err = c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func TestConfigValidateSlack(t *testing.T) {
	t.Parallel()

	c := validConfig()
	require.ErrorIs(t, c.ValidateSlack(), jiraslackpm.ErrCredentialMissing)
	c.SlackToken = "xoxb-1"
	require.NoError(t, c.ValidateSlack())
}

func TestConfigMergeFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jiraslackpm.yaml")
	err := os.WriteFile(path, []byte(`
jira_base_url: https://file.atlassian.net
sink: sqlite
sqlite_path: /var/lib/jira.db
window: 12h
slack_channel: "#pm"
jira_api_token: from-file
`), 0o600)
	require.NoError(t, err)

	c := jiraslackpm.Config{
		JiraBaseURL: "https://flag.atlassian.net",
	}
	require.NoError(t, c.MergeFile(path))
	assert.Equal(t, "https://flag.atlassian.net", c.JiraBaseURL)
	assert.Equal(t, jiraslackpm.SinkSQLite, c.Sink)
	assert.Equal(t, "/var/lib/jira.db", c.SQLitePath)
	assert.Equal(t, 12*time.Hour, c.Window)
	assert.Equal(t, "#pm", c.SlackChannel)
	assert.Empty(t, c.JiraAPIToken)

	require.Error(t, c.MergeFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestConfigSetDefaults(t *testing.T) {
	t.Parallel()

	c := jiraslackpm.Config{Dataset: "analytics"}
	c.SetDefaults()
	assert.Equal(t, jiraslackpm.SinkBigQuery, c.Sink)
	assert.Equal(t, "analytics", c.Dataset)
	assert.Equal(t, jiraslackpm.UsersTableName, c.UsersTable)
	assert.Equal(t, jiraslackpm.IssuesTableName, c.IssuesTable)
	assert.Equal(t, jiraslackpm.DefaultWindow, c.Window)
	assert.Equal(t, jiraslackpm.StoryPointsCustomField, c.StoryPoints)

	c = validConfig()
	c.StoryPoints = "median"
	require.Error(t, c.Validate())
	c.StoryPoints = jiraslackpm.StoryPointsFirstNumeric
	require.NoError(t, c.Validate())
}

func TestConfigValidateWarehouse(t *testing.T) {
	t.Parallel()

	c := jiraslackpm.Config{Sink: jiraslackpm.SinkSQLite, SQLitePath: "jira.db"}
	require.NoError(t, c.ValidateWarehouse())
	require.ErrorIs(t, c.Validate(), jiraslackpm.ErrCredentialMissing)
}
