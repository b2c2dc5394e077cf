package jiraslackpm

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Default table names inside the dataset.
const (
	UsersTableName  = "User"
	IssuesTableName = "Issue"
)

// UserSchema is the fixed schema of the users table.
var UserSchema = bigquery.Schema{
	{Name: "account_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "account_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "active", Type: bigquery.BooleanFieldType, Required: true},
	{Name: "display_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "index_date", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "email", Type: bigquery.StringFieldType},
}

// IssueSchema is the fixed schema of the issues table.
var IssueSchema = bigquery.Schema{
	{Name: "story_points", Type: bigquery.NumericFieldType},
	{Name: "status", Type: bigquery.StringFieldType, Required: true},
	{Name: "stage", Type: bigquery.StringFieldType, Required: true},
	{Name: "priority", Type: bigquery.StringFieldType, Required: true},
	{Name: "issue_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "issue_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "project_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "issue_summary", Type: bigquery.StringFieldType, Required: true},
	{Name: "creator", Type: bigquery.StringFieldType, Required: true},
	{Name: "reporter", Type: bigquery.StringFieldType, Required: true},
	{Name: "assignee", Type: bigquery.StringFieldType, Required: true},
	{Name: "issue_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "updated_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "index_date", Type: bigquery.TimestampFieldType, Required: true},
}

// User is one row of the users table: a user as seen by one load run.
type User struct {
	AccountID   string
	AccountType string
	Active      bool
	DisplayName string
	Email       string
	IndexDate   time.Time
}

// Save implements bigquery.ValueSaver.
func (u *User) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"account_id":   nullString(u.AccountID),
		"account_type": nullString(u.AccountType),
		"active":       u.Active,
		"display_name": nullString(u.DisplayName),
		"index_date":   timeValue(u.IndexDate),
		"email":        nullString(u.Email),
	}, "", nil
}

// Issue is one row of the issues table: an issue as seen by one load run.
type Issue struct {
	StoryPoints  *float64
	Status       string
	Stage        string
	Priority     string
	IssueID      string
	IssueName    string
	ProjectName  string
	IssueSummary string
	Creator      string
	Reporter     string
	Assignee     string
	IssueType    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IndexDate    time.Time
}

// Save implements bigquery.ValueSaver.
func (i *Issue) Save() (map[string]bigquery.Value, string, error) {
	var sp bigquery.Value
	if i.StoryPoints != nil {
		sp = *i.StoryPoints
	}
	return map[string]bigquery.Value{
		"story_points":  sp,
		"status":        nullString(i.Status),
		"stage":         nullString(i.Stage),
		"priority":      nullString(i.Priority),
		"issue_id":      nullString(i.IssueID),
		"issue_name":    nullString(i.IssueName),
		"project_name":  nullString(i.ProjectName),
		"issue_summary": nullString(i.IssueSummary),
		"creator":       nullString(i.Creator),
		"reporter":      nullString(i.Reporter),
		"assignee":      nullString(i.Assignee),
		"issue_type":    nullString(i.IssueType),
		"created_at":    timeValue(i.CreatedAt),
		"updated_at":    timeValue(i.UpdatedAt),
		"index_date":    timeValue(i.IndexDate),
	}, "", nil
}

// nullString maps the empty string to NULL so that a missing required field
// is rejected by the warehouse instead of being stored as "".
func nullString(s string) bigquery.Value {
	if s == "" {
		return nil
	}
	return s
}

func timeValue(t time.Time) bigquery.Value {
	if t.IsZero() {
		return nil
	}
	return CanonicalTime(t)
}
