package jiraslackpm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/kren/jiraslackpm/jiraapi"
)

// customFieldMarker is the substring Jira puts in the key of every
// site-defined field.
const customFieldMarker = "customfield"

// CanonicalTimeLayout is the string form timestamps are written in. Both
// BigQuery and SQLite parse it, and it keeps the original offset.
const CanonicalTimeLayout = "2006-01-02 15:04:05.000000-07:00"

var jiraTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

// ParseJiraTime parses a timestamp in any of the formats Jira emits.
func ParseJiraTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range jiraTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CanonicalTime renders t in CanonicalTimeLayout.
func CanonicalTime(t time.Time) string {
	return t.Format(CanonicalTimeLayout)
}

// StoryPointsStrategy extracts a story point estimate from the "fields"
// object of an issue. It returns nil when no estimate is found.
type StoryPointsStrategy func(fields json.RawMessage) *float64

// CustomFieldStoryPoints returns the first numeric field, in document order,
// whose key contains "customfield".
//
// The story points field has a different id on every Jira site, so this is a
// guess. On a site with several numeric custom fields it can pick the wrong
// one.
func CustomFieldStoryPoints(fields json.RawMessage) *float64 {
	return firstNumericField(fields, func(key string) bool {
		return strings.Contains(key, customFieldMarker)
	})
}

// FirstNumericStoryPoints returns the first numeric field in document order,
// whatever its key.
func FirstNumericStoryPoints(fields json.RawMessage) *float64 {
	return firstNumericField(fields, func(string) bool { return true })
}

// Names of the story point strategies.
const (
	StoryPointsCustomField  = "customfield"
	StoryPointsFirstNumeric = "first-numeric"
)

// StoryPointsStrategies maps strategy names to strategies.
var StoryPointsStrategies = map[string]StoryPointsStrategy{
	StoryPointsCustomField:  CustomFieldStoryPoints,
	StoryPointsFirstNumeric: FirstNumericStoryPoints,
}

// firstNumericField scans the top-level members of the object in fields and
// returns the first number whose key passes match. Booleans, strings, nulls
// and nested values are skipped.
func firstNumericField(fields json.RawMessage, match func(key string) bool) *float64 {
	dec := json.NewDecoder(bytes.NewReader(fields))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil
		}
		if !isJSONNumber(v) || !match(key) {
			continue
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			continue
		}
		return &f
	}
	return nil
}

func isJSONNumber(v json.RawMessage) bool {
	if len(v) == 0 {
		return false
	}
	c := v[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// Normalizer flattens raw Jira issues into Issue records.
type Normalizer struct {
	// StoryPoints defaults to CustomFieldStoryPoints.
	StoryPoints StoryPointsStrategy
}

// Normalize extracts the Issue fields from raw. Missing or mistyped values
// are left empty. Assignee and IndexDate are not set: they belong to the run,
// not to the document.
func (n Normalizer) Normalize(raw jiraapi.RawIssue) Issue {
	var issue Issue
	doc, err := gabs.ParseJSON(raw)
	if err != nil {
		return issue
	}

	str := func(path string) string {
		return stringValue(doc.Path(path).Data())
	}

	issue.IssueID = str("id")
	issue.IssueName = str("key")
	issue.ProjectName = str("fields.project.name")
	issue.IssueSummary = str("fields.summary")
	issue.Status = str("fields.status.statusCategory.name")
	issue.Stage = str("fields.status.name")
	issue.Priority = str("fields.priority.name")
	issue.IssueType = str("fields.issuetype.name")
	issue.Creator = str("fields.creator.accountId")
	issue.Reporter = str("fields.reporter.accountId")
	issue.CreatedAt, _ = ParseJiraTime(str("fields.created"))
	issue.UpdatedAt, _ = ParseJiraTime(str("fields.updated"))

	strategy := n.StoryPoints
	if strategy == nil {
		strategy = CustomFieldStoryPoints
	}
	var envelope struct {
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Fields) > 0 {
		issue.StoryPoints = strategy(envelope.Fields)
	}
	return issue
}

func stringValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
