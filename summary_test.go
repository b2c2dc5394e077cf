package jiraslackpm_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kren/jiraslackpm"
)

func TestSummaryErr(t *testing.T) {
	t.Parallel()

	var sum jiraslackpm.Summary
	require.NoError(t, sum.Err())

	boom := errors.New("boom")
	sum.Errors = []*jiraslackpm.UserError{
		{Stage: jiraslackpm.StageUsers, Err: errors.New("snapshot refused")},
		{AccountID: "acc-1", Stage: jiraslackpm.StageFetch, Err: boom},
	}
	err := sum.Err()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "users: snapshot refused")
	assert.Contains(t, err.Error(), "fetch acc-1: boom")
}

func TestSummaryJSON(t *testing.T) {
	t.Parallel()

	sum := jiraslackpm.Summary{
		RunID:          "run-1",
		IssuesInserted: 4,
		Errors: []*jiraslackpm.UserError{
			{AccountID: "acc-1", Stage: jiraslackpm.StageInsert, Err: errors.New("quota")},
		},
	}
	b, err := json.Marshal(&sum)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, float64(4), got["issues_inserted"])
	assert.Equal(t, []any{"insert acc-1: quota"}, got["errors"])
}

func TestInsertErrorMessage(t *testing.T) {
	t.Parallel()

	ie := &jiraslackpm.InsertError{Table: "Issue"}
	for i := 0; i < 5; i++ {
		ie.Rows = append(ie.Rows, jiraslackpm.RowError{Index: i, Reason: "missing status"})
	}
	assert.Equal(t,
		"insert into Issue: 5 rows rejected; row 0: missing status; row 1: missing status; row 2: missing status; and 2 more",
		ie.Error(),
	)
}
