package jiraslackpm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kren/jiraslackpm/jiraapi"
)

// Stage is a step of the per-user pipeline.
type Stage string

const (
	StageUsers  Stage = "users"
	StageFetch  Stage = "fetch"
	StageInsert Stage = "insert"
)

// UserError is a failure that was isolated to one user (or to the user
// snapshot) and did not stop the run.
type UserError struct {
	AccountID string
	Stage     Stage
	Err       error
}

func (e *UserError) Error() string {
	if e.AccountID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.AccountID, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// MarshalText renders the error as a single string in JSON summaries.
func (e *UserError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// Summary describes one load run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	UsersFetched int `json:"users_fetched"`
	// UsersInserted is zero on runs that did not write a user snapshot.
	UsersInserted  int `json:"users_inserted"`
	UsersProcessed int `json:"users_processed"`
	UsersSkipped   int `json:"users_skipped"`

	IssuesFetched  int `json:"issues_fetched"`
	IssuesInserted int `json:"issues_inserted"`
	// IssuesFiltered counts issues dropped because they did not change
	// inside the window.
	IssuesFiltered int `json:"issues_filtered"`
	IssuesRejected int `json:"issues_rejected"`
	// PagesTruncated counts failed pages that ended a listing early. Each is
	// also recorded in Errors.
	PagesTruncated int `json:"pages_truncated"`

	Errors []*UserError `json:"errors,omitempty"`
}

func (s *Summary) addError(accountID string, stage Stage, err error) {
	s.Errors = append(s.Errors, &UserError{
		AccountID: accountID,
		Stage:     stage,
		Err:       err,
	})
}

// truncationHook returns a context under which failed pages, treated by the
// client as the end of a listing, are recorded against accountID.
func (s *Summary) truncationHook(ctx context.Context, accountID string, stage Stage) context.Context {
	return jiraapi.WithTruncationHook(ctx, func(startAt int, err error) {
		s.PagesTruncated++
		s.addError(accountID, stage, fmt.Errorf("page at %d treated as end of data: %w", startAt, err))
	})
}

// Err returns every isolated error of the run, or nil.
func (s *Summary) Err() error {
	var merr *multierror.Error
	for _, e := range s.Errors {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}

// ErrorsByStage counts the isolated errors per stage.
func (s *Summary) ErrorsByStage() map[Stage]int {
	m := make(map[Stage]int)
	for _, e := range s.Errors {
		m[e.Stage]++
	}
	return m
}

// rejectedRows returns the number of rows err says were refused, or zero.
func rejectedRows(err error) int {
	var ie *InsertError
	if errors.As(err, &ie) {
		return len(ie.Rows)
	}
	return 0
}
