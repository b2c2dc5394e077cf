package jiraslackpm_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/kren/jiraslackpm"
	"github.com/kren/jiraslackpm/jiraapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWarehouse keeps tables in memory.
type fakeWarehouse struct {
	mu      sync.Mutex
	tables  map[string]bigquery.Schema
	rows    map[string][]map[string]bigquery.Value
	creates int
	deletes int
	closes  int

	// createRace makes CreateTable behave as if another process created the
	// table just before us.
	createRace bool
	// insertErr fails every Insert whose first row has this assignee.
	insertErr map[string]error
	// reject refuses single rows, like a NOT NULL violation would.
	reject func(row map[string]bigquery.Value) string
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		tables: make(map[string]bigquery.Schema),
		rows:   make(map[string][]map[string]bigquery.Value),
	}
}

var _ jiraslackpm.Warehouse = (*fakeWarehouse)(nil)

func (w *fakeWarehouse) GetTable(ctx context.Context, name string) (*jiraslackpm.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	schema, ok := w.tables[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableNotFound)
	}
	return &jiraslackpm.Table{Name: name, Schema: schema}, nil
}

func (w *fakeWarehouse) CreateTable(ctx context.Context, name string, schema bigquery.Schema) (*jiraslackpm.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tables[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableExists)
	}
	if w.createRace {
		w.tables[name] = schema
		return nil, fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableExists)
	}
	w.creates++
	w.tables[name] = schema
	return &jiraslackpm.Table{Name: name, Schema: schema}, nil
}

func (w *fakeWarehouse) DeleteTable(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tables[name]; !ok {
		return fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableNotFound)
	}
	w.deletes++
	delete(w.tables, name)
	delete(w.rows, name)
	return nil
}

func (w *fakeWarehouse) Insert(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tables[table]; !ok {
		return fmt.Errorf("%s: %w", table, jiraslackpm.ErrTableNotFound)
	}

	var saved []map[string]bigquery.Value
	for _, r := range rows {
		row, _, err := r.Save()
		if err != nil {
			return err
		}
		saved = append(saved, row)
	}
	if len(saved) > 0 {
		if assignee, ok := saved[0]["assignee"].(string); ok {
			if err := w.insertErr[assignee]; err != nil {
				return err
			}
		}
	}

	ie := &jiraslackpm.InsertError{Table: table}
	for i, row := range saved {
		if w.reject != nil {
			if reason := w.reject(row); reason != "" {
				ie.Rows = append(ie.Rows, jiraslackpm.RowError{Index: i, Reason: reason})
				continue
			}
		}
		w.rows[table] = append(w.rows[table], row)
	}
	if len(ie.Rows) > 0 {
		return ie
	}
	return nil
}

func (w *fakeWarehouse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return nil
}

func (w *fakeWarehouse) rowsOf(table string) []map[string]bigquery.Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]map[string]bigquery.Value(nil), w.rows[table]...)
}

func (w *fakeWarehouse) closed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closes
}

type fetchCall struct {
	accountID string
	since     time.Time
}

// fakeSource serves a fixed set of users and issues.
type fakeSource struct {
	mu       sync.Mutex
	users    []jiraapi.User
	usersErr error
	issues   map[string][]jiraapi.RawIssue
	fetchErr map[string]error
	// failPage makes the second page of these accounts fail, in non-strict
	// mode, after the first page served their issues.
	failPage map[string]error
	calls    []fetchCall

	// block, if set, is closed by the test to let FetchUsers return.
	// entered receives a value once FetchUsers has been called.
	block   chan struct{}
	entered chan struct{}
}

var _ jiraslackpm.Source = (*fakeSource)(nil)

func (s *fakeSource) FetchUsers(ctx context.Context) ([]jiraapi.User, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.users, s.usersErr
}

func (s *fakeSource) FetchIssuesForAssignee(ctx context.Context, accountID string, since time.Time) ([]jiraapi.RawIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fetchCall{accountID: accountID, since: since})
	if pageErr := s.failPage[accountID]; pageErr != nil {
		issues := s.issues[accountID]
		return jiraapi.Page(ctx, jiraapi.Pager{}, func(ctx context.Context, startAt int) ([]jiraapi.RawIssue, error) {
			if startAt == 0 {
				return issues, nil
			}
			return nil, pageErr
		}, 0)
	}
	return s.issues[accountID], s.fetchErr[accountID]
}

func (s *fakeSource) fetchCalls() []fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fetchCall(nil), s.calls...)
}

const jiraLayout = "2006-01-02T15:04:05.000-0700"

// rawIssue returns a complete issue document.
func rawIssue(id string, created, updated time.Time) jiraapi.RawIssue {
	return jiraapi.RawIssue(fmt.Sprintf(`{
	"id": %q,
	"key": "PM-%s",
	"fields": {
		"summary": "Issue %s",
		"project": {"name": "Platform"},
		"status": {"name": "In Review", "statusCategory": {"name": "In Progress"}},
		"priority": {"name": "High"},
		"issuetype": {"name": "Story"},
		"creator": {"accountId": "creator-1"},
		"reporter": {"accountId": "reporter-1"},
		"created": %q,
		"updated": %q,
		"customfield_10016": 3
	}
}`, id, id, id, created.Format(jiraLayout), updated.Format(jiraLayout)))
}

func human(id string) jiraapi.User {
	return jiraapi.User{
		AccountID:    id,
		AccountType:  "atlassian",
		Active:       true,
		DisplayName:  "User " + id,
		EmailAddress: id + "@example.com",
	}
}
