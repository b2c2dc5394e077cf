package jiraslackpm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kren/jiraslackpm/jiraapi"
)

// DefaultWindow is how far back an incremental load looks.
const DefaultWindow = 24 * time.Hour

// atlassianAccount is the account type of humans. Apps and customer
// accounts have no assigned issues worth tracking.
const atlassianAccount = "atlassian"

// Source is where users and issues are extracted from.
type Source interface {
	FetchUsers(ctx context.Context) ([]jiraapi.User, error)
	// FetchIssuesForAssignee returns the issues of accountID changed at or
	// after since. A zero since means every issue.
	FetchIssuesForAssignee(ctx context.Context, accountID string, since time.Time) ([]jiraapi.RawIssue, error)
}

var _ Source = (*jiraapi.Client)(nil)

// Loader copies the users of a Jira site and their recently changed issues
// into a Warehouse.
type Loader struct {
	Log    *slog.Logger
	Source Source
	// OpenWarehouse is called once per run. The warehouse is closed when the
	// run ends.
	OpenWarehouse func(ctx context.Context) (Warehouse, error)

	UsersTable  string
	IssuesTable string

	// Window defaults to DefaultWindow.
	Window time.Duration
	// Location is the zone run timestamps are stamped in. Defaults to UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time

	Normalizer Normalizer
	Policy     ProvisionPolicy
	// SnapshotUsers writes the user snapshot on every run instead of only
	// when the users table is first created.
	SnapshotUsers bool
}

func (l *Loader) now() time.Time {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

func (l *Loader) window() time.Duration {
	if l.Window > 0 {
		return l.Window
	}
	return DefaultWindow
}

func (l *Loader) usersTable() string {
	if l.UsersTable != "" {
		return l.UsersTable
	}
	return UsersTableName
}

func (l *Loader) issuesTable() string {
	if l.IssuesTable != "" {
		return l.IssuesTable
	}
	return IssuesTableName
}

// IsRealUser reports whether issues should be fetched for u.
func IsRealUser(u jiraapi.User) bool {
	return u.AccountType == atlassianAccount
}

// InWindow reports whether issue was created or updated strictly after start.
func InWindow(issue Issue, start time.Time) bool {
	return issue.CreatedAt.After(start) || issue.UpdatedAt.After(start)
}

// FilterWindow returns the issues that changed strictly after start.
func FilterWindow(issues []Issue, start time.Time) []Issue {
	var kept []Issue
	for _, issue := range issues {
		if InWindow(issue, start) {
			kept = append(kept, issue)
		}
	}
	return kept
}

func newUserRecord(u jiraapi.User, indexDate time.Time) User {
	return User{
		AccountID:   u.AccountID,
		AccountType: u.AccountType,
		Active:      u.Active,
		DisplayName: u.DisplayName,
		Email:       u.EmailAddress,
		IndexDate:   indexDate,
	}
}

// Run performs one incremental load.
//
// Failures that concern a single user are recorded in the summary and the run
// moves on. Run only returns an error when the warehouse, the tables or the
// user list are unavailable; the partial summary is returned with it.
func (l *Loader) Run(ctx context.Context) (*Summary, error) {
	now := l.now()
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	log := l.Log.With("run_id", sum.RunID)
	defer func() {
		sum.FinishedAt = l.now()
	}()

	w, err := l.OpenWarehouse(ctx)
	if err != nil {
		return sum, fmt.Errorf("open warehouse: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Error("close warehouse", "error", err)
		}
	}()

	_, usersCreated, err := ProvisionTable(ctx, log, w, l.Policy, l.usersTable(), UserSchema)
	if err != nil {
		return sum, fmt.Errorf("provision users table: %w", err)
	}
	_, _, err = ProvisionTable(ctx, log, w, l.Policy, l.issuesTable(), IssueSchema)
	if err != nil {
		return sum, fmt.Errorf("provision issues table: %w", err)
	}

	users, err := l.Source.FetchUsers(sum.truncationHook(ctx, "", StageUsers))
	if err != nil {
		return sum, fmt.Errorf("fetch users: %w", err)
	}
	sum.UsersFetched = len(users)
	log.Info("fetched users", "count", len(users))

	if usersCreated || l.SnapshotUsers {
		l.insertUsers(ctx, log, w, users, now, sum)
	} else {
		log.Debug("users table already existed, skipping user snapshot")
	}

	start := now.Add(-l.window())
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		l.loadUser(ctx, log, w, user, now, start, sum)
	}

	log.Info("finished load",
		"users_processed", sum.UsersProcessed,
		"users_skipped", sum.UsersSkipped,
		"issues_inserted", sum.IssuesInserted,
		"issues_filtered", sum.IssuesFiltered,
		"pages_truncated", sum.PagesTruncated,
		"errors", len(sum.Errors),
	)
	return sum, nil
}

func (l *Loader) insertUsers(
	ctx context.Context,
	log *slog.Logger,
	w Warehouse,
	users []jiraapi.User,
	now time.Time,
	sum *Summary,
) {
	if len(users) == 0 {
		return
	}
	records := make([]User, 0, len(users))
	for _, u := range users {
		records = append(records, newUserRecord(u, now))
	}
	err := w.Insert(ctx, l.usersTable(), userRows(records))
	rejected := rejectedRows(err)
	if err != nil {
		log.Error("insert users", "error", err)
		sum.addError("", StageUsers, err)
		if rejected == 0 {
			return
		}
	}
	sum.UsersInserted = len(records) - rejected
	log.Info("inserted users", "count", sum.UsersInserted)
}

func (l *Loader) loadUser(
	ctx context.Context,
	log *slog.Logger,
	w Warehouse,
	user jiraapi.User,
	now, start time.Time,
	sum *Summary,
) {
	log = log.With("account_id", user.AccountID)
	if !IsRealUser(user) {
		log.Info("skipping issues fetch", "account_type", user.AccountType)
		sum.UsersSkipped++
		return
	}
	sum.UsersProcessed++

	raws, err := l.Source.FetchIssuesForAssignee(sum.truncationHook(ctx, user.AccountID, StageFetch), user.AccountID, start)
	if err != nil {
		log.Error("fetch issues", "error", err)
		sum.addError(user.AccountID, StageFetch, err)
		// Whatever was collected before the failure is still loaded.
		if len(raws) == 0 {
			return
		}
	}
	sum.IssuesFetched += len(raws)

	issues := make([]Issue, 0, len(raws))
	for _, raw := range raws {
		issue := l.Normalizer.Normalize(raw)
		issue.Assignee = user.AccountID
		issue.IndexDate = now
		issues = append(issues, issue)
	}

	kept := FilterWindow(issues, start)
	sum.IssuesFiltered += len(issues) - len(kept)
	if len(kept) == 0 {
		log.Debug("no issues changed in window", "fetched", len(issues))
		return
	}

	err = w.Insert(ctx, l.issuesTable(), issueRows(kept))
	rejected := rejectedRows(err)
	if err != nil {
		log.Error("insert issues", "error", err, "rows", len(kept))
		sum.addError(user.AccountID, StageInsert, err)
		var ie *InsertError
		if !errors.As(err, &ie) {
			return
		}
		sum.IssuesRejected += rejected
	}
	sum.IssuesInserted += len(kept) - rejected
	log.Info("inserted issues", "count", len(kept)-rejected, "fetched", len(issues))
}
