package jiraapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPage is returned when a response decodes but lacks the
// structure the endpoint promises, e.g. a search body without "issues".
var ErrMalformedPage = errors.New("malformed page")

// User is a Jira user as returned by users/search.
type User struct {
	AccountID    string `json:"accountId"`
	AccountType  string `json:"accountType"`
	Active       bool   `json:"active"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// RawIssue is an issue exactly as Jira returned it. The field order of the
// document is significant to story point inference, so it is never decoded
// into a map here.
type RawIssue json.RawMessage

func (r RawIssue) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawIssue) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// StatusError is a non-2xx response from Jira.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira api status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to the Jira Cloud REST API v3.
type Client struct {
	// BaseURL is the site root, e.g. https://example.atlassian.net.
	BaseURL  string
	Email    string
	APIToken string
	HTTP     *http.Client
	Log      *slog.Logger

	PageSize int
	// Limit caps the number of items a listing returns. Zero means no cap.
	Limit int
	// StrictPages surfaces failed pages as errors instead of treating them
	// as the end of data.
	StrictPages bool
	// Now defaults to time.Now. Relative JQL offsets are computed from it.
	Now func() time.Time
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

func (c *Client) pager() Pager {
	return Pager{
		Log:      c.logger(),
		PageSize: c.PageSize,
		Strict:   c.StrictPages,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.BaseURL, "/") + "/rest/api/3/"
	u := base + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(path, q), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.Email, c.APIToken)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	err = json.NewDecoder(resp.Body).Decode(v)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// FetchUsers returns every user visible to the credentials.
func (c *Client) FetchUsers(ctx context.Context) ([]User, error) {
	return Page(ctx, c.pager(), func(ctx context.Context, startAt int) ([]User, error) {
		var users []User
		err := c.getJSON(ctx, "users/search", url.Values{
			"startAt": {strconv.Itoa(startAt)},
		}, &users)
		return users, err
	}, c.Limit)
}

// SearchIssues returns every issue matching jql.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]RawIssue, error) {
	return Page(ctx, c.pager(), func(ctx context.Context, startAt int) ([]RawIssue, error) {
		var page struct {
			Issues *[]RawIssue `json:"issues"`
		}
		err := c.getJSON(ctx, "search", url.Values{
			"jql":     {jql},
			"startAt": {strconv.Itoa(startAt)},
		}, &page)
		if err != nil {
			return nil, err
		}
		if page.Issues == nil {
			return nil, fmt.Errorf("search: %w: missing issues", ErrMalformedPage)
		}
		return *page.Issues, nil
	}, c.Limit)
}

// FetchIssuesForAssignee returns the issues assigned to accountID. A non-zero
// since limits the search to issues created or updated at or after since,
// give or take a minute.
func (c *Client) FetchIssuesForAssignee(ctx context.Context, accountID string, since time.Time) ([]RawIssue, error) {
	jql := AssigneeQuery(accountID)
	if !since.IsZero() {
		jql = AssigneeChangedSinceQuery(accountID, since, c.now())
	}
	return c.SearchIssues(ctx, jql)
}

// FetchIssuesThisWeek returns the issues assigned to accountID that were
// created since the start of the current week.
func (c *Client) FetchIssuesThisWeek(ctx context.Context, accountID string) ([]RawIssue, error) {
	return c.SearchIssues(ctx, AssigneeCurrentWeekQuery(accountID))
}
