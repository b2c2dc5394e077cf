package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kren/jiraslackpm"
	"github.com/kren/jiraslackpm/notify"
)

type fakeSlack struct {
	mu        sync.Mutex
	calls     map[string]int
	forms     map[string][]string
	rateLimit int
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := strings.TrimPrefix(r.URL.Path, "/")

	f.mu.Lock()
	f.calls[method]++
	f.forms[method] = append(f.forms[method], r.Form.Encode())
	limited := f.rateLimit > 0
	if limited {
		f.rateLimit--
	}
	f.mu.Unlock()

	if limited {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "users.lookupByEmail":
		if r.Form.Get("email") != "dev@example.com" {
			_, _ = w.Write([]byte(`{"ok": false, "error": "users_not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok": true, "user": {"id": "U123"}}`))
	case "conversations.open":
		_, _ = w.Write([]byte(`{"ok": true, "channel": {"id": "D456"}}`))
	case "chat.postMessage":
		_, _ = w.Write([]byte(`{"ok": true, "channel": "` + r.Form.Get("channel") + `", "ts": "1700000000.000100"}`))
	default:
		_, _ = w.Write([]byte(`{"ok": false, "error": "unknown_method"}`))
	}
}

func (f *fakeSlack) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeSlack) formsFor(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forms[method]...)
}

func newSlack(t *testing.T) (*notify.Slack, *fakeSlack) {
	t.Helper()
	fake := &fakeSlack{
		calls: make(map[string]int),
		forms: make(map[string][]string),
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return notify.NewSlack(log, "xoxb-test", slack.OptionAPIURL(srv.URL+"/")), fake
}

func TestPostMessage(t *testing.T) {
	t.Parallel()

	s, fake := newSlack(t)
	ts, err := s.PostMessage(context.Background(), "C1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000100", ts)
	require.Len(t, fake.formsFor("chat.postMessage"), 1)
	assert.Contains(t, fake.formsFor("chat.postMessage")[0], "text=hello")
}

func TestLookupUserByEmailCached(t *testing.T) {
	t.Parallel()

	s, fake := newSlack(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, err := s.LookupUserByEmail(ctx, "dev@example.com")
		require.NoError(t, err)
		assert.Equal(t, "U123", id)
	}
	assert.Equal(t, 1, fake.count("users.lookupByEmail"))

	_, err := s.LookupUserByEmail(ctx, "nobody@example.com")
	require.Error(t, err)
}

func TestDirectMessageByEmail(t *testing.T) {
	t.Parallel()

	s, fake := newSlack(t)
	err := s.DirectMessageByEmail(context.Background(), "dev@example.com", "your issues are in")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.count("conversations.open"))
	require.Len(t, fake.formsFor("chat.postMessage"), 1)
	assert.Contains(t, fake.formsFor("chat.postMessage")[0], "channel=D456")
}

func TestRateLimitRetried(t *testing.T) {
	t.Parallel()

	s, fake := newSlack(t)
	fake.mu.Lock()
	fake.rateLimit = 1
	fake.mu.Unlock()

	start := time.Now()
	ch, err := s.OpenDirectMessage(context.Background(), "U1", "U2")
	require.NoError(t, err)
	assert.Equal(t, "D456", ch)
	assert.Equal(t, 2, fake.count("conversations.open"))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestRateLimitStopsOnContext(t *testing.T) {
	t.Parallel()

	s, fake := newSlack(t)
	fake.mu.Lock()
	fake.rateLimit = 1000
	fake.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.PostMessage(ctx, "C1", "hello")
	var rateErr *slack.RateLimitedError
	require.True(t, errors.As(err, &rateErr), "got %v", err)
}

func TestPostSummary(t *testing.T) {
	t.Parallel()

	s, fake := newSlack(t)
	started := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	sum := &jiraslackpm.Summary{
		RunID:          "run-1",
		StartedAt:      started,
		FinishedAt:     started.Add(90 * time.Second),
		UsersFetched:   3,
		UsersProcessed: 2,
		UsersSkipped:   1,
		IssuesInserted: 7,
		Errors: []*jiraslackpm.UserError{
			{AccountID: "acc-2", Stage: jiraslackpm.StageInsert, Err: errors.New("quota exceeded")},
		},
	}
	require.NoError(t, s.PostSummary(context.Background(), "C1", sum))
	require.Len(t, fake.formsFor("chat.postMessage"), 1)
	form := fake.formsFor("chat.postMessage")[0]
	assert.Contains(t, form, "blocks=")
	assert.Contains(t, form, "quota+exceeded")
}

func TestSummaryBlocks(t *testing.T) {
	t.Parallel()

	sum := &jiraslackpm.Summary{RunID: "run-1"}
	assert.Len(t, notify.SummaryBlocks(sum), 3)

	sum.Errors = []*jiraslackpm.UserError{
		{AccountID: "a", Stage: jiraslackpm.StageFetch, Err: errors.New(strings.Repeat("x", 5000))},
	}
	blocks := notify.SummaryBlocks(sum)
	require.Len(t, blocks, 6)
	section, ok := blocks[5].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Less(t, len(section.Text.Text), 3000)
	assert.Equal(t, "Jira load run-1: 0 issues inserted for 0 users, 1 errors", notify.SummaryText(sum))
}
