// Package notify posts load results to Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammario/tlru"
	"github.com/coder/retry"
	"github.com/slack-go/slack"
)

// Slack is a thin client for the handful of Slack Web API calls we need.
type Slack struct {
	Log    *slog.Logger
	Client *slack.Client

	// Email to user ID lookups are expensive (tier 3) and stable.
	userIDCache *tlru.Cache[string, string]
}

// NewSlack returns a notifier authenticated with token. opts are passed to
// slack.New.
func NewSlack(log *slog.Logger, token string, opts ...slack.Option) *Slack {
	return &Slack{
		Log:         log,
		Client:      slack.New(token, opts...),
		userIDCache: tlru.New[string, string](tlru.ConstantCost, 4096),
	}
}

// withRetry calls fn until it succeeds, fails with something other than a
// rate limit, or ctx is done.
func (s *Slack) withRetry(ctx context.Context, op string, fn func() error) error {
	ret := retry.New(time.Second, time.Second*30)
	for {
		err := fn()
		var rateErr *slack.RateLimitedError
		if !errors.As(err, &rateErr) {
			return err
		}
		s.Log.Warn("slack rate limited", "op", op, "retry_after", rateErr.RetryAfter)
		if rateErr.RetryAfter > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(rateErr.RetryAfter):
			}
			continue
		}
		if !ret.Wait(ctx) {
			return err
		}
	}
}

// PostMessage posts text to channel and returns the message timestamp.
func (s *Slack) PostMessage(ctx context.Context, channel, text string) (string, error) {
	var ts string
	err := s.withRetry(ctx, "chat.postMessage", func() error {
		var err error
		_, ts, err = s.Client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("post message to %s: %w", channel, err)
	}
	return ts, nil
}

// PostBlocks posts a Block Kit message to channel and returns the message
// timestamp. fallback is shown in notifications.
func (s *Slack) PostBlocks(ctx context.Context, channel, fallback string, blocks ...slack.Block) (string, error) {
	var ts string
	err := s.withRetry(ctx, "chat.postMessage", func() error {
		var err error
		_, ts, err = s.Client.PostMessageContext(ctx, channel,
			slack.MsgOptionBlocks(blocks...),
			slack.MsgOptionText(fallback, false),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("post blocks to %s: %w", channel, err)
	}
	return ts, nil
}

// OpenDirectMessage opens (or reuses) a conversation with userIDs and
// returns its channel ID.
func (s *Slack) OpenDirectMessage(ctx context.Context, userIDs ...string) (string, error) {
	var ch *slack.Channel
	err := s.withRetry(ctx, "conversations.open", func() error {
		var err error
		ch, _, _, err = s.Client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: userIDs,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("open conversation with %v: %w", userIDs, err)
	}
	return ch.ID, nil
}

// LookupUserByEmail returns the Slack user ID registered with email.
func (s *Slack) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	return s.userIDCache.Do(email, func() (string, error) {
		var user *slack.User
		err := s.withRetry(ctx, "users.lookupByEmail", func() error {
			var err error
			user, err = s.Client.GetUserByEmailContext(ctx, email)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", email, err)
		}
		return user.ID, nil
	}, time.Hour)
}

// DirectMessageByEmail sends text to the Slack user registered with email.
func (s *Slack) DirectMessageByEmail(ctx context.Context, email, text string) error {
	userID, err := s.LookupUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	channel, err := s.OpenDirectMessage(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.PostMessage(ctx, channel, text)
	return err
}
