package jiraapi

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultPageSize is the startAt increment used by Jira's offset pagination.
const DefaultPageSize = 50

// Pager walks an offset-paginated endpoint.
//
// Jira does not give us a reliable total on every endpoint, so the end of the
// stream is an empty page. A failed page is indistinguishable from the end of
// data unless Strict is set.
type Pager struct {
	Log      *slog.Logger
	PageSize int
	// Strict makes a failed page an error instead of an end-of-stream signal.
	Strict bool
}

type truncationHookKey struct{}

// WithTruncationHook returns a context under which every non-strict Page call
// reports a failed page, treated as end of data, to fn.
func WithTruncationHook(ctx context.Context, fn func(startAt int, err error)) context.Context {
	return context.WithValue(ctx, truncationHookKey{}, fn)
}

func truncationHook(ctx context.Context) func(startAt int, err error) {
	fn, _ := ctx.Value(truncationHookKey{}).(func(startAt int, err error))
	return fn
}

// Page returns at most n items from a paginated list. n == 0 means no limit.
//
// get is called with startAt = 0, PageSize, 2*PageSize, ... until it returns
// an empty page.
func Page[T any](
	ctx context.Context,
	p Pager,
	get func(ctx context.Context, startAt int) ([]T, error),
	n int,
) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("n must be non-negative")
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	startAt := 0
	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		items, err := get(ctx, startAt)
		if err != nil {
			if p.Strict {
				return all, fmt.Errorf("page at %d: %w", startAt, err)
			}
			if p.Log != nil {
				p.Log.Warn("treating failed page as end of data",
					"start_at", startAt,
					"collected", len(all),
					"error", err,
				)
			}
			if fn := truncationHook(ctx); fn != nil {
				fn(startAt, err)
			}
			return all, nil
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			all = append(all, item)
			if len(all) == n {
				return all, nil
			}
		}
		startAt += pageSize
	}
	return all, nil
}
