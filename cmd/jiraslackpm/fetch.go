package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/coder/serpent"
	"github.com/kren/jiraslackpm"
	"github.com/kren/jiraslackpm/jiraapi"
)

func (r *rootCmd) fetchCmd() *serpent.Command {
	var limit int64
	limitOpt := serpent.Option{
		Flag:        "limit",
		Description: "Maximum number of items to print. Zero prints everything.",
		Default:     "0",
		Value:       serpent.Int64Of(&limit),
	}

	client := func() (*jiraapi.Client, *jiraslackpm.Config, error) {
		cfg, err := r.config((*jiraslackpm.Config).ValidateJira)
		if err != nil {
			return nil, nil, err
		}
		c := r.jiraClient(newLogger(r.verbose), cfg)
		c.Limit = int(limit)
		return c, cfg, nil
	}

	return &serpent.Command{
		Use:   "fetch",
		Short: "Print raw Jira API responses as JSON",
		Handler: func(inv *serpent.Invocation) error {
			return errors.New("expected a subcommand: users or issues")
		},
		Children: []*serpent.Command{
			{
				Use:   "users",
				Short: "Print every user",
				Handler: func(inv *serpent.Invocation) error {
					c, _, err := client()
					if err != nil {
						return err
					}
					users, err := c.FetchUsers(inv.Context())
					if err != nil {
						return fmt.Errorf("fetch users: %w", err)
					}
					return jiraapi.PrintJSON(inv.Stdout, users)
				},
				Options: []serpent.Option{limitOpt},
			},
			r.fetchIssuesCmd(client, limitOpt),
		},
	}
}

type clientFunc func() (*jiraapi.Client, *jiraslackpm.Config, error)

func (r *rootCmd) fetchIssuesCmd(client clientFunc, limitOpt serpent.Option) *serpent.Command {
	var (
		accountID  string
		since      time.Duration
		thisWeek   bool
		normalized bool
	)
	return &serpent.Command{
		Use:   "issues",
		Short: "Print the issues assigned to an account",
		Handler: func(inv *serpent.Invocation) error {
			if accountID == "" {
				return errors.New("account-id is required")
			}
			c, cfg, err := client()
			if err != nil {
				return err
			}

			ctx := inv.Context()
			var raws []jiraapi.RawIssue
			switch {
			case thisWeek:
				raws, err = c.FetchIssuesThisWeek(ctx, accountID)
			case since > 0:
				raws, err = c.FetchIssuesForAssignee(ctx, accountID, time.Now().Add(-since))
			default:
				raws, err = c.FetchIssuesForAssignee(ctx, accountID, time.Time{})
			}
			if err != nil {
				return fmt.Errorf("fetch issues: %w", err)
			}
			if !normalized {
				return jiraapi.PrintJSON(inv.Stdout, raws)
			}

			n := jiraslackpm.Normalizer{
				StoryPoints: jiraslackpm.StoryPointsStrategies[cfg.StoryPoints],
			}
			rows := make([]any, 0, len(raws))
			for _, raw := range raws {
				issue := n.Normalize(raw)
				issue.Assignee = accountID
				row, _, err := issue.Save()
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			return jiraapi.PrintJSON(inv.Stdout, rows)
		},
		Options: []serpent.Option{
			limitOpt,
			{
				Flag:        "account-id",
				Description: "Assignee account id.",
				Value:       serpent.StringOf(&accountID),
			},
			{
				Flag:        "since",
				Description: "Only issues created or updated in this window.",
				Default:     "0s",
				Value:       serpent.DurationOf(&since),
			},
			{
				Flag:        "this-week",
				Description: "Only issues created since the start of the week.",
				Value:       serpent.BoolOf(&thisWeek),
			},
			{
				Flag:        "normalized",
				Description: "Print the rows that would be loaded instead of the raw issues.",
				Value:       serpent.BoolOf(&normalized),
			},
		},
	}
}
