package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coder/serpent"
	"github.com/kren/jiraslackpm/notify"
)

func (r *rootCmd) notifyCmd() *serpent.Command {
	var (
		channel string
		email   string
	)
	return &serpent.Command{
		Use:   "notify <text>",
		Short: "Post a message to a Slack channel or, with --email, to a user",
		Handler: func(inv *serpent.Invocation) error {
			text := strings.TrimSpace(strings.Join(inv.Args, " "))
			if text == "" {
				return errors.New("nothing to send")
			}
			if channel == "" && email == "" {
				channel = r.cfg.SlackChannel
			}
			if (channel == "") == (email == "") {
				return errors.New("exactly one of --channel and --email is required")
			}

			cfg := r.cfg
			if err := cfg.ValidateSlack(); err != nil {
				return err
			}
			log := newLogger(r.verbose)
			slack := notify.NewSlack(log, strings.TrimSpace(cfg.SlackToken))

			ctx := inv.Context()
			if email != "" {
				if err := slack.DirectMessageByEmail(ctx, email, text); err != nil {
					return err
				}
				fmt.Fprintf(inv.Stdout, "sent to %s\n", email)
				return nil
			}
			ts, err := slack.PostMessage(ctx, channel, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(inv.Stdout, "posted to %s at %s\n", channel, ts)
			return nil
		},
		Options: []serpent.Option{
			{
				Flag:        "channel",
				Description: "Channel to post to. Defaults to --slack-channel.",
				Value:       serpent.StringOf(&channel),
			},
			{
				Flag:        "email",
				Description: "Send a direct message to the Slack user with this email.",
				Value:       serpent.StringOf(&email),
			},
		},
	}
}
