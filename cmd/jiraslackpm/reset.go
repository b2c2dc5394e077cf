package main

import (
	"errors"
	"fmt"

	"github.com/coder/serpent"
	"github.com/kren/jiraslackpm"
)

func (r *rootCmd) resetCmd() *serpent.Command {
	var yes bool
	return &serpent.Command{
		Use:   "reset",
		Short: "Drop the users and issues tables",
		Handler: func(inv *serpent.Invocation) error {
			if !yes {
				return errors.New("reset deletes every loaded row, pass --yes to confirm")
			}
			log := newLogger(r.verbose)
			cfg, err := r.config((*jiraslackpm.Config).ValidateWarehouse)
			if err != nil {
				return err
			}

			ctx := inv.Context()
			w, err := openWarehouse(log, cfg)(ctx)
			if err != nil {
				return fmt.Errorf("open warehouse: %w", err)
			}
			defer w.Close()

			for _, table := range []string{cfg.UsersTable, cfg.IssuesTable} {
				if err := jiraslackpm.DeleteTable(ctx, log, w, table); err != nil {
					return err
				}
				fmt.Fprintf(inv.Stdout, "dropped %s\n", table)
			}
			return nil
		},
		Options: []serpent.Option{
			{
				Flag:        "yes",
				Description: "Confirm that every loaded row may be deleted.",
				Value:       serpent.BoolOf(&yes),
			},
		},
	}
}
