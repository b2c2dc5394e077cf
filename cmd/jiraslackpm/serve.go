package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/coder/serpent"
	"github.com/kren/jiraslackpm"
)

func (r *rootCmd) serveCmd() *serpent.Command {
	var (
		bindAddr string
		interval time.Duration
	)
	return &serpent.Command{
		Use:   "serve",
		Short: "Serve POST /load for schedulers, optionally loading on an interval too",
		Handler: func(inv *serpent.Invocation) error {
			log := newLogger(r.verbose)
			cfg, err := r.config((*jiraslackpm.Config).Validate)
			if err != nil {
				return err
			}
			loader, err := r.loader(log, cfg)
			if err != nil {
				return err
			}
			notifyFn, err := notifier(log, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(inv.Context())
			defer cancel()

			// support Cloud Run
			if port := os.Getenv("PORT"); port != "" {
				bindAddr = ":" + port
			}

			listener, err := net.Listen("tcp", bindAddr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			log.Info("listening", "addr", listener.Addr())

			go func() {
				<-ctx.Done()
				listener.Close()
			}()

			srv := &jiraslackpm.Service{
				Log:    log,
				Loader: loader,
				Notify: notifyFn,
			}
			srv.Init()

			if interval > 0 {
				go func() {
					_ = srv.RunEvery(ctx, interval)
				}()
			}

			err = http.Serve(listener, srv)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
		Options: []serpent.Option{
			{
				Flag:        "bind-addr",
				Description: "Address to bind to. PORT overrides it.",
				Default:     "localhost:8080",
				Value:       serpent.StringOf(&bindAddr),
			},
			{
				Flag:        "interval",
				Description: "Also load on this interval, starting immediately. Zero disables.",
				Default:     "0s",
				Value:       serpent.DurationOf(&interval),
			},
		},
	}
}
