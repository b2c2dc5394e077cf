package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/coder/serpent"
	"github.com/jussi-kalliokoski/slogdriver"
	"github.com/kren/jiraslackpm"
	"github.com/kren/jiraslackpm/jiraapi"
	"github.com/kren/jiraslackpm/notify"
	"github.com/kren/jiraslackpm/sqlitedb"
	"github.com/lmittmann/tint"
)

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	gcpProjectID, err := metadata.ProjectID()
	if err != nil {
		logOpts := &tint.Options{
			AddSource:  true,
			Level:      level,
			TimeFormat: time.Kitchen + " 05.999",
		}
		return slog.New(tint.NewHandler(os.Stderr, logOpts))
	}

	return slog.New(
		slogdriver.NewHandler(
			os.Stderr,
			slogdriver.Config{
				ProjectID: gcpProjectID,
				Level:     level,
			},
		),
	)
}

type rootCmd struct {
	cfg        jiraslackpm.Config
	configFile string

	strictPages   bool
	snapshotUsers bool
	recreate      bool
	verbose       bool
}

// config merges the config file into the flag values and checks the result
// with validate.
func (r *rootCmd) config(validate func(*jiraslackpm.Config) error) (*jiraslackpm.Config, error) {
	cfg := r.cfg
	if r.configFile != "" {
		if err := cfg.MergeFile(r.configFile); err != nil {
			return nil, err
		}
	}
	cfg.SetDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *rootCmd) jiraClient(log *slog.Logger, cfg *jiraslackpm.Config) *jiraapi.Client {
	return &jiraapi.Client{
		BaseURL:     strings.TrimRight(cfg.JiraBaseURL, "/"),
		Email:       strings.TrimSpace(cfg.JiraEmail),
		APIToken:    strings.TrimSpace(cfg.JiraAPIToken),
		HTTP:        &http.Client{Timeout: time.Minute},
		Log:         log,
		StrictPages: r.strictPages,
	}
}

func openWarehouse(log *slog.Logger, cfg *jiraslackpm.Config) func(ctx context.Context) (jiraslackpm.Warehouse, error) {
	return func(ctx context.Context) (jiraslackpm.Warehouse, error) {
		switch cfg.Sink {
		case jiraslackpm.SinkSQLite:
			return sqlitedb.OpenWarehouse(log, cfg.SQLitePath)
		default:
			return jiraslackpm.OpenBigQuery(ctx, log, cfg.ProjectID, cfg.Dataset)
		}
	}
}

func (r *rootCmd) loader(log *slog.Logger, cfg *jiraslackpm.Config) (*jiraslackpm.Loader, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy := jiraslackpm.ProvisionCreateIfAbsent
	if r.recreate {
		policy = jiraslackpm.ProvisionRecreate
	}
	return &jiraslackpm.Loader{
		Log:           log,
		Source:        r.jiraClient(log, cfg),
		OpenWarehouse: openWarehouse(log, cfg),
		UsersTable:    cfg.UsersTable,
		IssuesTable:   cfg.IssuesTable,
		Window:        cfg.Window,
		Location:      loc,
		Normalizer: jiraslackpm.Normalizer{
			StoryPoints: jiraslackpm.StoryPointsStrategies[cfg.StoryPoints],
		},
		Policy:        policy,
		SnapshotUsers: r.snapshotUsers,
	}, nil
}

// notifier returns the post-load hook, or nil when no channel is set.
func notifier(log *slog.Logger, cfg *jiraslackpm.Config) (func(ctx context.Context, sum *jiraslackpm.Summary) error, error) {
	if cfg.SlackChannel == "" {
		return nil, nil
	}
	if err := cfg.ValidateSlack(); err != nil {
		return nil, err
	}
	slack := notify.NewSlack(log, strings.TrimSpace(cfg.SlackToken))
	return func(ctx context.Context, sum *jiraslackpm.Summary) error {
		return slack.PostSummary(ctx, cfg.SlackChannel, sum)
	}, nil
}

func (r *rootCmd) load(inv *serpent.Invocation) error {
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

	ctx := inv.Context()
	log.Debug("starting load", "sink", cfg.Sink, "window", cfg.Window, "policy", loader.Policy.String())
	sum, runErr := loader.Run(ctx)
	if sum != nil {
		if notifyFn != nil {
			if err := notifyFn(ctx, sum); err != nil {
				log.Error("notify", "error", err)
			}
		}
		if err := printSummary(inv.Stdout, sum); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("load: %w", runErr)
	}
	if sum.Err() != nil {
		return errors.New("load finished with errors")
	}
	return nil
}

func main() {
	var root rootCmd
	cmd := &serpent.Command{
		Use:   "jiraslackpm",
		Short: "jiraslackpm loads Jira users and recently changed issues into a warehouse",
		Long: "With no subcommand, runs one incremental load: every user is snapshotted " +
			"when the users table is first created, and the issues each user changed " +
			"inside the window are appended.",
		Children: []*serpent.Command{
			root.serveCmd(),
			root.resetCmd(),
			root.fetchCmd(),
			root.notifyCmd(),
		},
		Handler: root.load,
		Options: []serpent.Option{
			{
				Flag:        "config",
				Env:         "JIRASLACKPM_CONFIG",
				Description: "YAML file with non-secret settings. Flags take precedence.",
				Value:       serpent.StringOf(&root.configFile),
			},
			{
				Flag:        "jira-base-url",
				Env:         "JIRA_BASE_URL",
				Description: "Jira Cloud site, e.g. https://example.atlassian.net.",
				Value:       serpent.StringOf(&root.cfg.JiraBaseURL),
			},
			{
				Flag:        "sink",
				Description: "Where rows are written: bigquery or sqlite. Defaults to bigquery.",
				Value:       serpent.EnumOf(&root.cfg.Sink, jiraslackpm.SinkBigQuery, jiraslackpm.SinkSQLite),
			},
			{
				Flag:        "project-id",
				Env:         "GCP_PROJECT_ID",
				Description: "GCP project of the BigQuery dataset.",
				Value:       serpent.StringOf(&root.cfg.ProjectID),
			},
			{
				Flag:        "dataset",
				Description: "BigQuery dataset. Created if absent. Defaults to jira.",
				Value:       serpent.StringOf(&root.cfg.Dataset),
			},
			{
				Flag:        "sqlite-path",
				Description: "SQLite database file, for --sink=sqlite.",
				Value:       serpent.StringOf(&root.cfg.SQLitePath),
			},
			{
				Flag:        "users-table",
				Description: "Name of the users table. Defaults to " + jiraslackpm.UsersTableName + ".",
				Value:       serpent.StringOf(&root.cfg.UsersTable),
			},
			{
				Flag:        "issues-table",
				Description: "Name of the issues table. Defaults to " + jiraslackpm.IssuesTableName + ".",
				Value:       serpent.StringOf(&root.cfg.IssuesTable),
			},
			{
				Flag:        "window",
				Description: "How far back issue changes are loaded. Defaults to 24h.",
				Value:       serpent.DurationOf(&root.cfg.Window),
			},
			{
				Flag:        "timezone",
				Description: "IANA zone index dates are stamped in. Defaults to UTC.",
				Value:       serpent.StringOf(&root.cfg.Timezone),
			},
			{
				Flag:        "story-points",
				Description: "How story points are found: customfield or first-numeric.",
				Value: serpent.EnumOf(&root.cfg.StoryPoints,
					jiraslackpm.StoryPointsCustomField, jiraslackpm.StoryPointsFirstNumeric),
			},
			{
				Flag:        "strict-pages",
				Description: "Fail a user's fetch on a bad page instead of treating it as the last page.",
				Value:       serpent.BoolOf(&root.strictPages),
			},
			{
				Flag:        "snapshot-users",
				Description: "Write the user snapshot on every run, not only when the users table is created.",
				Value:       serpent.BoolOf(&root.snapshotUsers),
			},
			{
				Flag:        "recreate",
				Description: "Drop and recreate both tables before loading. Deletes every row.",
				Value:       serpent.BoolOf(&root.recreate),
			},
			{
				Flag:        "slack-channel",
				Description: "Channel the run summary is posted to. No notification when empty.",
				Value:       serpent.StringOf(&root.cfg.SlackChannel),
			},
			{
				Flag:          "verbose",
				FlagShorthand: "v",
				Description:   "Log at debug level.",
				Value:         serpent.BoolOf(&root.verbose),
			},
			// SECRETS: only configurable via environment variables.
			{
				Env:         "JIRA_API_EMAIL",
				Description: "Email of the Jira account the API token belongs to.",
				Value:       serpent.StringOf(&root.cfg.JiraEmail),
			},
			{
				Env:         "JIRA_API_TOKEN",
				Description: "Jira API token.",
				Value:       serpent.StringOf(&root.cfg.JiraAPIToken),
			},
			{
				Env:         "SLACK_OAUTH_ACCESS_TOKEN",
				Description: "Slack bot token.",
				Value:       serpent.StringOf(&root.cfg.SlackToken),
			},
		},
	}

	err := cmd.Invoke().WithOS().Run()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
