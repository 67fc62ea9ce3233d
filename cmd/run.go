package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/otherjamesbrown/recap-bot/pkg/health"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
)

// NewRunCommand creates the 'run' command that starts the bot.
func NewRunCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the recap bot",
		Long: `Start polling calendars and posting recaps of the previous occurrence
of each upcoming recurring meeting.

The bot also serves an HTTP surface on server.host:server.port:
  GET  /health          liveness and processed-event count
  GET  /status          health plus collaborator checks
  POST /trigger         run one poll cycle now
  GET  /metrics         Prometheus metrics
  GET  /version         build info
  POST /slack/commands  signed Slack slash commands

Required configuration: fireflies.api_key, slack.bot_token,
slack.signing_secret and at least one calendar source. Secrets can come from
the environment (FIREFLIES_API_KEY, SLACK_BOT_TOKEN, SLACK_SIGNING_SECRET),
the config file, or the keyring ('recap auth set').

Examples:
  recap run
  RECAP_CALENDAR_URL=https://example.com/team.ics recap run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, deps)
		},
	}
}

func runBot(cmd *cobra.Command, deps *Deps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := deps.NewApp(ctx, cfg, AppOptions{LogOutput: cmd.ErrOrStderr(), Persist: true})
	if err != nil {
		return err
	}
	defer app.Close()

	p, err := app.Pipeline()
	if err != nil {
		return err
	}
	sched := app.Scheduler(p)
	srv := health.NewServer(health.Config{
		Bot:           sched,
		Checks:        app.Checks(),
		Gatherer:      app.Registry,
		SigningSecret: cfg.Slack.SigningSecret,
		Logger:        app.Logger,
	})

	app.Logger.Info("Recap bot starting",
		logging.F("notify_minutes", cfg.Schedule.NotificationMinutes),
		logging.F("check_interval", cfg.CheckInterval()),
		logging.F("window_mode", cfg.Calendar.WindowMode),
		logging.F("delivery", cfg.Slack.Delivery),
		logging.F("calendars", len(cfg.Calendar.Sources)),
		logging.F("addr", cfg.Server.Addr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr()) })

	if err := g.Wait(); err != nil {
		app.Logger.Error("Recap bot stopped with error", logging.Err(err))
		return err
	}
	app.Logger.Info("Recap bot stopped")
	return nil
}
