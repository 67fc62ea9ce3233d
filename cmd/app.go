// Package cmd provides CLI commands for the recap tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/otherjamesbrown/recap-bot/config"
	"github.com/otherjamesbrown/recap-bot/pkg/calendar"
	"github.com/otherjamesbrown/recap-bot/pkg/db"
	"github.com/otherjamesbrown/recap-bot/pkg/events"
	"github.com/otherjamesbrown/recap-bot/pkg/fireflies"
	"github.com/otherjamesbrown/recap-bot/pkg/health"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/notify"
	"github.com/otherjamesbrown/recap-bot/pkg/observability"
	"github.com/otherjamesbrown/recap-bot/pkg/pipeline"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
	"github.com/otherjamesbrown/recap-bot/pkg/scheduler"
	"github.com/otherjamesbrown/recap-bot/pkg/slack"
)

// calendarCollaborator labels calendar requests in metrics and spans.
const calendarCollaborator = "calendar"

// AppOptions controls which optional backends NewApp connects.
type AppOptions struct {
	// LogOutput receives log lines. Nil means stderr.
	LogOutput io.Writer
	// Persist connects Postgres (log sink) and Redis (event publishing)
	// when their URLs are configured. Only `run` sets it.
	Persist bool
}

// App holds the collaborators wired from one Config.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Calendar  *calendar.Manager
	Fireflies *fireflies.Client
	Slack     *slack.Client
	Router    *notify.Router
	Publisher events.Publisher
	Pool      *pgxpool.Pool

	sink logging.Sink
}

// NewApp wires every collaborator. The caller must Close the App.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	app := &App{
		Config:    cfg,
		Registry:  prometheus.NewRegistry(),
		Tracer:    observability.NewTracer(),
		Publisher: events.NopPublisher{},
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = observability.NewMetrics(app.Registry)

	var sinks []logging.Sink
	if opts.Persist && cfg.DatabaseURL != "" {
		sink, err := app.connectLogSink(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	app.Logger = logging.NewLogger(&logging.Config{
		Level:       logging.ParseLevel(cfg.Log.Level),
		ServiceName: "recap-bot",
		Format:      logging.Format(cfg.Log.Format),
		Output:      logOut,
		Sinks:       sinks,
	})

	sources, err := app.calendarSources(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	mode, err := calendar.ParseWindowMode(cfg.Calendar.WindowMode)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Calendar = calendar.NewManager(calendar.ManagerConfig{
		Mode:        mode,
		FetchWindow: cfg.Calendar.FetchWindow,
		Logger:      app.Logger,
	}, sources...)

	app.Fireflies = fireflies.NewClient(fireflies.Config{
		URL:          cfg.Fireflies.URL,
		APIKey:       cfg.Fireflies.APIKey,
		LookbackDays: cfg.Fireflies.LookbackDays,
		SearchLimit:  cfg.Fireflies.SearchLimit,
		Matcher:      cfg.Matching.PreviousMatcher(),
		Client:       app.httpClient(fireflies.Collaborator),
		Retry:        retry.DefaultPolicy(),
		Logger:       app.Logger,
	})

	app.Slack = slack.NewClient(slack.Config{
		Token:  cfg.Slack.BotToken,
		APIURL: cfg.Slack.APIURL,
		Client: app.httpClient(slack.Collaborator),
		Retry:  retry.DefaultPolicy(),
		Logger: app.Logger,
	})

	channels := make(map[notify.Route]string, len(cfg.Slack.Channels))
	for route, name := range cfg.Slack.Channels {
		channels[notify.Route(route)] = name
	}
	app.Router = notify.NewRouter(channels)

	if opts.Persist && cfg.RedisURL != "" {
		pub, err := events.NewRedisPublisherFromURL(ctx, cfg.RedisURL, app.Logger)
		if err != nil {
			app.Logger.Warn("Event publishing disabled", logging.Err(err))
		} else {
			app.Publisher = pub
		}
	}

	return app, nil
}

func (a *App) connectLogSink(ctx context.Context) (logging.Sink, error) {
	pool, err := db.ConnectWithRetry(ctx, db.DefaultConfig(a.Config.DatabaseURL), 3, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting log database: %w", err)
	}
	writer := logging.NewPGWriter(pool)
	if err := writer.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing log table: %w", err)
	}
	if err := db.RegisterPoolStats(a.Registry, pool, "recap"); err != nil {
		pool.Close()
		return nil, err
	}
	a.Pool = pool
	a.sink = logging.NewDBSink(logging.DBSinkConfig{Writer: writer})
	return a.sink, nil
}

func (a *App) httpClient(collaborator string) *http.Client {
	return observability.NewHTTPClient(collaborator, a.Config.RequestTimeout, a.Metrics, a.Tracer)
}

func (a *App) calendarSources(ctx context.Context) ([]calendar.Source, error) {
	sources := make([]calendar.Source, 0, len(a.Config.Calendar.Sources))
	for _, sc := range a.Config.Calendar.Sources {
		switch sc.Type {
		case config.SourceICS:
			loc := time.UTC
			if sc.Location != "" {
				l, err := time.LoadLocation(sc.Location)
				if err != nil {
					return nil, fmt.Errorf("calendar %s: %w", sc.Name, err)
				}
				loc = l
			}
			sources = append(sources, calendar.NewICSSource(calendar.ICSConfig{
				Name:     sc.Name,
				URL:      sc.URL,
				Location: loc,
				Client:   a.httpClient(calendarCollaborator),
				Retry:    retry.DefaultPolicy(),
				Logger:   a.Logger,
			}))
		case config.SourceAppsScript:
			sources = append(sources, calendar.NewAppsScriptSource(calendar.AppsScriptConfig{
				URL:    sc.URL,
				Client: a.httpClient(calendarCollaborator),
				Retry:  retry.DefaultPolicy(),
				Logger: a.Logger,
			}))
		case config.SourceGoogle:
			src, err := calendar.NewGoogleSource(ctx, calendar.GoogleConfig{
				Name:            sc.Name,
				CalendarID:      sc.CalendarID,
				CredentialsFile: sc.CredentialsFile,
				APIKey:          sc.APIKey,
				Endpoint:        sc.URL,
				Client:          a.httpClient(calendarCollaborator),
				Retry:           retry.DefaultPolicy(),
				Logger:          a.Logger,
			})
			if err != nil {
				return nil, fmt.Errorf("calendar %s: %w", sc.Name, err)
			}
			sources = append(sources, src)
		default:
			return nil, fmt.Errorf("calendar %s: unknown type %q", sc.Name, sc.Type)
		}
	}
	return sources, nil
}

// Pipeline builds the per-event processor.
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	delivery, err := pipeline.ParseDeliveryMode(a.Config.Slack.Delivery)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Transcripts:   a.Fireflies,
		Messenger:     a.Slack,
		Router:        a.Router,
		NotifyMinutes: a.Config.Schedule.NotificationMinutes,
		Delivery:      delivery,
		Publisher:     a.Publisher,
		Metrics:       a.Metrics,
		Tracer:        a.Tracer,
		Logger:        a.Logger,
	}), nil
}

// Scheduler builds the poll loop around p. Scheduled delivery needs to see
// events a full fetch window ahead so posts can be queued early.
func (a *App) Scheduler(p scheduler.Processor) *scheduler.Scheduler {
	lookahead := a.Config.Schedule.NotificationMinutes
	if a.Config.Slack.Delivery == string(pipeline.DeliveryScheduled) {
		lookahead = max(lookahead, int(a.Config.Calendar.FetchWindow/time.Minute))
	}
	return scheduler.New(scheduler.Config{
		Events:           a.Calendar,
		Processor:        p,
		Interval:         a.Config.CheckInterval(),
		LookaheadMinutes: lookahead,
		Publisher:        a.Publisher,
		Metrics:          a.Metrics,
		Tracer:           a.Tracer,
		Logger:           a.Logger,
	})
}

// Checks lists the collaborator liveness checks for /status.
func (a *App) Checks() []health.Check {
	checks := []health.Check{
		{Name: fireflies.Collaborator, Ping: a.Fireflies.Ping},
		{Name: slack.Collaborator, Ping: a.Slack.Ping},
	}
	for _, src := range a.Calendar.Sources() {
		checks = append(checks, health.Check{Name: calendarCollaborator + ":" + src.Name(), Ping: src.Ping})
	}
	if a.Pool != nil {
		checker := db.Checker{Pool: a.Pool}
		checks = append(checks, health.Check{Name: checker.Name(), Ping: checker.Ping})
	}
	if pinger, ok := a.Publisher.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Check{Name: "redis", Ping: pinger.Ping})
	}
	return checks
}

// Close releases every backend NewApp opened.
func (a *App) Close() {
	if a.Publisher != nil {
		_ = a.Publisher.Close()
	}
	if a.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.sink.Flush(ctx)
		cancel()
		_ = a.sink.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
