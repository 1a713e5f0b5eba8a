package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kibalert/internal/alerts"
	"kibalert/internal/collector"
	"kibalert/internal/compose"
	"kibalert/internal/config"
	"kibalert/internal/enrich"
	"kibalert/internal/logs"
	"kibalert/internal/metrics"
	"kibalert/internal/notifier"
	"kibalert/internal/retention"
	"kibalert/internal/schedule"
	"kibalert/internal/search"
	"kibalert/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	metrics   *metrics.Metrics
	notify    *notifier.Dispatcher
	collector *collector.Service
	tracker   *schedule.Tracker
	reporter  *enrich.Reporter
	retention *retention.Service
	web       *web.Server

	httpSrv *http.Server
	now     func() time.Time
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	categories, err := cfg.CategoryList()
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	timeout := cfg.HTTPTimeout()

	mailer := &notifier.Mailer{
		Host:      cfg.Notify.SMTPServer,
		Port:      cfg.Notify.SMTPPort,
		User:      cfg.Notify.SMTPUser,
		Password:  cfg.Notify.SMTPPassword,
		Receivers: cfg.Notify.EmailReceivers,
	}
	// Chat order decides brief routing: the first enabled chat wins.
	dispatcher := notifier.NewDispatcher(logger.With("module", "notifier"), m, mailer,
		notifier.NewSlack(cfg.Notify.SlackToken, cfg.Notify.SlackChannel, ""),
		notifier.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, timeout),
		notifier.NewWebhook(cfg.Notify.WebhookURL, timeout),
	)

	th := cfg.Thresholds()
	engine := alerts.NewEngine(th, logger.With("module", "alerts"), m)
	rolling := logs.NewWriter(cfg.Files.UserLogFile)
	publisher := compose.NewPublisher(dispatcher, rolling, cfg.Checks.NotifyLimit, logger.With("module", "compose"))
	client := search.New(cfg.Kibana.URL, cfg.Kibana.APIKey, search.WithTimeout(timeout))
	params := search.Params{
		Window:         cfg.Checks.SleepSeconds,
		Size:           cfg.Kibana.HitsSize,
		HostRuleIDs:    cfg.Kibana.HostRuleIDs,
		ServiceRuleIDs: cfg.Kibana.ServiceRuleIDs,
	}

	tracker, err := schedule.New(cfg.Files.LastRunFile, cfg.AI.RunSchedules, logger.With("module", "schedule"))
	if err != nil {
		return nil, fmt.Errorf("run schedule: %w", err)
	}

	providers, err := enrich.NewProviders(ctx, enrich.ProviderConfig{
		GeminiKey:     cfg.AI.GeminiKey,
		GeminiModel:   cfg.AI.GeminiModel,
		DeepSeekKey:   cfg.AI.DeepSeekKey,
		DeepSeekURL:   cfg.AI.DeepSeekURL,
		DeepSeekModel: cfg.AI.DeepSeekModel,
		OpenAIKey:     cfg.AI.OpenAIKey,
		OpenAIModel:   cfg.AI.OpenAIModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm providers: %w", err)
	}
	reporter := enrich.NewReporter(providers, dispatcher, enrich.Options{
		Instructions:   cfg.AI.Prompt,
		SystemContext:  cfg.AI.Context,
		Temperature:    cfg.AI.Temperature,
		UserLogFile:    cfg.Files.UserLogFile,
		AppLogFile:     cfg.Files.AppLogFile,
		ReportDir:      cfg.Files.ReportDir,
		MaxPromptBytes: cfg.AI.MaxPromptBytes,
	}, logger.With("module", "enrich"), m)

	a := &App{
		cfg:       cfg,
		log:       logger,
		metrics:   m,
		notify:    dispatcher,
		collector: collector.NewService(client, engine, publisher, params, categories, logger.With("module", "collector"), m),
		tracker:   tracker,
		reporter:  reporter,
		retention: retention.NewService(
			[]string{cfg.Files.UserLogFile, cfg.Files.AppLogFile},
			cfg.Files.ReportDir,
			cfg.ReportRetention(),
			logger.With("module", "retention"),
		),
		web: web.NewServer(m, tracker, dispatcher, logger.With("module", "web")),
		now: time.Now,
	}
	if cfg.Admin.Addr != "" {
		a.httpSrv = &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           a.web.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	if !reporter.Enabled() {
		logger.Warn("no LLM provider configured, scheduled analysis disabled")
	}
	return a, nil
}

// Run polls until ctx is cancelled, or once when configured to.
func (a *App) Run(ctx context.Context) error {
	if a.httpSrv != nil {
		go func() {
			a.log.Info("admin server listening", "addr", a.cfg.Admin.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("admin server failed", "err", err)
			}
		}()
		defer a.shutdown()
	}

	interval := a.cfg.Interval()
	for {
		a.iterate(ctx)
		if a.cfg.Once {
			return nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.log.Info("shutting down")
			return nil
		case <-timer.C:
		}
	}
}

// iterate runs one polling pass followed by the scheduled analysis when a
// run window is due. Panics are logged and the loop carries on.
func (a *App) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("iteration panicked", "panic", fmt.Sprint(r))
		}
	}()

	start := a.now()
	affected := a.collector.Tick(ctx)
	a.log.Info("iteration done", "affected", affected, "duration_ms", time.Since(start).Milliseconds())

	if key, due := a.tracker.IsDue(a.now()); due && ctx.Err() == nil {
		a.analyse(ctx, key)
	}

	done := a.now()
	a.metrics.IterationDone(done)
	a.web.MarkIteration(done)
}

func (a *App) analyse(ctx context.Context, key string) {
	if a.reporter.Enabled() {
		reports, err := a.reporter.Run(ctx)
		if err != nil {
			a.log.Warn("analysis finished with errors", "window", key, "err", err)
		}
		a.log.Info("analysis reports written", "window", key, "reports", len(reports))
	}
	if err := a.tracker.MarkRun(key, a.now()); err != nil {
		a.log.Error("record run failed", "window", key, "err", err)
	}
	if err := a.retention.Run(ctx); err != nil {
		a.log.Warn("cleanup failed", "err", err)
	}
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		a.log.Warn("admin server shutdown", "err", err)
	}
}
