package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"healthwatch/internal/alerts"
	"healthwatch/internal/collector"
	"healthwatch/internal/config"
	"healthwatch/internal/db"
	"healthwatch/internal/docker"
	"healthwatch/internal/events"
	"healthwatch/internal/lease"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
	"healthwatch/internal/notifier"
	"healthwatch/internal/retention"
	"healthwatch/internal/scheduler"
	"healthwatch/internal/web"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	cfg *config.Config
	log *logger.Logger

	sqldb *sql.DB
	repo  *db.Repository
	bus   *events.Bus

	monitor   *monitor.Monitor
	retention *retention.Service
	scheduler *scheduler.Scheduler
	web       *web.Server

	httpSrv *http.Server
}

// OpenStore opens and migrates the configured database.
func OpenStore(cfg *config.Config) (*sql.DB, *db.Repository, error) {
	sqldb, err := db.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(sqldb, cfg.DB.Driver); err != nil {
		_ = sqldb.Close()
		return nil, nil, err
	}
	return sqldb, db.NewRepository(sqldb, cfg.DB.Driver), nil
}

func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	sqldb, repo, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(log.With("module", "events"),
		events.WithBufferSize(cfg.Events.Buffer), events.WithWorkerCount(cfg.Events.Workers))
	if err := events.RegisterLogListeners(bus, log.With("module", "events")); err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	threshold, err := models.NewLatencyThreshold(cfg.Health.LatencyWarningMs, cfg.Health.LatencyCriticalMs)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	opts := monitor.DefaultOptions()
	opts.Workers = cfg.Collection.Workers
	opts.HealthMetrics = cfg.Health.RecentMetrics
	opts.AlertMetrics = cfg.Alerts.RecentMetrics
	opts.Threshold = threshold
	opts.InlineEvaluation = cfg.Collection.InlineEvaluation

	coll := collector.NewHTTPCollector(cfg.Collection.Timeout, resourceSampler(cfg, log), log.With("module", "collector"))
	mon := monitor.New(repo, coll, alerts.NewEngine(nil), buildNotifier(cfg.Notify, log.With("module", "notifier")),
		bus, log.With("module", "monitor"), opts)

	guard := lease.NewGuard(repo, cfg.InstanceID, log.With("module", "lease"))
	sched := scheduler.New(guard, log.With("module", "scheduler"))
	ret := retention.NewService(repo, cfg.Retention.Days, log.With("module", "retention"))

	a := &App{
		cfg:       cfg,
		log:       log,
		sqldb:     sqldb,
		repo:      repo,
		bus:       bus,
		monitor:   mon,
		retention: ret,
		scheduler: sched,
	}
	if err := a.registerJobs(); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.web = web.NewServer(mon, sched, repo, log.With("module", "web"))
	a.httpSrv = &http.Server{Addr: cfg.Addr, Handler: a.web.Routes(), ReadHeaderTimeout: 5 * time.Second}
	return a, nil
}

func (a *App) Monitor() *monitor.Monitor { return a.monitor }

func (a *App) registerJobs() error {
	every := func(d time.Duration) string { return "@every " + d.String() }
	cycle := func(run func(context.Context) (monitor.CycleReport, error)) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := run(ctx)
			return err
		}
	}
	jobs := []scheduler.Job{
		{Name: monitor.JobCollection, Spec: every(a.cfg.Collection.Interval), Window: window(a.cfg.Lease.Collection), Run: cycle(a.monitor.CollectCycle)},
		{Name: monitor.JobHealth, Spec: every(a.cfg.Health.Interval), Window: window(a.cfg.Lease.Health), Run: cycle(a.monitor.HealthCycle)},
		{Name: monitor.JobAlerts, Spec: every(a.cfg.Alerts.Interval), Window: window(a.cfg.Lease.Alerts), Run: cycle(a.monitor.AlertCycle)},
		{Name: retention.JobName, Spec: a.cfg.Retention.Cron, Window: window(a.cfg.Lease.Retention), Run: func(ctx context.Context) error {
			_, err := a.retention.Run(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if err := a.scheduler.Add(j); err != nil {
			return err
		}
	}
	return nil
}

func window(w config.LeaseWindow) lease.Window {
	return lease.Window{AtMost: w.AtMost, AtLeast: w.AtLeast}
}

// Run starts the scheduler and the HTTP server and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	a.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpSrv.Shutdown(sctx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	if err := a.scheduler.Stop(sctx); err != nil {
		a.log.Warn("scheduler stop", "err", err)
	}
	a.monitor.WaitForNotifications()
	return errors.Join(runErr, a.Close())
}

// Close releases the event bus and the database.
func (a *App) Close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.sqldb != nil {
		errs = append(errs, a.sqldb.Close())
	}
	return errors.Join(errs...)
}

func resourceSampler(cfg *config.Config, log *logger.Logger) collector.ResourceSampler {
	if cfg.Docker.Socket == "" {
		return nil
	}
	dc := docker.NewClient(cfg.Docker.Socket)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := dc.Ping(ctx); err != nil {
		log.Warn("container engine unreachable, resource usage will read as zero until it is", "socket", cfg.Docker.Socket, "err", err)
	}
	return dc
}

func buildNotifier(cfg config.NotifyConfig, log *logger.Logger) *notifier.Composite {
	channels := []notifier.Channel{notifier.NewLog(log)}
	if tg := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID); tg.Enabled() {
		channels = append(channels, tg)
	}
	if cfg.SendGrid.APIKey != "" && cfg.SendGrid.To != "" {
		channels = append(channels, notifier.NewSendGrid(cfg.SendGrid.APIKey, cfg.SendGrid.From, cfg.SendGrid.To))
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.To != "" {
		channels = append(channels, notifier.NewSMTP(notifier.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       notifier.SplitAddresses(cfg.SMTP.To),
			TLS:      cfg.SMTP.TLS,
		}))
	}
	log.Info("notification channels configured", "count", len(channels))
	return notifier.NewComposite(log, channels...)
}
