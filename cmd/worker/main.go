// Package main is the entry point for the SPMS workflow worker.
//
// The worker is the composition root for the workflow core: it wires the
// persistence layer, the event bus, the notification channel, the REST API
// and the background scheduler together, then runs until it receives a
// shutdown signal or the HTTP server fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iiitp-spms/spms-workflow/config"
	"github.com/iiitp-spms/spms-workflow/internal/application/command"
	"github.com/iiitp-spms/spms-workflow/internal/application/eventhandler"
	"github.com/iiitp-spms/spms-workflow/internal/application/query"
	"github.com/iiitp-spms/spms-workflow/internal/application/saga"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/infrastructure/messaging"
	"github.com/iiitp-spms/spms-workflow/internal/infrastructure/notification"
	"github.com/iiitp-spms/spms-workflow/internal/infrastructure/persistence/postgres"
	rediscache "github.com/iiitp-spms/spms-workflow/internal/infrastructure/persistence/redis"
	"github.com/iiitp-spms/spms-workflow/internal/infrastructure/scheduler"
	"github.com/iiitp-spms/spms-workflow/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/iiitp-spms/spms-workflow/internal/interface/http"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.Observability.AddCaller,
	})
	log = log.With(logger.String("app", cfg.App.Name))

	log.Info("starting worker",
		logger.String("environment", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone))

	// ── PostgreSQL ──

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer conn.Close()

	if cfg.Database.MigrateOnStart {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	// ── Redis (optional) ──

	var cache *rediscache.Cache
	if !cfg.Redis.Disabled {
		cache, err = rediscache.NewCache(rediscache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			// The worker degrades rather than refusing to start: config
			// reads fall through to Postgres and job locks are skipped.
			log.Warn("redis unavailable, continuing without cache", logger.Err(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// ── Event bus ──

	// With Redis available, events fan out to sibling workers over Pub/Sub.
	// Without it, the in-memory bus serves this instance alone.
	var bus shared.EventBus
	busConfig := messaging.DefaultInMemoryEventBusConfig(log)
	if cache != nil {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         cache.Client(),
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("start redis event bus: %w", err)
		}
		defer redisBus.Close()
		bus = redisBus
	} else {
		memBus := messaging.NewInMemoryEventBus(busConfig)
		defer memBus.Close()
		bus = memBus
	}

	// ── Repositories and workflow config ──

	studentRepo := postgres.NewStudentRepository(conn)
	trackRepo := postgres.NewTrackSelectionRepository(conn)
	groupRepo := postgres.NewGroupRepository(conn)
	projectRepo := postgres.NewProjectRepository(conn)

	var configs shared.WorkflowConfigSource = postgres.NewWorkflowConfigStore(conn)
	if cache != nil {
		configs = rediscache.NewCachedConfigSource(configs, cache, log)
	}

	// ── Notification channel ──

	var notifier eventhandler.Notifier
	if cfg.Notification.GatewayURL != "" {
		webhook, err := notification.NewWebhookNotifier(notification.WebhookConfig{
			URL:     cfg.Notification.GatewayURL,
			APIKey:  cfg.Notification.APIKey,
			Timeout: cfg.Notification.RequestTimeout,
		}, log)
		if err != nil {
			return fmt.Errorf("configure notification gateway: %w", err)
		}
		notifier = webhook
	} else {
		notifier = notification.NewLoggingNotifier(log)
	}

	if err := registerEventHandlers(cfg, bus, notifier, groupRepo, projectRepo, log); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}

	log.Info("application wired",
		logger.Bool("redis", cache != nil),
		logger.Bool("webhook_notifier", cfg.Notification.GatewayURL != ""))

	// ── HTTP API ──

	var httpServer *httpapi.Server
	var httpErrCh <-chan error
	if cfg.HTTP.Enabled {
		httpServer = httpapi.NewServer(httpapi.Config{
			Host:               cfg.HTTP.Host,
			Port:               cfg.HTTP.Port,
			ReadTimeout:        cfg.HTTP.ReadTimeout,
			WriteTimeout:       cfg.HTTP.WriteTimeout,
			IdleTimeout:        cfg.HTTP.IdleTimeout,
			MaxHeaderBytes:     1 << 20,
			RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
			APIKeyHeader:       "X-API-Key",
			APIKeys:            cfg.HTTP.APIKeys,
		}, buildDependencies(studentRepo, trackRepo, groupRepo, projectRepo, configs, bus, conn, log))
		httpErrCh = httpServer.StartAsync()
		log.Info("http api listening", logger.String("address", httpServer.Address()))
	} else {
		log.Info("http api disabled")
	}

	// ── Scheduler ──

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = startScheduler(ctx, cfg, conn, cache, bus, log)
		if err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Info("scheduler disabled")
	}

	// ── Run until signalled or the HTTP server dies ──

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// Force exit if the deferred closers hang past the shutdown budget.
	timer := time.AfterFunc(cfg.App.ShutdownTimeout, func() {
		fmt.Fprintln(os.Stderr, "worker: shutdown timed out")
		os.Exit(1)
	})
	defer timer.Stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", logger.Err(err))
		}
		cancel()
	}

	if sched != nil {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Warn("scheduler stop", logger.Err(err))
		}
	}

	log.Info("worker stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// buildDependencies constructs every command, query and saga handler and
// hands them to the HTTP surface.
func buildDependencies(
	studentRepo *postgres.StudentRepository,
	trackRepo *postgres.TrackSelectionRepository,
	groupRepo *postgres.GroupRepository,
	projectRepo *postgres.ProjectRepository,
	configs shared.WorkflowConfigSource,
	bus shared.EventBus,
	conn *postgres.Connection,
	log *logger.Logger,
) httpapi.Dependencies {
	ids := command.NewUUIDGenerator()

	return httpapi.Dependencies{
		SyncStudent:        command.NewSyncStudentHandler(studentRepo),
		SelectTrack:        command.NewSelectTrackHandler(studentRepo, trackRepo, ids),
		RecordVerification: command.NewRecordVerificationHandler(trackRepo),
		CreateGroup:        command.NewCreateGroupHandler(groupRepo, studentRepo, configs, ids, bus),
		SendInvitations:    command.NewSendInvitationsHandler(groupRepo, studentRepo, ids, bus),
		RespondInvitation:  command.NewRespondInvitationHandler(groupRepo, bus),
		CloseRecruitment:   command.NewCloseRecruitmentHandler(groupRepo, bus),
		FinalizeGroup:      command.NewFinalizeGroupHandler(groupRepo, bus),
		DisbandGroup:       command.NewDisbandGroupHandler(groupRepo, bus),
		RegisterProject:    command.NewRegisterProjectHandler(projectRepo, groupRepo, studentRepo, configs, ids, bus),
		ClaimProject:       command.NewClaimProjectHandler(projectRepo, bus),
		AllocateFaculty:    command.NewAllocateFacultyHandler(projectRepo, groupRepo, studentRepo, ids, bus),

		InvitationInbox: query.NewInvitationInboxHandler(groupRepo),
		GroupRoster:     query.NewGroupRosterHandler(groupRepo, studentRepo),
		FacultyQueue:    query.NewFacultyQueueHandler(projectRepo),

		Promotion: saga.NewPromotionSaga(studentRepo, trackRepo, groupRepo, projectRepo, bus, ids, log),

		Readiness: conn.Ping,
		Logger:    log,
	}
}

// registerEventHandlers subscribes the notification handlers, honoring the
// per-category feature flags.
func registerEventHandlers(
	cfg *config.Config,
	bus shared.EventBus,
	notifier eventhandler.Notifier,
	groupRepo *postgres.GroupRepository,
	projectRepo *postgres.ProjectRepository,
	log *logger.Logger,
) error {
	if cfg.Features.IsEnabled(config.FeatureNotifyInvitations, nil) {
		if err := eventhandler.NewOnInvitationHandler(groupRepo, notifier, log).Register(bus); err != nil {
			return err
		}
	}
	if cfg.Features.IsEnabled(config.FeatureNotifyGroupStatus, nil) {
		if err := eventhandler.NewOnGroupStatusChangedHandler(groupRepo, notifier, log).Register(bus); err != nil {
			return err
		}
	}
	if cfg.Features.IsEnabled(config.FeatureNotifyAllocation, nil) {
		if err := eventhandler.NewOnFacultyAllocatedHandler(projectRepo, groupRepo, notifier, log).Register(bus); err != nil {
			return err
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

func startScheduler(
	ctx context.Context,
	cfg *config.Config,
	conn *postgres.Connection,
	cache *rediscache.Cache,
	bus shared.EventBus,
	log *logger.Logger,
) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	sched.OnJobComplete(func(result scheduler.JobResult) {
		if !result.Success {
			log.Warn("scheduled job failed",
				logger.String("job", result.JobName),
				logger.Duration("duration", result.Duration),
				logger.Err(result.Error))
		}
	})

	if cfg.Features.IsEnabled(config.FeatureReconcileReferences, nil) {
		reconcileSchedule, err := scheduler.ParseCronSchedule(cfg.Scheduler.ReconcileCron)
		if err != nil {
			return nil, fmt.Errorf("parse reconcile cron %q: %w", cfg.Scheduler.ReconcileCron, err)
		}

		var lock *rediscache.JobLock
		if cache != nil {
			lock = rediscache.NewJobLock(cache)
		}

		reconcile := jobs.NewReconcileReferencesJob(conn, bus, lock, log, jobs.ReconcileReferencesConfig{
			Timeout: cfg.Scheduler.JobTimeout,
		})
		if err := sched.Register(reconcile, reconcileSchedule); err != nil {
			return nil, err
		}
	}

	if err := sched.Start(ctx); err != nil {
		return nil, err
	}

	log.Info("scheduler started",
		logger.Int("jobs", len(sched.ListJobs())),
		logger.String("timezone", cfg.App.Timezone))

	return sched, nil
}
