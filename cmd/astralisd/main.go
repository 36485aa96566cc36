// Command astralisd runs the bot's backend: the job queue workers, the
// recurring schedule registry, and the operator HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/astralis-bot/astralis/internal/admin"
	"github.com/astralis-bot/astralis/internal/duels"
	"github.com/astralis-bot/astralis/internal/horoscope"
	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/leaderboard"
	"github.com/astralis-bot/astralis/internal/pairs"
	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/raids"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/internal/schedules"
	"github.com/astralis-bot/astralis/internal/storage"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/cache"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/db"
	"github.com/astralis-bot/astralis/pkg/health"
	"github.com/astralis-bot/astralis/pkg/logger"
	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/queue"
	"github.com/astralis-bot/astralis/pkg/redis"
	"github.com/astralis-bot/astralis/pkg/retry"
	"github.com/astralis-bot/astralis/pkg/schedule"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewWithSentry(cfg.Logger, jobs.LogExtractor)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Storage.
	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool, log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	// Outbound chat API with retry and edit throttling.
	api, err := platform.NewREST(cfg.Chat)
	if err != nil {
		return fmt.Errorf("configure chat client: %w", err)
	}
	invoker := retry.New(retry.WithLogger(log))

	projStore := projection.NewStore(pool)
	refresher := claim.New(projStore, api,
		claim.WithInvoker(invoker),
		claim.WithLogger(log),
	)
	defer refresher.Close()

	// Insert-only enqueuer for the services; the manager below owns the
	// workers. Keeping them separate breaks the construction cycle
	// between services and their own handlers.
	enqueuer, err := queue.NewClient(pool, queue.WithClientLogger(log))
	if err != nil {
		return fmt.Errorf("build queue client: %w", err)
	}
	refreshSvc := refresh.NewService(enqueuer, log)

	// Tenant settings, cached in Redis.
	settingsCache := cache.NewRedis[tenant.Settings](redisClient, cache.WithPrefix("astralis:"))
	tenants := tenant.NewService(pool, settingsCache, tenant.WithLogger(log))

	// Feature services.
	boards := leaderboard.NewService(pool, leaderboard.WithLogger(log))
	duelSvc := duels.NewService(pool, refreshSvc, enqueuer, boards,
		duels.WithWinPoints(cfg.DuelWinPoints),
		duels.WithLogger(log),
	)
	raidSvc := raids.NewService(pool, refreshSvc, boards, raids.WithLogger(log))
	pairSvc := pairs.NewService(pool, refreshSvc, pairs.WithLogger(log))
	horoSvc := horoscope.NewService(pool, horoscope.WithLogger(log))

	// Projections: one live message per feature surface.
	projLog := projection.WithLogger(log)
	scoreboardProj := duels.NewScoreboardProjection(duelSvc, projStore, refresher, api, tenants, projLog)
	cardProj := leaderboard.NewCardProjection(boards, projStore, refresher, api, tenants, projLog)
	statusProj := raids.NewStatusProjection(raidSvc, projStore, refresher, api, tenants, projLog)
	dashboardProj := pairs.NewDashboardProjection(pairSvc, projStore, refresher, api, tenants, projLog)
	postProj := horoscope.NewPostProjection(projStore, refresher, api, tenants, projLog)

	// Job manager with every handler registration.
	managerOpts := []queue.Option{
		queue.WithLogger(log),
		queue.WithMaxWorkers(cfg.QueueWorkers),
	}
	managerOpts = append(managerOpts, duels.QueueOptions(
		duels.NewRefreshScoreboardTask(scoreboardProj),
		duels.NewCloseRoundTask(duelSvc),
	)...)
	managerOpts = append(managerOpts, leaderboard.QueueOptions(
		leaderboard.NewRefreshCardTask(cardProj),
		leaderboard.NewMonthlyTickTask(boards, refreshSvc, log),
	)...)
	managerOpts = append(managerOpts, raids.QueueOptions(
		raids.NewRefreshStatusTask(statusProj),
		raids.NewExpireSweepTask(raidSvc, log),
	)...)
	managerOpts = append(managerOpts, pairs.QueueOptions(
		pairs.NewRefreshDashboardTask(dashboardProj),
	)...)
	managerOpts = append(managerOpts, horoscope.QueueOptions(
		horoscope.NewWeeklyTickTask(horoSvc, enqueuer, log),
		horoscope.NewPostWeekTask(horoSvc, postProj, log),
	)...)

	manager, err := queue.NewManager(pool, managerOpts...)
	if err != nil {
		return fmt.Errorf("build queue manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start queue manager: %w", err)
	}

	// Recurring schedules, reconciled against persisted toggles.
	defs, err := schedules.Definitions()
	if err != nil {
		return fmt.Errorf("load schedule definitions: %w", err)
	}
	registry, err := schedule.NewRegistry(defs, storage.NewScheduleStore(pool), manager, log)
	if err != nil {
		return fmt.Errorf("build schedule registry: %w", err)
	}
	if err := registry.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile schedules: %w", err)
	}

	// Operator HTTP surface.
	checks := health.Checks{
		"postgres": db.Healthcheck(pool),
		"redis":    redis.Healthcheck(redisClient),
	}
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: admin.NewServer(registry, tenants, checks, log).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin server starting", slog.String("address", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown: stop accepting HTTP, drain workers, close
	// connections.
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := manager.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	refresher.Close()
	if err := redis.Shutdown(redisClient)(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := db.Shutdown(pool)(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		log.Error("shutdown completed with errors")
		return errors.Join(errs...)
	}
	log.Info("shutdown completed")
	return nil
}
