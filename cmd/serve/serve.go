// Package serve implements the long-running newsflow service: the crawl
// scheduler, stale queue recovery, and the nightly archive cron.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/cmd/common"
	"github.com/jonesrussell/newsflow/internal/archive"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/scheduler"
	"github.com/jonesrussell/newsflow/internal/worker"
)

const (
	queueRecoveryJobID    = "queue_stale_recovery"
	queueRecoveryInterval = 5 * time.Minute
	shutdownTimeout       = 30 * time.Second
)

// Command returns the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl scheduler and background services",
		Long: `serve runs newsflow as a long-lived process: every active crawler is
scheduled at its configured interval, stuck queue leases are recovered
periodically, and the archive cron runs nightly when enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	deps, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer deps.Close()
	log := deps.Logger

	if err := database.EnsureSchema(ctx, deps.DB); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	registry, err := deps.Registry()
	if err != nil {
		return err
	}

	exec, err := deps.Executor(registry)
	if err != nil {
		return err
	}
	if err := exec.RecoverAtStartup(ctx); err != nil {
		return fmt.Errorf("failed to recover crawler state: %w", err)
	}

	configs := database.NewCrawlerConfigRepository(deps.DB)
	if err := registry.SyncToDB(ctx, configs, log); err != nil {
		return fmt.Errorf("failed to sync crawler registry: %w", err)
	}

	location, err := time.LoadLocation(deps.Config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", deps.Config.Scheduler.Timezone, err)
	}

	// The executor applies each crawler's own timeout; the pool does not
	// impose a second cap.
	pool := worker.NewPool(worker.Config{
		PoolSize:     deps.Config.Scheduler.PoolSize,
		DrainTimeout: shutdownTimeout,
	}, log)
	if err := pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	sched := scheduler.New(pool, log,
		scheduler.WithCheckInterval(deps.Config.Scheduler.CheckInterval),
		scheduler.WithMisfireGrace(deps.Config.Scheduler.MisfireGrace),
	)

	// The scheduler owns next-run times; executions stamp them back onto
	// the crawler rows so operators see them without asking the scheduler.
	exec.SetNextRunFunc(func(crawlerName string) *time.Time {
		next, err := sched.NextRunTime(crawlerName)
		if err != nil {
			return nil
		}
		return &next
	})

	active, err := configs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active crawlers: %w", err)
	}
	for _, cc := range active {
		name := cc.Name
		interval := time.Duration(cc.IntervalMinutes) * time.Minute
		err := sched.Add(name, interval, func(jobCtx context.Context) error {
			return exec.Execute(jobCtx, name)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule crawler %s: %w", name, err)
		}
		log.Info("crawler scheduled",
			logger.String("crawler", name),
			logger.Duration("interval", interval),
		)
	}

	queueSvc := deps.QueueService()
	staleAfter := time.Duration(deps.Config.Queue.StaleMinutes) * time.Minute
	err = sched.Add(queueRecoveryJobID, queueRecoveryInterval, func(jobCtx context.Context) error {
		n, err := queueSvc.ResetStaleProcessing(jobCtx, staleAfter)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("recovered stale queue leases", logger.Int("count", n))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule queue recovery: %w", err)
	}

	sched.Start()

	var cron *archive.Cron
	if deps.Config.Archive.AutoEnabled {
		engine, err := deps.ArchiveEngine()
		if err != nil {
			return err
		}
		cron = archive.NewCron(engine, deps.Config.Archive, location, log)
		if err := cron.Start(); err != nil {
			return fmt.Errorf("failed to start archive cron: %w", err)
		}
	}

	log.Info("newsflow service started",
		logger.Int("crawlers", len(active)),
		logger.String("timezone", location.String()),
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if cron != nil {
		cron.Stop()
	}
	sched.Stop(shutdownCtx)
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn("worker pool drain incomplete", logger.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}
