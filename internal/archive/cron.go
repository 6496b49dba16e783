package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// Cron runs the daily auto-archive: every source's articles crawled
// yesterday move to cold storage.
type Cron struct {
	engine   *Engine
	cfg      config.ArchiveConfig
	location *time.Location
	logger   logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewCron creates the auto-archive cron. location is the scheduler timezone.
func NewCron(engine *Engine, cfg config.ArchiveConfig, location *time.Location, log logger.Logger) *Cron {
	if location == nil {
		location = time.UTC
	}
	return &Cron{engine: engine, cfg: cfg, location: location, logger: log}
}

// Start registers the daily job. It is a no-op when auto-archive is disabled
// or the cron is already running.
func (c *Cron) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.AutoEnabled {
		c.logger.Info("auto archive disabled")
		return nil
	}
	if c.started {
		return nil
	}

	c.cron = cron.New(cron.WithLocation(c.location))
	spec := fmt.Sprintf("%d %d * * *", c.cfg.AutoMinute, c.cfg.AutoHour)
	if _, err := c.cron.AddFunc(spec, c.archiveYesterday); err != nil {
		return fmt.Errorf("failed to schedule auto archive: %w", err)
	}

	c.cron.Start()
	c.started = true
	c.logger.Info("auto archive scheduled",
		logger.Int("hour", c.cfg.AutoHour),
		logger.Int("minute", c.cfg.AutoMinute),
		logger.String("timezone", c.location.String()),
	)
	return nil
}

// Stop halts the cron and waits for a running job to finish.
func (c *Cron) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	<-c.cron.Stop().Done()
	c.started = false
	c.logger.Info("auto archive stopped")
}

func (c *Cron) archiveYesterday() {
	yesterday := time.Now().In(c.location).AddDate(0, 0, -1)
	c.logger.Info("auto archive run starting",
		logger.String("day", yesterday.Format("2006-01-02")),
	)

	reports, err := c.engine.ArchiveAllSources(context.Background(), OnDay(yesterday))
	if err != nil {
		c.logger.Error("auto archive run failed", logger.Error(err))
		return
	}

	total := 0
	for _, r := range reports {
		total += r.ArchivedCount
	}
	c.logger.Info("auto archive run finished",
		logger.Int("sources", len(reports)),
		logger.Int("articles", total),
	)
}
