// Package common holds the bootstrap shared by every newsflow subcommand:
// configuration loading, logger construction, and database connections.
package common

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// Deps bundles the dependencies shared across subcommands. The operational
// database is always connected; the analytics database opens on demand.
type Deps struct {
	Config *config.Config
	Logger logger.Logger
	DB     *sqlx.DB

	analyticsDB *sqlx.DB
}

// Bootstrap loads configuration, builds the logger, and connects the
// operational database.
func Bootstrap() (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.Must(logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.Logger.Development,
	})

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to operational database: %w", err)
	}

	return &Deps{Config: cfg, Logger: log, DB: db}, nil
}

// OpenAnalytics connects the analytics database, reusing an existing
// connection on repeated calls.
func (d *Deps) OpenAnalytics() (*sqlx.DB, error) {
	if d.analyticsDB != nil {
		return d.analyticsDB, nil
	}
	db, err := database.Connect(d.Config.Analytics)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to analytics database: %w", err)
	}
	d.analyticsDB = db
	return db, nil
}

// Close releases every open connection and flushes the logger.
func (d *Deps) Close() {
	if d.analyticsDB != nil {
		if err := d.analyticsDB.Close(); err != nil {
			d.Logger.Warn("failed to close analytics database", logger.Error(err))
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Warn("failed to close operational database", logger.Error(err))
	}
	_ = d.Logger.Sync()
}
