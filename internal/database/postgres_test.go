package database_test

import (
	"testing"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/database"
)

func TestDSN(t *testing.T) {
	dsn := database.DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "newsflow",
		Password: "secret",
		Name:     "newsflow_analytics",
		SSLMode:  "require",
	})

	want := "host=db.internal port=5433 user=newsflow password=secret dbname=newsflow_analytics sslmode=require"
	if dsn != want {
		t.Errorf("DSN() = %q, want %q", dsn, want)
	}
}
