package main

import (
	"os"

	"github.com/eggnunes/crmidea-sub003/internal/application/factories/infrastructure"
	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/migration"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		config.Log{}.NewLogger("migrate").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(cfg.App.Name).With("process", "migrate")

	pgConfig := infrastructure.NewFactory(cfg, logger).PostgresConfig()
	cmd := migration.Command(pgConfig.DSN)
	if err := cmd.Execute(); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}
