package main

import (
	"flag"

	"github.com/qcom/mobileauth/internal/config"
	"github.com/qcom/mobileauth/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	var dialect, dsn string
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dialect, dsn = database.DialectPostgres, cfg.Database.URL
	case config.DriverSQLite:
		dialect, dsn = database.DialectSQLite, cfg.Database.SQLitePath
	default:
		logger.WithField("driver", cfg.Database.Driver).Fatal("Migrations only apply to SQL storage drivers")
	}

	if err := database.Migrate(dialect, dsn, *direction); err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}

	logger.WithFields(logrus.Fields{
		"dialect":   dialect,
		"direction": *direction,
	}).Info("Migrations applied")
}
