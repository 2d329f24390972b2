package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/klear-brokerage/internal/config"
	"github.com/ksred/klear-brokerage/internal/database/migrations"
)

// NewDatabase opens the configured database, retrying the connection with exponential
// backoff until cfg.ConnectTimeout elapses, and runs migrations
func NewDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var db *gorm.DB

	boff := backoff.NewExponentialBackOff()
	if cfg.ConnectTimeout > 0 {
		boff.MaxElapsedTime = cfg.ConnectTimeout
	}

	err := backoff.Retry(func() error {
		var err error
		db, err = open(cfg)
		if err != nil {
			log.Warn().Err(err).Str("driver", cfg.Driver).Msg("database connection failed, retrying")
		}
		return err
	}, boff)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// NewInMemoryDatabase returns a migrated sqlite database that lives as long as its single connection
func NewInMemoryDatabase() (*gorm.DB, error) {
	return NewDatabase(config.DatabaseConfig{
		Driver:         "sqlite",
		DSN:            ":memory:",
		ConnectTimeout: time.Second,
	})
}

func open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unsupported database driver %q", cfg.Driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if isMemory(cfg) {
		// every new connection to :memory: would see an empty database
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func isMemory(cfg config.DatabaseConfig) bool {
	return cfg.Driver != "postgres" && (cfg.DSN == ":memory:" || strings.Contains(cfg.DSN, "mode=memory"))
}
