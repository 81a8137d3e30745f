package database

import (
	"context"
	"database/sql"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/env"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// Config selects the backing store. Postgres is the production target;
// sqlite exists for local single-process development only and does not
// provide row-level locking.
type Config struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	File     string // sqlite database file
}

// ConfigFromEnv assembles a Config from POSTGRES_*/DATABASE_* variables.
func ConfigFromEnv(logg *logger.Logger) Config {
	return Config{
		Driver:   env.Get("DATABASE_DRIVER", "postgres", logg),
		Host:     env.Get("POSTGRES_HOST", "localhost", logg),
		Port:     env.Get("POSTGRES_PORT", "5432", logg),
		User:     env.Get("POSTGRES_USER", "postgres", logg),
		Password: env.Get("POSTGRES_PASSWORD", "", logg),
		Name:     env.Get("POSTGRES_NAME", "gaugetrack", logg),
		SSLMode:  env.Get("POSTGRES_SSLMODE", "disable", logg),
		File:     env.Get("SQLITE_FILE", "gaugetrack.db", logg),
	}
}

// Service owns the GORM handle plus the transaction runner derived from
// the server's dialect. Repos receive DB(); services receive Transaction.
type Service struct {
	db      *gorm.DB
	log     *logger.Logger
	txFn    TransactionFunc
	dialect Dialect
}

// Open connects with exponential backoff, runs migrations, and probes the
// dialect once so every transaction afterwards uses the right runner.
func Open(cfg Config, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "Database")

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gormCfg := &gorm.Config{Logger: gormLog}

	var db *gorm.DB
	connect := func() error {
		var err error
		switch cfg.Driver {
		case "sqlite":
			db, err = gorm.Open(sqlite.Open(cfg.File), gormCfg)
		default:
			dsn := fmt.Sprintf(
				"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
				cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode,
			)
			db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, bo); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	txFn, dialect, err := GetTransactionFunc(db)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, dialect, serviceLog); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	serviceLog.Info("database ready", "driver", cfg.Driver, "dialect", dialect.String())
	return &Service{db: db, log: serviceLog, txFn: txFn, dialect: dialect}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Dialect() Dialect { return s.dialect }

// Transaction runs fn inside one storage transaction, committing on nil
// and rolling back on error. Optional TxOptions set the isolation level.
func (s *Service) Transaction(ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return s.txFn(ctx, fn, opts...)
}

// Ping verifies the underlying connection is alive. Used by readiness
// probes.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
