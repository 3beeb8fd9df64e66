package database

import (
	"context"
	"fmt"
	"time"

	"formflow/internal/model"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Mode string

const (
	ModeDatabase Mode = "database"
	ModeDemo     Mode = "demo"
)

// zapWriter feeds gorm's logger into zap.
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

// gormConfig logs slow queries and failures through logger. A missing row is an
// expected outcome of lookups and is not logged.
func gormConfig(logger *zap.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(zapWriter{log: logger.Named("gorm").Sugar()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// NewConnection opens a PostgreSQL connection pool and migrates the schema.
func NewConnection(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(logger))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewMemoryConnection opens a named in-memory SQLite database. The pool is pinned
// to one connection so the database lives as long as the pool does.
func NewMemoryConnection(name string, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(logger))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Connect retries PostgreSQL with exponential backoff. When every attempt fails and
// demoFallback is set, it returns a seeded in-memory database in demo mode instead.
func Connect(ctx context.Context, dsn string, retries int, demoFallback bool, logger *zap.Logger) (*gorm.DB, Mode, error) {
	var db *gorm.DB
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		var openErr error
		db, openErr = NewConnection(dsn, logger)
		return openErr
	}, policy, func(err error, next time.Duration) {
		logger.Warn("database connection failed, retrying", zap.Error(err), zap.Duration("next", next))
	})
	if err == nil {
		return db, ModeDatabase, nil
	}
	if !demoFallback {
		return nil, "", fmt.Errorf("connect to database: %w", err)
	}

	logger.Warn("database unreachable, starting in demo mode", zap.Error(err))
	db, err = NewMemoryConnection("formflow_demo", logger)
	if err != nil {
		return nil, "", fmt.Errorf("open demo database: %w", err)
	}
	if err := SeedReferenceData(ctx, db); err != nil {
		return nil, "", err
	}
	if _, err := SeedDemoUsers(ctx, db); err != nil {
		return nil, "", err
	}
	return db, ModeDemo, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Form{},
		&model.UserFormPermission{},
		&model.Department{},
		&model.Submission{},
		&model.WorkflowStep{},
		&model.Signature{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
