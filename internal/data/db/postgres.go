package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	// SlowQuery is the threshold for slow-query warnings. Zero means 1s.
	SlowQuery time.Duration
}

// Service owns the gorm handle for either backend.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func gormConfig(log *logger.Logger, slow time.Duration) *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		Logger:                                   newGormLogger(log, slow),
	}
}

func NewPostgresService(log *logger.Logger, cfg Config) (*Service, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: missing DSN")
	}
	log = log.With("service", "PostgresService")
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig(log, cfg.SlowQuery))
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return &Service{db: gdb, log: log}, nil
}

// NewSQLiteService opens a sqlite file for local single-process runs. Writes
// are serialized through a single connection.
func NewSQLiteService(log *logger.Logger, path string) (*Service, error) {
	log = log.With("service", "SQLiteService")
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig(log, 0))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return &Service{db: gdb, log: log}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	models := types.Models()
	s.log.Info("Auto migrating tables", "models", len(models))
	if err := s.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
