package config

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crowpro-api/models"
)

// InitDB opens the PostgreSQL connection pool and migrates the schema when enabled.
func InitDB(cfg DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:         NewGormLogger(log, cfg.SlowThreshold),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := setupJoinTables(db); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func setupJoinTables(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Publication{}, "Authors", &models.PublicationAuthor{}); err != nil {
		return fmt.Errorf("setup publication_authors: %w", err)
	}
	return nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := setupJoinTables(db); err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Publication{},
		&models.PublicationAuthor{},
		&models.RequestLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

// NewGormLogger routes gorm's warnings and slow queries through slog.
func NewGormLogger(log *slog.Logger, slow time.Duration) logger.Interface {
	return logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
