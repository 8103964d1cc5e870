package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/omnipos/utils"
)

const (
	maxRetries = 10
	retryDelay = 2 * time.Second
	pingTTL    = 5 * time.Second
)

// InitDB opens the ledger database for cfg.DBDriver.
func InitDB(ctx context.Context, cfg Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DBDSN), gormCfg)
		if err == nil {
			// sqlite allows a single writer
			var sqlDB *sql.DB
			if sqlDB, err = db.DB(); err == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DBDSN), gormCfg)
	case "postgres":
		var sqlDB *sql.DB
		sqlDB, err = connectPostgres(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	utils.InfoLogger.Printf("Connected to %s database", cfg.DBDriver)
	return db, nil
}

// connectPostgres opens a pgx pool and waits for the server to answer.
func connectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = db.PingContext(pctx)
			cancel()
			if err == nil {
				db.SetMaxOpenConns(25)
				db.SetConnMaxIdleTime(5 * time.Minute)
				return db, nil
			}
			_ = db.Close()
		}
		lastErr = err
		utils.ErrorLogger.Printf("Postgres not ready (attempt %d/%d): %v", i, maxRetries, err)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("db connect canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("db connect failed after %d attempts: %w", maxRetries, lastErr)
}
