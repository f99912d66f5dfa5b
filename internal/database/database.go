// internal/database/database.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"pos-device-service/internal/config"
)

// DB wraps the journal's PostgreSQL connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewConnection opens and pings the journal database
func NewConnection(cfg *config.Config, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.GetJournalDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Journal.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Journal.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Journal.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database %s:%d/%s: %w",
			cfg.Journal.Host, cfg.Journal.Port, cfg.Journal.DBName, err)
	}

	logger.Info("Journal database connected",
		zap.String("host", cfg.Journal.Host),
		zap.Int("port", cfg.Journal.Port),
		zap.String("database", cfg.Journal.DBName),
	)

	return &DB{DB: sqlDB, logger: logger}, nil
}

// Close closes the pool
func (db *DB) Close() error {
	db.logger.Info("Closing journal database")
	return db.DB.Close()
}

// HealthCheck pings the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
