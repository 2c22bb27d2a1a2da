// Package storage picks the review store backend from configuration.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"app_reviews/internal/domain"
	"app_reviews/internal/shared"
	mysqlrepo "app_reviews/internal/storage/mysql"
	"app_reviews/internal/storage/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Open returns the store selected by cfg.StoreDriver and a func that
// releases it.
func Open(ctx context.Context, cfg shared.Config) (domain.ReviewStore, func() error, error) {
	switch cfg.StoreDriver {
	case DriverMySQL, "":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("sql.Open: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := pingWithRetry(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("db.Ping: %w", err)
		}
		log.Info().Str("driver", DriverMySQL).Msg("database connection ok")
		return mysqlrepo.New(db), db.Close, nil

	case DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("driver", DriverSQLite).Str("path", cfg.SQLitePath).Msg("database ready")
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// pingWithRetry waits for a database that is still starting, e.g. when
// both come up from the same compose file.
func pingWithRetry(ctx context.Context, db *sql.DB) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Msg("database not ready")
	})
}
