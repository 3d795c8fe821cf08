package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/config"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/migrations"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

const (
	maxRetries       = 5
	connectTimeout   = 5 * time.Second
	initialBackoff   = 500 * time.Millisecond
	migrationTimeout = 30 * time.Second
)

type App struct {
	Config *config.Config
	DB     *pgxpool.Pool
}

func NewApp(cfg *config.Config) (*App, error) {
	dbPool, err := ConnectWithRetry(cfg.DBUrl)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()
	if err := migrations.Apply(ctx, dbPool); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return &App{
		Config: cfg,
		DB:     dbPool,
	}, nil
}

// ConnectWithRetry opens the pool, backing off exponentially between
// failed attempts.
func ConnectWithRetry(databaseURL string) (*pgxpool.Pool, error) {
	var (
		dbPool  *pgxpool.Pool
		err     error
		backoff = initialBackoff
	)

	for i := 1; i <= maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		dbPool, err = newDBPool(ctx, databaseURL)
		cancel()
		if err == nil {
			utils.Logger.Infof("Successfully connected to database on attempt %d", i)
			return dbPool, nil
		}

		utils.Logger.WithError(err).Warnf(
			"Failed to connect to database on attempt %d/%d. Retrying in %v...",
			i, maxRetries, backoff,
		)

		if i == maxRetries {
			break
		}

		time.Sleep(backoff)
		backoff *= 2
	}

	return nil, fmt.Errorf("unable to connect to database after %d attempts: %w", maxRetries, err)
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		utils.Logger.Info("Database connection closed.")
	}
}

// newDBPool constructs the pgx pool.
//
//   - MaxConnIdleTime closes idle sockets before an upstream proxy does
//   - HealthCheckPeriod keeps every connection warm
func newDBPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConnIdleTime = 2 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	return pgxpool.ConnectConfig(ctx, cfg)
}
