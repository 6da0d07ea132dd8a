package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/logger"
)

// Pool defaults applied when the configuration leaves a setting at zero
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute

	connectAttempts = 5
	connectBackoff  = time.Second
)

// DB is the consultation history store
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger
}

// NewConnection opens the postgres pool and waits for the server to answer.
// The first ping is retried with a doubling backoff until ctx is done.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	applyPoolSettings(sqlDB, cfg)

	entry := log.WithComponent("database").WithFields(logrus.Fields{
		"host":   cfg.Host,
		"dbname": cfg.Name,
	})
	if err := pingWithRetry(ctx, sqlDB, connectAttempts, connectBackoff, entry); err != nil {
		sqlDB.Close()
		return nil, err
	}

	stats := sqlDB.Stats()
	entry.WithField("max_open", stats.MaxOpenConnections).Info("Consultation history database connected")
	return Wrap(sqlDB, cfg, log), nil
}

// Wrap adapts an existing *sql.DB, e.g. one opened by sqlmock in tests
func Wrap(sqlDB *sql.DB, cfg *config.DatabaseConfig, log *logger.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		config: cfg,
		logger: log,
	}
}

func applyPoolSettings(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := time.Duration(cfg.ConnMaxLifetime) * time.Second
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(maxIdle, maxOpen))
	sqlDB.SetConnMaxLifetime(lifetime)
}

func pingWithRetry(ctx context.Context, sqlDB *sql.DB, attempts int, backoff time.Duration, entry *logrus.Entry) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = sqlDB.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		entry.WithError(err).WithField("attempt", attempt).Warn("Database not reachable yet, retrying")
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
}

// buildConnectionString renders cfg as a postgres URL with credentials escaped
func buildConnectionString(cfg *config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
