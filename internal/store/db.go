package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizes the connection pool shared by the scheduler and the API.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var DefaultPool = Pool{MaxOpen: 12, MaxIdle: 4, MaxLifetime: 30 * time.Minute, MaxIdleTime: 5 * time.Minute}

// Open connects with DefaultPool and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	return OpenPool(ctx, databaseURL, DefaultPool)
}

func OpenPool(ctx context.Context, databaseURL string, pool Pool) (*sql.DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(pool.MaxOpen)
	conn.SetMaxIdleConns(pool.MaxIdle)
	conn.SetConnMaxLifetime(pool.MaxLifetime)
	conn.SetConnMaxIdleTime(pool.MaxIdleTime)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}
