// Package db holds the Postgres plumbing shared by the server and the
// migrate CLI: pool construction, the database health endpoint, and the
// migration runner.
package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 2 * time.Second

// NewPool opens a pgx pool sized from configuration and verifies the
// database is reachable before handing it back.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PoolHealth is the connection usage reported by the database health
// endpoint.
type PoolHealth struct {
	Healthy  bool  `json:"healthy"`
	Acquired int32 `json:"acquired"`
	Idle     int32 `json:"idle"`
	Max      int32 `json:"max"`
}

func poolHealth(pool *pgxpool.Pool) PoolHealth {
	st := pool.Stat()
	return PoolHealth{
		Healthy:  st.TotalConns() > 0,
		Acquired: st.AcquiredConns(),
		Idle:     st.IdleConns(),
		Max:      st.MaxConns(),
	}
}

// HealthHandler reports database reachability and pool usage. The server
// registers it only when running against Postgres.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		health := poolHealth(pool)
		if err := pool.Ping(ctx); err != nil {
			health.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  err.Error(),
				"pool":   health,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ok",
			"pool":   health,
		})
	}
}
