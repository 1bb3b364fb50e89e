package db

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolReport summarizes connection pool pressure for the health endpoint.
type PoolReport struct {
	Acquired  int32  `json:"acquired"`
	Idle      int32  `json:"idle"`
	Max       int32  `json:"max"`
	WaitCount int64  `json:"wait_count"`
	WaitTotal string `json:"wait_total"`
	Saturated bool   `json:"saturated"`
}

// Report snapshots the pool. WaitCount is the number of acquires that
// found no free connection; a rising count means the pool is too small
// for the ingest burst.
func Report(pool *pgxpool.Pool) PoolReport {
	stat := pool.Stat()
	return PoolReport{
		Acquired:  stat.AcquiredConns(),
		Idle:      stat.IdleConns(),
		Max:       stat.MaxConns(),
		WaitCount: stat.EmptyAcquireCount(),
		WaitTotal: stat.AcquireDuration().String(),
		Saturated: stat.AcquiredConns() >= stat.MaxConns(),
	}
}

// HealthHandler reports database reachability and pool pressure. An
// unreachable database answers 503 so a load balancer can drain the
// instance.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		report := Report(pool)
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   report,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status": "healthy",
			"pool":   report,
		})
	}
}
