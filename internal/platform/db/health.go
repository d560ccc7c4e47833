package db

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const healthTimeout = 5 * time.Second

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// RowCounter reports how many rows a table holds.
type RowCounter func(ctx context.Context) (int, error)

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	// Status is "healthy", "degraded" (a reference table is empty, so writes
	// that depend on it will fail) or "unhealthy".
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Tables map[string]int `json:"tables,omitempty"`
	Pool   PoolStats      `json:"pool"`
}

// LivenessHandler answers GET /health without touching the database.
func LivenessHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HealthHandler pings the pool and counts the rows of each reference table.
// Anything but "healthy" answers 503 so load balancers hold traffic until the
// reference data is loaded.
func HealthHandler(pool *pgxpool.Pool, tables map[string]RowCounter) echo.HandlerFunc {
	return healthHandler(pool.Ping, func() PoolStats { return poolStats(pool) }, tables)
}

func healthHandler(ping func(context.Context) error, stats func() PoolStats, tables map[string]RowCounter) echo.HandlerFunc {
	names := lo.Keys(tables)
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		report := checkHealth(ctx, ping, names, tables)
		report.Pool = stats()

		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}

func checkHealth(ctx context.Context, ping func(context.Context) error, names []string, tables map[string]RowCounter) HealthReport {
	if err := ping(ctx); err != nil {
		return HealthReport{Status: "unhealthy", Error: err.Error()}
	}

	report := HealthReport{Status: "healthy", Tables: make(map[string]int, len(names))}
	for _, name := range names {
		n, err := tables[name](ctx)
		if err != nil {
			return HealthReport{Status: "unhealthy", Error: fmt.Sprintf("count %s: %v", name, err), Tables: report.Tables}
		}
		report.Tables[name] = n
		if n == 0 {
			report.Status = "degraded"
		}
	}
	return report
}
