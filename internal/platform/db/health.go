package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	Healthy       bool  `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		Healthy:       stat.TotalConns() > 0,
	}
}

// HealthHandler reports service health, pinging the database and probing the
// shadow-coder tables so a half-migrated schema shows up as degraded.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	tables := []string{"case_fact", "compliance_prompt", "voice_note"}

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := GetPoolStats(pool)
		if err := pool.Ping(ctx); err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"service": "shadow-coder",
				"error":   err.Error(),
				"pool":    stats,
			})
		}

		tablesExist := true
		for _, tbl := range tables {
			if _, err := pool.Exec(ctx, `SELECT 1 FROM `+tbl+` LIMIT 1`); err != nil {
				tablesExist = false
				break
			}
		}

		status := "healthy"
		code := http.StatusOK
		if !tablesExist {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		return c.JSON(code, map[string]interface{}{
			"status":       status,
			"service":      "shadow-coder",
			"tables_exist": tablesExist,
			"pool":         stats,
		})
	}
}
