package database

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type HealthStatus struct {
	Status    string `json:"status"` // ok or degraded
	Mode      Mode   `json:"mode"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// CheckHealth races a trivial query against timeout and never blocks longer than that.
func CheckHealth(ctx context.Context, db *gorm.DB, mode Mode, timeout time.Duration) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		var one int
		done <- db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
	}()

	status := HealthStatus{Status: "ok", Mode: mode}
	select {
	case err := <-done:
		if err != nil {
			status.Status = "degraded"
			status.Error = err.Error()
		}
	case <-ctx.Done():
		status.Status = "degraded"
		status.Error = "database health check timed out"
	}
	status.LatencyMS = time.Since(start).Milliseconds()
	return status
}
