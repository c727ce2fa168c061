package database

import (
	"context"
	"time"
)

// PoolHealth is the database section of the /health payload: one ping
// round-trip plus the pool pressure figures worth watching for a service
// that writes a handful of rows per pipeline run.
type PoolHealth struct {
	PingMillis int64 `json:"ping_ms"`
	OpenConns  int   `json:"open_connections"`
	InUse      int   `json:"in_use"`
	WaitCount  int64 `json:"wait_count"`
}

// CheckHealth pings the database and snapshots pool pressure. The returned
// stats are populated even when the ping fails, so a degraded health payload
// still shows the pool state.
func (c *Client) CheckHealth(ctx context.Context) (PoolHealth, error) {
	start := time.Now()
	err := c.db.PingContext(ctx)
	stats := c.db.Stats()
	return PoolHealth{
		PingMillis: time.Since(start).Milliseconds(),
		OpenConns:  stats.OpenConnections,
		InUse:      stats.InUse,
		WaitCount:  stats.WaitCount,
	}, err
}
