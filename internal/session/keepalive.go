package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultKeepAliveInterval is the period between liveness probes.
const DefaultKeepAliveInterval = 30 * time.Second

// KeepAlive probes p every interval until ctx is done or a probe fails.
// A failed probe is logged and ends the loop with a SESSION error; the
// upload workflow is not stopped by it.
func KeepAlive(ctx context.Context, p Prober, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if p.IsAlive(ctx) {
			logger.Debug("browser keep-alive ok")
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("browser keep-alive failed, stopping checks")
		return SessionError("keep-alive probe failed", nil)
	}
}
