package app

import (
	"context"
	"time"

	"telnet_testserver/internal/shared/logger"
)

// statsLoop pushes a counters snapshot to the monitor hub periodically.
func (s *AppServer) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	var lastSent uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.stats.Snapshot()
			if snap.MessagesSent != lastSent {
				logger.Debug().
					Int("active_sessions", int(snap.ActiveSessions)).
					Uint64("messages_sent", snap.MessagesSent).
					Msg("Stats tick")
				lastSent = snap.MessagesSent
			}
			s.hub.BroadcastStats(snap)
		}
	}
}
