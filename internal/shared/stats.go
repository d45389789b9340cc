package shared

import (
	"sync/atomic"
	"time"

	"telnet_testserver/internal/shared/types"
)

// Stats holds the process-wide counters. All methods are safe for concurrent use.
type Stats struct {
	active       atomic.Int64
	accepted     atomic.Uint64
	messagesSent atomic.Uint64
	bytesSent    atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) SessionOpened() {
	s.accepted.Add(1)
	s.active.Add(1)
}

func (s *Stats) SessionClosed() {
	s.active.Add(-1)
}

func (s *Stats) MessageSent() {
	s.messagesSent.Add(1)
}

// BytesCounter exposes the shared byte counter for CountedConn.
func (s *Stats) BytesCounter() *atomic.Uint64 {
	return &s.bytesSent
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() *types.Snapshot {
	return &types.Snapshot{
		Timestamp:      time.Now().UTC(),
		ActiveSessions: s.active.Load(),
		TotalAccepted:  s.accepted.Load(),
		MessagesSent:   s.messagesSent.Load(),
		BytesSent:      s.bytesSent.Load(),
	}
}
