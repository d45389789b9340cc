package types

import "time"

// ListenerInfo holds the runtime listening info of the gateway.
type ListenerInfo struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Snapshot is a point-in-time copy of the server counters.
type Snapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	ActiveSessions int64     `json:"active_sessions"`
	TotalAccepted  uint64    `json:"total_accepted"`
	MessagesSent   uint64    `json:"messages_sent"`
	BytesSent      uint64    `json:"bytes_sent"`
}

// SessionEvent describes a lifecycle step of one client session.
type SessionEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	ConnID     string    `json:"conn_id"`
	RemoteAddr string    `json:"remote_addr"`
	Kind       string    `json:"kind"`
	Count      int       `json:"count,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Session event kinds.
const (
	EventConnected    = "connected"
	EventMessageSent  = "message_sent"
	EventDisconnected = "disconnected"
	EventError        = "error"
)

// EventSink receives session lifecycle events. Implementations must not block.
type EventSink interface {
	PublishSessionEvent(ev *SessionEvent)
}
