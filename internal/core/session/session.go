package session

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telnet_testserver/internal/shared"
	"telnet_testserver/internal/shared/types"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateGreeting State = iota
	StateEmitting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateEmitting:
		return "emitting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Outcome tells why Serve returned.
type Outcome int

const (
	// OutcomeShutdown means the context was cancelled.
	OutcomeShutdown Outcome = iota
	// OutcomeDisconnected means the peer reset, aborted or closed the connection.
	OutcomeDisconnected
	// OutcomeFailed means any other error ended the session.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Options configures a session. Zero values fall back to defaults.
type Options struct {
	EmitInterval time.Duration
	// WriteTimeout bounds each write; 0 disables the deadline.
	WriteTimeout time.Duration
	Stats        *shared.Stats
	Events       types.EventSink
	// Now is the clock used for timestamps.
	Now func() time.Time
}

const defaultEmitInterval = 3 * time.Second

// Session owns one accepted connection for its whole lifetime.
type Session struct {
	id         string
	conn       *shared.CountedConn
	remoteAddr string
	opts       Options
	logger     zerolog.Logger

	// count is only touched by the Serve goroutine.
	count int
	state atomic.Int32
}

// New wraps conn. The session takes ownership of conn and closes it when Serve returns.
func New(id string, conn net.Conn, opts Options) *Session {
	if opts.EmitInterval <= 0 {
		opts.EmitInterval = defaultEmitInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var total *atomic.Uint64
	if opts.Stats != nil {
		total = opts.Stats.BytesCounter()
	}
	remoteAddr := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remoteAddr = addr.String()
	}
	return &Session{
		id:         id,
		conn:       shared.NewCountedConn(conn, total),
		remoteAddr: remoteAddr,
		opts:       opts,
		logger: log.With().
			Str("conn_id", id).
			Str("remote_addr", remoteAddr).
			Logger(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Serve writes the banner and then one message per interval until the peer
// goes away or ctx is cancelled. It never returns an error: every failure is
// logged and ends this session only.
func (s *Session) Serve(ctx context.Context) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A cancelled context must also unblock a write in progress.
	stopWatch := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})

	if s.opts.Stats != nil {
		s.opts.Stats.SessionOpened()
	}
	s.logger.Info().Msg("Client connected")
	s.publish(types.EventConnected, "", "")

	outcome := s.run(ctx)

	stopWatch()
	_ = s.conn.Close()
	s.state.Store(int32(StateClosed))
	if s.opts.Stats != nil {
		s.opts.Stats.SessionClosed()
	}
	s.logger.Debug().
		Str("outcome", outcome.String()).
		Int("messages", s.count).
		Uint64("bytes_sent", s.conn.BytesSent()).
		Msg("Session closed")
	return outcome
}

func (s *Session) run(ctx context.Context) Outcome {
	s.state.Store(int32(StateGreeting))
	if err := s.write([]byte(Banner)); err != nil {
		return s.fail(ctx, err)
	}
	s.logger.Info().Msg("Sent welcome")
	s.state.Store(int32(StateEmitting))

	timer := time.NewTimer(s.opts.EmitInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return s.fail(ctx, ctx.Err())
		}
		s.count++
		line, err := NewMessage(s.count, s.opts.Now()).Line()
		if err != nil {
			return s.fail(ctx, err)
		}
		if err := s.write(line); err != nil {
			return s.fail(ctx, err)
		}
		payload := string(line[:len(line)-len(lineEnding)])
		s.logger.Info().Int("count", s.count).Msgf("Sent to client: %s", payload)
		if s.opts.Stats != nil {
			s.opts.Stats.MessageSent()
		}
		s.publish(types.EventMessageSent, payload, "")

		timer.Reset(s.opts.EmitInterval)
		select {
		case <-ctx.Done():
			return s.fail(ctx, ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Session) write(p []byte) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(p)
	return err
}

// fail maps the error that ended the loop to an outcome and logs it.
func (s *Session) fail(ctx context.Context, err error) Outcome {
	switch {
	case ctx.Err() != nil:
		s.logger.Info().Msg("Client session cancelled by shutdown")
		s.publish(types.EventDisconnected, "", "shutdown")
		return OutcomeShutdown
	case IsDisconnect(err):
		s.logger.Info().Msg("Client disconnected")
		s.publish(types.EventDisconnected, "", err.Error())
		return OutcomeDisconnected
	default:
		s.logger.Error().Err(err).Msg("Error with client")
		s.publish(types.EventError, "", err.Error())
		return OutcomeFailed
	}
}

func (s *Session) publish(kind, payload, reason string) {
	if s.opts.Events == nil {
		return
	}
	s.opts.Events.PublishSessionEvent(&types.SessionEvent{
		Timestamp:  time.Now().UTC(),
		ConnID:     s.id,
		RemoteAddr: s.remoteAddr,
		Kind:       kind,
		Count:      s.count,
		Payload:    payload,
		Reason:     reason,
	})
}
