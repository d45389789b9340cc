package telnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gotelnet "github.com/reiver/go-telnet"
	"github.com/rs/zerolog"

	"telnet_testserver/internal/shared/logger"
)

// ErrConnectionClosed is returned by a single connection attempt when the server closes the stream.
var ErrConnectionClosed = errors.New("connection closed")

// Handler receives every payload line, terminator included, with Telnet
// commands already removed. Returning an error ends the current
// connection and triggers a reconnect.
type Handler func(data []byte) error

// Client reads a Telnet stream and reconnects with exponential backoff.
type Client struct {
	// OnConnect, if set, runs after every successful dial, before any data
	// is delivered.
	OnConnect func()

	cfg    LinkConfig
	logger zerolog.Logger
}

func NewClient(cfg LinkConfig) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		logger: logger.WithComponent("telnet-client").With().Str("server", cfg.Address()).Logger(),
	}, nil
}

// Run connects and delivers data to handler until ctx is cancelled (nil) or
// the reconnect budget is exhausted (the last error).
func (c *Client) Run(ctx context.Context, handler Handler) error {
	attempts := 0
	delay := c.cfg.InitialReconnectDelay

	for {
		err := c.connectAndReceive(ctx, handler)
		if ctx.Err() != nil {
			c.logger.Info().Msg("Telnet client stopped")
			return nil
		}
		c.logger.Error().Err(err).Msg("Telnet connection error")

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			c.logger.Error().Int("max_attempts", c.cfg.MaxReconnectAttempts).Msg("Maximum reconnection attempts reached")
			return err
		}
		attempts++
		c.logger.Warn().Int("attempt", attempts).Dur("delay", delay).Msg("Attempting reconnection")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info().Msg("Telnet client stopped")
			return nil
		case <-timer.C:
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// dial wraps gotelnet.DialTo, which cannot be cancelled, so a cancelled ctx
// abandons the attempt and closes the conn if it arrives later.
func dial(ctx context.Context, addr string) (*gotelnet.Conn, error) {
	type result struct {
		conn *gotelnet.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := gotelnet.DialTo(addr)
		ch <- result{conn: conn, err: err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (c *Client) connectAndReceive(ctx context.Context, handler Handler) error {
	c.logger.Info().Msg("Connecting to Telnet server")
	conn, err := dial(ctx, c.cfg.Address())
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	c.logger.Info().Msg("Telnet connection established")
	if c.OnConnect != nil {
		c.OnConnect()
	}

	// gotelnet's Read consumes option negotiation and sub-negotiation itself,
	// so negotiation-only traffic never produces a chunk. Its Read also only
	// returns once p is full: read a byte at a time (the reader underneath is
	// buffered) and cut chunks at line ends.
	var b [1]byte
	chunk := make([]byte, 0, 256)
	oversized := false

	deliver := func() error {
		defer func() {
			chunk = chunk[:0]
			oversized = false
		}()
		if oversized {
			c.logger.Warn().Int("limit", c.cfg.MaxMessageSize).Msg("Message exceeds size limit, skipping")
			return nil
		}
		if herr := handler(append([]byte(nil), chunk...)); herr != nil {
			return fmt.Errorf("handler: %w", herr)
		}
		return nil
	}

	for {
		n, err := conn.Read(b[:])
		if n > 0 {
			if !oversized {
				chunk = append(chunk, b[0])
				if len(chunk) > c.cfg.MaxMessageSize {
					oversized = true
					chunk = chunk[:0]
				}
			}
			if b[0] == '\n' {
				if derr := deliver(); derr != nil {
					return derr
				}
			}
		}
		if err != nil {
			if ctx.Err() == nil && (len(chunk) > 0 || oversized) {
				if derr := deliver(); derr != nil {
					return derr
				}
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info().Msg("Telnet connection closed by server")
				return ErrConnectionClosed
			}
			return err
		}
	}
}
