package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"telnet_testserver/internal/core/session"
	"telnet_testserver/internal/shared"
	"telnet_testserver/internal/shared/logger"
	"telnet_testserver/internal/shared/types"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

var errNotInitialized = errors.New("gateway listener is not initialized")

// Gateway owns the listening socket and hands every accepted connection to
// its own session goroutine.
type Gateway struct {
	listener     net.Listener
	listenerInfo *types.ListenerInfo // 存储监听信息
	host         string
	listenPort   int
	maxConns     int
	sessionOpts  session.Options

	// sessionCtx is the parent of every session; cancelling it unwinds them all.
	sessionCtx    context.Context
	cancelSession context.CancelFunc
	closeOnce     sync.Once
	sessions      sync.WaitGroup
	serving       atomic.Bool
	done          chan struct{}

	logger zerolog.Logger
}

func New(cfg types.ServerConf, stats *shared.Stats, events types.EventSink) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		host:       cfg.Host,
		listenPort: cfg.Port,
		maxConns:   cfg.MaxConnections,
		sessionOpts: session.Options{
			EmitInterval: cfg.EmitInterval,
			WriteTimeout: cfg.WriteTimeout,
			Stats:        stats,
			Events:       events,
		},
		sessionCtx:    ctx,
		cancelSession: cancel,
		done:          make(chan struct{}),
		logger:        logger.WithComponent("gateway"),
	}
}

// InitializeListener 负责监听端口并准备服务，但不阻塞。
// 它返回实际监听的端口号 (port 0 picks a free one).
func (g *Gateway) InitializeListener() (int, error) {
	listenAddr := net.JoinHostPort(g.host, strconv.Itoa(g.listenPort))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return 0, fmt.Errorf("gateway failed to listen on %s: %w", listenAddr, err)
	}
	return g.Attach(listener), nil
}

// Attach makes the gateway serve on an existing listener and returns its port.
func (g *Gateway) Attach(listener net.Listener) int {
	info := &types.ListenerInfo{Address: listener.Addr().String()}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		info.Address = tcpAddr.IP.String()
		info.Port = tcpAddr.Port
	}
	if g.maxConns > 0 {
		listener = netutil.LimitListener(listener, g.maxConns)
	}
	g.listener = listener
	g.listenerInfo = info
	g.logger.Info().
		Str("listen_addr", net.JoinHostPort(info.Address, strconv.Itoa(info.Port))).
		Int("max_connections", g.maxConns).
		Msg("Gateway is listening")
	return info.Port
}

// GetListenerInfo 返回网关的监听信息。
func (g *Gateway) GetListenerInfo() *types.ListenerInfo {
	return g.listenerInfo
}

// Serve runs the accept loop until ctx is cancelled or Close is called, then
// waits for every session to unwind. It returns nil on a requested stop and
// an error only when the listener fails for good.
func (g *Gateway) Serve(ctx context.Context) error {
	if g.listener == nil {
		return errNotInitialized
	}
	if !g.serving.CompareAndSwap(false, true) {
		return errors.New("gateway is already serving")
	}
	defer close(g.done)
	stop := context.AfterFunc(ctx, g.shutdown)
	defer stop()

	err := g.acceptLoop()
	g.shutdown()
	g.sessions.Wait()
	g.logger.Info().Msg("Gateway has been shut down")
	return err
}

func (g *Gateway) acceptLoop() error {
	var backoff time.Duration
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if g.sessionCtx.Err() != nil {
				g.logger.Info().Msg("Gateway listener is closing.")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("gateway listener closed unexpectedly: %w", err)
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			g.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Gateway failed to accept connection")
			select {
			case <-time.After(backoff):
			case <-g.sessionCtx.Done():
			}
			continue
		}
		backoff = 0
		if g.sessionCtx.Err() != nil {
			_ = conn.Close()
			return nil
		}
		g.sessions.Add(1)
		go g.handleConnection(conn)
	}
}

func (g *Gateway) handleConnection(conn net.Conn) {
	defer g.sessions.Done()

	connID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Str("conn_id", connID).Msgf("Panic recovered in session handler: %v", r)
			_ = conn.Close()
		}
	}()
	session.New(connID, conn, g.sessionOpts).Serve(g.sessionCtx)
}

// shutdown stops accepting and cancels every live session without waiting.
func (g *Gateway) shutdown() {
	g.closeOnce.Do(func() {
		g.cancelSession()
		if g.listener != nil {
			_ = g.listener.Close()
		}
	})
}

// Close stops the gateway and, if Serve is running, waits for it to return.
func (g *Gateway) Close() {
	g.shutdown()
	if g.serving.Load() {
		<-g.done
	}
}
