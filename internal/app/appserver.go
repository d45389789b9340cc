package app

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"telnet_testserver/internal/core/gateway"
	"telnet_testserver/internal/service/web"
	"telnet_testserver/internal/shared"
	"telnet_testserver/internal/shared/logger"
	"telnet_testserver/internal/shared/types"
)

const defaultStatsInterval = 2 * time.Second

// AppServer is the application's main struct. It owns the gateway and the
// optional monitor and runs them under one context.
type AppServer struct {
	cfg   *types.Config
	stats *shared.Stats

	gateway *gateway.Gateway
	hub     *web.Hub    // nil when the monitor is disabled
	monitor *web.Server // nil when the monitor is disabled

	statsInterval time.Duration

	startOnce sync.Once
	startErr  error
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// AppServer serves the monitor's status endpoint.
var _ web.StatusProvider = (*AppServer)(nil)

// New creates a new AppServer from a validated configuration.
func New(cfg *types.Config) *AppServer {
	s := &AppServer{
		cfg:           cfg,
		stats:         shared.NewStats(),
		statsInterval: defaultStatsInterval,
		stopCh:        make(chan struct{}),
	}

	// A nil *web.Hub must not end up inside the interface.
	var events types.EventSink
	if cfg.MonitorConf.WebPort > 0 {
		s.hub = web.NewHub()
		events = s.hub
		s.monitor = web.NewServer(cfg.ServerConf.Host, cfg.MonitorConf.WebPort, s, s.hub)
	}
	s.gateway = gateway.New(cfg.ServerConf, s.stats, events)
	return s
}

// Start binds the gateway (and the monitor, if enabled) without serving.
// A bind failure is returned and is fatal for the process. It returns the
// gateway port.
func (s *AppServer) Start() (int, error) {
	s.startOnce.Do(func() {
		addr := net.JoinHostPort(s.cfg.ServerConf.Host, strconv.Itoa(s.cfg.ServerConf.Port))
		logger.Info().Msgf("Starting Telnet test server on %s", addr)

		if _, err := s.gateway.InitializeListener(); err != nil {
			s.startErr = err
			return
		}
		if s.monitor != nil {
			if _, err := s.monitor.Listen(); err != nil {
				s.gateway.Close()
				s.startErr = err
				return
			}
		} else {
			logger.Debug().Msg("Monitor is disabled (web_port is 0 or not set).")
		}
		logger.Info().Msg("Press Ctrl+C to stop")
	})
	if s.startErr != nil {
		return 0, s.startErr
	}
	return s.gateway.GetListenerInfo().Port, nil
}

// Run is the server's entry point. It blocks until ctx is cancelled, Stop
// is called or a component fails for good. A requested stop returns nil.
func (s *AppServer) Run(ctx context.Context) error {
	if _, err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-s.stopCh:
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		// the gateway ending for any reason ends the whole server
		defer cancel()
		return s.gateway.Serve(gctx)
	})

	if s.monitor != nil {
		g.Go(func() error {
			s.hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return s.monitor.Serve(gctx)
		})
		g.Go(func() error {
			s.statsLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop asks Run to shut everything down. It does not wait.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Snapshot implements web.StatusProvider.
func (s *AppServer) Snapshot() *types.Snapshot {
	return s.stats.Snapshot()
}

// GetListenerInfo implements web.StatusProvider.
func (s *AppServer) GetListenerInfo() *types.ListenerInfo {
	return s.gateway.GetListenerInfo()
}
