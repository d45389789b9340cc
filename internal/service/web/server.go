package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"telnet_testserver/internal/shared/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the optional monitor: /ws streams session events, /api/status
// returns the counters.
type Server struct {
	host     string
	port     int
	handler  *Handler
	hub      *Hub
	listener net.Listener
	srv      *http.Server
}

func NewServer(host string, port int, provider StatusProvider, hub *Hub) *Server {
	handler := NewHandler(provider, hub)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", handler.HandleStatus)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	return &Server{
		host:    host,
		port:    port,
		handler: handler,
		hub:     hub,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Listen binds the monitor port and returns the actual address.
func (s *Server) Listen() (string, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start monitor on %s: %w", addr, err)
	}
	s.listener = listener
	logger.Info().Msgf("Monitor is listening on http://%s", listener.Addr())
	return listener.Addr().String(), nil
}

// Serve blocks until ctx is done and then shuts the http server down.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("monitor listener is not initialized")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("monitor server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// websocket connections are hijacked; the hub closes them
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Monitor shutdown did not complete cleanly")
	}
	<-errCh
	logger.Info().Msg("Monitor stopped.")
	return nil
}
