package app

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telnet_testserver/internal/core/session"
	"telnet_testserver/internal/service/web"
	"telnet_testserver/internal/shared/config"
	"telnet_testserver/internal/shared/types"
)

func testConfig() *types.Config {
	cfg := config.Default()
	cfg.ServerConf.Port = 0
	cfg.ServerConf.EmitInterval = 40 * time.Millisecond
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func runApp(t *testing.T, s *AppServer, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestAppServer_StreamAndStop(t *testing.T) {
	s := New(testConfig())
	port, err := s.Start()
	require.NoError(t, err)
	errCh := runApp(t, s, context.Background())

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	r := bufio.NewReader(conn)

	banner, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, session.Banner, banner)

	for want := 1; want <= 2; want++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		m, err := session.ParseMessage([]byte(line))
		require.NoError(t, err)
		require.NoError(t, m.Validate(want))
	}

	s.Stop()
	assert.NoError(t, waitErr(t, errCh))
	assert.Equal(t, int64(0), s.Snapshot().ActiveSessions)
	assert.GreaterOrEqual(t, s.Snapshot().MessagesSent, uint64(2))
}

func TestAppServer_ContextCancel(t *testing.T) {
	s := New(testConfig())
	port, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, port, s.GetListenerInfo().Port)
	assert.Equal(t, "127.0.0.1", s.GetListenerInfo().Address)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runApp(t, s, ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.NoError(t, waitErr(t, errCh))
}

func TestAppServer_BindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig()
	cfg.ServerConf.Port = occupied.Addr().(*net.TCPAddr).Port
	s := New(cfg)
	_, err = s.Start()
	assert.Error(t, err)
	assert.Error(t, s.Run(context.Background()))
}

func TestAppServer_MonitorStatus(t *testing.T) {
	cfg := testConfig()
	cfg.MonitorConf.WebPort = freePort(t)
	s := New(cfg)
	s.statsInterval = 20 * time.Millisecond

	port, err := s.Start()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runApp(t, s, ctx)

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	r := bufio.NewReader(conn)
	_, err = r.ReadString('\n')
	require.NoError(t, err)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.MonitorConf.WebPort)) + "/api/status"
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var status web.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, port, status.Listener.Port)
	assert.Equal(t, int64(1), status.Stats.ActiveSessions)
	assert.GreaterOrEqual(t, status.Stats.MessagesSent, uint64(1))

	cancel()
	assert.NoError(t, waitErr(t, errCh))
}
