package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telnet_testserver/internal/core/session"
	"telnet_testserver/internal/shared"
	"telnet_testserver/internal/shared/types"
)

const testInterval = 50 * time.Millisecond

func testConf() types.ServerConf {
	return types.ServerConf{
		Host:         "127.0.0.1",
		Port:         0,
		EmitInterval: testInterval,
		WriteTimeout: time.Second,
	}
}

// startGateway listens on a free loopback port and serves until the test ends.
func startGateway(t *testing.T, cfg types.ServerConf, stats *shared.Stats) (*Gateway, string, context.CancelFunc, <-chan error) {
	t.Helper()
	g := New(cfg, stats, nil)
	port, err := g.InitializeListener()
	require.NoError(t, err)
	require.NotZero(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		g.Close()
	})
	return g, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), cancel, errCh
}

type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) line(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

func (c *client) message(t *testing.T) *session.Message {
	t.Helper()
	m, err := session.ParseMessage([]byte(c.line(t)))
	require.NoError(t, err)
	return m
}

func TestGateway_EndToEnd(t *testing.T) {
	_, addr, _, _ := startGateway(t, testConf(), nil)
	c := dial(t, addr)

	assert.Equal(t, "Welcome to the Telnet Test Server\r\n", c.line(t))

	first := c.message(t)
	first.Timestamp = ""
	assert.Equal(t, &session.Message{Type: "test", Count: 1, Message: "Test message #1"}, first)

	start := time.Now()
	second := c.message(t)
	assert.Equal(t, 2, second.Count)
	assert.GreaterOrEqual(t, time.Since(start), testInterval-10*time.Millisecond)
}

func TestGateway_ConcurrentClientsHaveIndependentCounters(t *testing.T) {
	_, addr, _, _ := startGateway(t, testConf(), nil)

	a := dial(t, addr)
	a.line(t)
	require.NoError(t, a.message(t).Validate(1))
	require.NoError(t, a.message(t).Validate(2))

	b := dial(t, addr)
	b.line(t)
	require.NoError(t, b.message(t).Validate(1))
	require.NoError(t, a.message(t).Validate(3))
	require.NoError(t, b.message(t).Validate(2))
}

func TestGateway_AbruptCloseDoesNotAffectOthers(t *testing.T) {
	stats := shared.NewStats()
	_, addr, _, _ := startGateway(t, testConf(), stats)

	a := dial(t, addr)
	b := dial(t, addr)
	a.line(t)
	b.line(t)
	a.message(t)
	b.message(t)

	if tcp, ok := a.conn.(*net.TCPConn); ok {
		// RST instead of FIN
		require.NoError(t, tcp.SetLinger(0))
	}
	require.NoError(t, a.conn.Close())

	require.Eventually(t, func() bool {
		return stats.Snapshot().ActiveSessions == 1
	}, 2*time.Second, 10*time.Millisecond)

	for want := 2; want <= 4; want++ {
		require.NoError(t, b.message(t).Validate(want))
	}
	assert.Equal(t, uint64(2), stats.Snapshot().TotalAccepted)
}

func TestGateway_ShutdownUnwindsSessions(t *testing.T) {
	stats := shared.NewStats()
	cfg := testConf()
	cfg.EmitInterval = time.Hour
	_, addr, cancel, errCh := startGateway(t, cfg, stats)

	c := dial(t, addr)
	c.line(t)
	c.message(t)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.Equal(t, int64(0), stats.Snapshot().ActiveSessions)

	_, err := c.reader.ReadString('\n')
	assert.Error(t, err)

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed")
}

// flakyListener fails the first Accept calls with a transient error.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, errors.New("accept: too many open files")
	}
	return l.Listener.Accept()
}

func TestGateway_TransientAcceptErrorsAreRetried(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fl := &flakyListener{Listener: inner}
	fl.failures.Store(3)

	g := New(testConf(), nil, nil)
	port := g.Attach(fl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- g.Serve(ctx) }()

	c := dial(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	assert.Equal(t, session.Banner, c.line(t))

	cancel()
	require.NoError(t, <-errCh)
}

func TestGateway_ListenerFailureIsFatal(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := New(testConf(), nil, nil)
	g.Attach(inner)
	errCh := make(chan error, 1)
	go func() { errCh <- g.Serve(context.Background()) }()

	// closed behind the gateway's back
	require.NoError(t, inner.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestGateway_MaxConnections(t *testing.T) {
	cfg := testConf()
	cfg.MaxConnections = 1
	_, addr, _, _ := startGateway(t, cfg, nil)

	a := dial(t, addr)
	a.line(t)

	b := dial(t, addr)
	require.NoError(t, b.conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, err := b.reader.ReadString('\n')
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout(), "second client must wait for a free slot")

	require.NoError(t, a.conn.Close())
	assert.Equal(t, session.Banner, b.line(t))
}

func TestGateway_ServeRequiresListener(t *testing.T) {
	g := New(testConf(), nil, nil)
	assert.ErrorIs(t, g.Serve(context.Background()), errNotInitialized)
}

func TestGateway_BindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConf()
	cfg.Port = occupied.Addr().(*net.TCPAddr).Port
	_, err = New(cfg, nil, nil).InitializeListener()
	assert.Error(t, err)
}
