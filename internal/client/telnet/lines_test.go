package telnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telnet_testserver/internal/core/session"
)

func TestLineSplitter(t *testing.T) {
	var s LineSplitter
	assert.Empty(t, s.Feed([]byte("Welcome to the")))
	assert.Equal(t, []string{"Welcome to the Telnet Test Server"}, s.Feed([]byte(" Telnet Test Server\r\n{\"a\"")))
	assert.Equal(t, []string{`{"a":1}`, "second"}, s.Feed([]byte(":1}\r\nsecond\n")))
	assert.Empty(t, s.Feed(nil))
}

func line(t *testing.T, count int, ts time.Time) string {
	t.Helper()
	b, err := session.NewMessage(count, ts).Encode()
	require.NoError(t, err)
	return string(b)
}

func TestChecker(t *testing.T) {
	now := time.Now()
	c := NewChecker()

	m, err := c.Line("Welcome to the Telnet Test Server")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = c.Line(line(t, 1, now))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count)

	_, err = c.Line(line(t, 2, now.Add(3*time.Second)))
	require.NoError(t, err)

	_, err = c.Line(line(t, 4, now.Add(6*time.Second)))
	assert.Error(t, err, "gap must be reported")

	_, err = c.Line(line(t, 3, now))
	assert.Error(t, err, "timestamp going backwards must be reported")
}

func TestChecker_BadBanner(t *testing.T) {
	c := NewChecker()
	_, err := c.Line("Hello")
	assert.Error(t, err)

	c.Reset()
	_, err = c.Line("Welcome to the Telnet Test Server")
	assert.NoError(t, err)
}
