package telnet

import (
	"bytes"
	"fmt"
	"time"

	"telnet_testserver/internal/core/session"
)

// LineSplitter reassembles CRLF (or LF) terminated lines from arbitrary chunks.
type LineSplitter struct {
	pending []byte
}

// Feed appends chunk and returns the complete lines without terminators.
func (s *LineSplitter) Feed(chunk []byte) []string {
	s.pending = append(s.pending, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(s.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(s.pending[:idx], []byte("\r"))
		lines = append(lines, string(line))
		s.pending = s.pending[idx+1:]
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return lines
}

// Checker validates the fixture stream seen by one connection: banner first,
// then messages counting up from 1 with non-decreasing timestamps.
type Checker struct {
	bannerSeen bool
	next       int
	lastTS     time.Time
}

func NewChecker() *Checker {
	return &Checker{next: 1}
}

// Reset prepares the checker for a new connection.
func (c *Checker) Reset() {
	*c = Checker{next: 1}
}

// Line checks one line. It returns the decoded message, or nil for the banner.
func (c *Checker) Line(line string) (*session.Message, error) {
	if !c.bannerSeen {
		if line+"\r\n" != session.Banner {
			return nil, fmt.Errorf("unexpected banner %q", line)
		}
		c.bannerSeen = true
		return nil, nil
	}
	m, err := session.ParseMessage([]byte(line))
	if err != nil {
		return nil, err
	}
	if err := m.Validate(c.next); err != nil {
		return m, err
	}
	ts, _ := m.Time()
	if ts.Before(c.lastTS) {
		return m, fmt.Errorf("timestamp went backwards: %s after %s", m.Timestamp, c.lastTS.Format(session.TimestampLayout))
	}
	c.lastTS = ts
	c.next++
	return m, nil
}
