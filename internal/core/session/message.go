package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// Banner is written once, immediately after accept.
	Banner = "Welcome to the Telnet Test Server\r\n"

	// MessageType is the fixed value of the "type" field.
	MessageType = "test"

	// TimestampLayout is ISO-8601 with microseconds and no zone suffix; the value is always UTC.
	TimestampLayout = "2006-01-02T15:04:05.000000"

	lineEnding = "\r\n"
)

// Message is one outbound record. It is built, encoded and dropped every emission cycle.
type Message struct {
	Type      string `json:"type"`
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// NewMessage builds the record for the given count at time now.
func NewMessage(count int, now time.Time) *Message {
	return &Message{
		Type:      MessageType,
		Count:     count,
		Timestamp: now.UTC().Format(TimestampLayout),
		Message:   Text(count),
	}
}

// Text returns the human readable body for count.
func Text(count int) string {
	return "Test message #" + strconv.Itoa(count)
}

// Encode returns the single-line JSON form without the line ending.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Line returns the encoded message terminated by CRLF, ready for the wire.
func (m *Message) Line() ([]byte, error) {
	data, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return append(data, lineEnding...), nil
}

// Time parses the timestamp field.
func (m *Message) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, m.Timestamp, time.UTC)
}

// Validate checks the record against the invariants of the stream: fixed
// type, the expected count, a matching body and a parseable timestamp.
func (m *Message) Validate(expectedCount int) error {
	if m.Type != MessageType {
		return fmt.Errorf("unexpected type %q", m.Type)
	}
	if m.Count != expectedCount {
		return fmt.Errorf("count out of sequence: got %d, want %d", m.Count, expectedCount)
	}
	if m.Message != Text(m.Count) {
		return fmt.Errorf("message %q does not match count %d", m.Message, m.Count)
	}
	if _, err := m.Time(); err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", m.Timestamp, err)
	}
	return nil
}

// ParseMessage decodes one line received from the server. Surrounding
// whitespace, including the CRLF terminator, is ignored.
func ParseMessage(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	m := new(Message)
	if err := json.Unmarshal(line, m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}
