package session

import (
	"errors"
	"io"
	"net"
)

// IsDisconnect reports whether err means the peer went away: reset, abort,
// broken pipe, EOF or a connection that is already closed. Anything else is
// an unexpected error, still scoped to the one session.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	for _, errno := range disconnectErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
