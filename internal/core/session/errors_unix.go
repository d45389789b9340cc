//go:build unix

package session

import "golang.org/x/sys/unix"

var disconnectErrnos = []error{
	unix.ECONNRESET,
	unix.ECONNABORTED,
	unix.EPIPE,
	unix.ESHUTDOWN,
}
