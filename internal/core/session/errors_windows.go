//go:build windows

package session

import "golang.org/x/sys/windows"

var disconnectErrnos = []error{
	windows.WSAECONNRESET,
	windows.WSAECONNABORTED,
	windows.WSAESHUTDOWN,
	windows.ERROR_BROKEN_PIPE,
}
