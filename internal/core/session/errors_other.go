//go:build !unix && !windows

package session

var disconnectErrnos []error
