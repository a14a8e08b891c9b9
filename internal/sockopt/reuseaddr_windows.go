//go:build windows

package sockopt

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func controlReuseAddr(network, address string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		setErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}
