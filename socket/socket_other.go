//go:build !unix && !windows

package socket

import (
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
)

func Startup() error {
	return errs.NewNotSupportedErr()
}

func Cleanup() error {
	return nil
}

func unsupported() error {
	return errs.NewNotSupportedErr()
}

func sysSocket() (handle.Fd, error) { return handle.Invalid, unsupported() }
func sysClose(handle.Fd) error { return unsupported() }
func sysSetReuseAddr(handle.Fd, bool) error { return unsupported() }
func sysSetNonBlocking(handle.Fd, bool) error { return unsupported() }
func sysBind(handle.Fd, [4]byte, uint16) error { return unsupported() }
func sysListen(handle.Fd, int) error { return unsupported() }
func sysAccept(handle.Fd) (handle.Fd, error) { return handle.Invalid, unsupported() }
func sysConnect(handle.Fd, [4]byte, uint16) error { return unsupported() }
func sysRecv(handle.Fd, []byte) (int, error) { return 0, unsupported() }
func sysSend(handle.Fd, []byte) (int, error) { return 0, unsupported() }
func sysLocalPort(handle.Fd) (uint16, error) { return 0, unsupported() }
func isWouldBlock(error) bool { return false }
func isInProgress(error) bool { return false }
