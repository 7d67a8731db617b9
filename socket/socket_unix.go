//go:build unix

package socket

import (
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Startup is a no-op on unix, the network stack needs no initialization.
func Startup() error {
	return nil
}

func Cleanup() error {
	return nil
}

func sysSocket() (handle.Fd, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return handle.Invalid, err
	}
	unix.CloseOnExec(fd)
	return handle.Fd(fd), nil
}

func sysClose(fd handle.Fd) error {
	return unix.Close(int(fd))
}

func sysSetReuseAddr(fd handle.Fd, enable bool) error {
	opt := 0
	if enable {
		opt = 1
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, opt)
}

func sysSetNonBlocking(fd handle.Fd, enable bool) error {
	return unix.SetNonblock(int(fd), enable)
}

func sysBind(fd handle.Fd, addr [4]byte, port uint16) error {
	return unix.Bind(int(fd), &unix.SockaddrInet4{Port: int(port), Addr: addr})
}

func sysListen(fd handle.Fd, backlog int) error {
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	return unix.Listen(int(fd), backlog)
}

func sysAccept(fd handle.Fd) (handle.Fd, error) {
	nfd, _, err := unix.Accept(int(fd))
	if err != nil {
		return handle.Invalid, err
	}
	unix.CloseOnExec(nfd)
	return handle.Fd(nfd), nil
}

func sysConnect(fd handle.Fd, addr [4]byte, port uint16) error {
	return unix.Connect(int(fd), &unix.SockaddrInet4{Port: int(port), Addr: addr})
}

func sysRecv(fd handle.Fd, buf []byte) (int, error) {
	return unix.Read(int(fd), buf)
}

func sysSend(fd handle.Fd, b []byte) (int, error) {
	return unix.Write(int(fd), b)
}

func sysLocalPort(fd handle.Fd) (uint16, error) {
	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		return 0, err
	}
	if inet4, ok := sa.(*unix.SockaddrInet4); ok {
		return uint16(inet4.Port), nil
	}
	return 0, unix.EAFNOSUPPORT
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func isInProgress(err error) bool {
	return errors.Is(err, unix.EINPROGRESS)
}
