//go:build windows

package socket

import (
	"unsafe"

	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// fionbio is the ioctl command toggling non-blocking mode, see winsock2.h.
const fionbio = 0x8004667e

const (
	winsockVersion  = uint32(0x0202)
	invalidSocket   = ^uintptr(0)
	wsaEWOULDBLOCK  = windows.Errno(10035)
	wsaEINPROGRESS  = windows.Errno(10036)
	wsaEAFNOSUPPORT = windows.Errno(10047)
)

var (
	modws2_32  = windows.NewLazySystemDLL("ws2_32.dll")
	procAccept = modws2_32.NewProc("accept")
)

// Startup initializes winsock. Call it once before creating sockets or pollers
// and pair it with Cleanup at exit.
func Startup() error {
	var data windows.WSAData
	if err := windows.WSAStartup(winsockVersion, &data); err != nil {
		return errs.NewStartupErr().WithErr(err)
	}
	return nil
}

func Cleanup() error {
	if err := windows.WSACleanup(); err != nil {
		return errs.NewStartupErr().WithErr(err)
	}
	return nil
}

func sysSocket() (handle.Fd, error) {
	h, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return handle.Invalid, err
	}
	return handle.Fd(h), nil
}

func sysClose(fd handle.Fd) error {
	return windows.Closesocket(windows.Handle(fd))
}

func sysSetReuseAddr(fd handle.Fd, enable bool) error {
	opt := 0
	if enable {
		opt = 1
	}
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, opt)
}

func sysSetNonBlocking(fd handle.Fd, enable bool) error {
	var mode uint32
	if enable {
		mode = 1
	}
	var bytesReturned uint32
	return windows.WSAIoctl(
		windows.Handle(fd),
		fionbio,
		(*byte)(unsafe.Pointer(&mode)),
		uint32(unsafe.Sizeof(mode)),
		nil,
		0,
		&bytesReturned,
		nil,
		0,
	)
}

func sysBind(fd handle.Fd, addr [4]byte, port uint16) error {
	return windows.Bind(windows.Handle(fd), &windows.SockaddrInet4{Port: int(port), Addr: addr})
}

func sysListen(fd handle.Fd, backlog int) error {
	if backlog <= 0 {
		backlog = windows.SOMAXCONN
	}
	return windows.Listen(windows.Handle(fd), backlog)
}

func sysAccept(fd handle.Fd) (handle.Fd, error) {
	r, _, err := procAccept.Call(uintptr(fd), 0, 0)
	if r == invalidSocket {
		return handle.Invalid, err
	}
	return handle.Fd(r), nil
}

func sysConnect(fd handle.Fd, addr [4]byte, port uint16) error {
	return windows.Connect(windows.Handle(fd), &windows.SockaddrInet4{Port: int(port), Addr: addr})
}

func sysRecv(fd handle.Fd, buf []byte) (int, error) {
	var (
		done  uint32
		flags uint32
	)
	wsaBuf := windows.WSABuf{Len: uint32(len(buf)), Buf: &buf[0]}
	if err := windows.WSARecv(windows.Handle(fd), &wsaBuf, 1, &done, &flags, nil, nil); err != nil {
		return 0, err
	}
	return int(done), nil
}

func sysSend(fd handle.Fd, b []byte) (int, error) {
	var done uint32
	wsaBuf := windows.WSABuf{Len: uint32(len(b)), Buf: &b[0]}
	if err := windows.WSASend(windows.Handle(fd), &wsaBuf, 1, &done, 0, nil, nil); err != nil {
		return 0, err
	}
	return int(done), nil
}

func sysLocalPort(fd handle.Fd) (uint16, error) {
	sa, err := windows.Getsockname(windows.Handle(fd))
	if err != nil {
		return 0, err
	}
	if inet4, ok := sa.(*windows.SockaddrInet4); ok {
		return uint16(inet4.Port), nil
	}
	return 0, wsaEAFNOSUPPORT
}

func isWouldBlock(err error) bool {
	return errors.Is(err, wsaEWOULDBLOCK)
}

func isInProgress(err error) bool {
	return errors.Is(err, wsaEWOULDBLOCK) || errors.Is(err, wsaEINPROGRESS)
}
