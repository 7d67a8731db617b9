//go:build windows

package poller

import (
	"unsafe"

	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const pollBackend = "wsapoll"

// winsock poll flags, see WinSock2.h
const (
	pollRdNorm = 0x0100
	pollRdBand = 0x0200
	pollWrNorm = 0x0010
	pollErr    = 0x0001
	pollHup    = 0x0002
	pollNval   = 0x0004

	socketError = -1
	wsaEINTR    = windows.Errno(10004)
)

var (
	modws2_32   = windows.NewLazySystemDLL("ws2_32.dll")
	procWSAPoll = modws2_32.NewProc("WSAPoll")
)

// pollFd mirrors WSAPOLLFD.
type pollFd struct {
	Fd      uintptr
	Events  int16
	Revents int16
}

// New creates the WSAPoll backed Poller.
func New(maxEvents int) (Poller, error) {
	if err := procWSAPoll.Find(); err != nil {
		return nil, errs.NewResourceErr().WithErr(err)
	}
	return NewPollArray(maxEvents)
}

func makePollFd(fd handle.Fd, events int16) pollFd {
	return pollFd{Fd: uintptr(fd), Events: events}
}

func pollFdIdent(p *pollFd) handle.Fd {
	return handle.Fd(p.Fd)
}

func sysPoll(fds []pollFd, timeoutMs int) (int, error) {
	r, _, err := procWSAPoll.Call(
		uintptr(unsafe.Pointer(&fds[0])),
		uintptr(len(fds)),
		uintptr(int32(timeoutMs)),
	)
	if int32(r) == socketError {
		return 0, err
	}
	return int(int32(r)), nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, wsaEINTR)
}

// WSAPoll rejects POLLERR and POLLHUP in the requested events, they are
// always reported anyway.
func pollToNative(m Mask) int16 {
	var native int16
	if m&Readable != 0 {
		native |= pollRdNorm | pollRdBand
	}
	if m&Writable != 0 {
		native |= pollWrNorm
	}
	return native
}

func pollFromNative(native int16) Mask {
	m := None
	if native&(pollRdNorm|pollRdBand) != 0 {
		m |= Readable
	}
	if native&pollWrNorm != 0 {
		m |= Writable
	}
	if native&(pollErr|pollHup|pollNval) != 0 {
		m |= Errored
	}
	return m
}
