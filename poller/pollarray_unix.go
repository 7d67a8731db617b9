//go:build unix

package poller

import (
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const pollBackend = "poll"

type pollFd = unix.PollFd

func makePollFd(fd handle.Fd, events int16) pollFd {
	return pollFd{Fd: int32(fd), Events: events}
}

func pollFdIdent(p *pollFd) handle.Fd {
	return handle.Fd(p.Fd)
}

func sysPoll(fds []pollFd, timeoutMs int) (int, error) {
	return unix.Poll(fds, timeoutMs)
}

func isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

func pollToNative(m Mask) int16 {
	var native int16
	if m&Readable != 0 {
		native |= unix.POLLIN
	}
	if m&Writable != 0 {
		native |= unix.POLLOUT
	}
	return native
}

func pollFromNative(native int16) Mask {
	m := None
	if native&unix.POLLIN != 0 {
		m |= Readable
	}
	if native&unix.POLLOUT != 0 {
		m |= Writable
	}
	if native&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		m |= Errored
	}
	return m
}
