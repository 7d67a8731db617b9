//go:build linux

package poller

import (
	"sync"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/Trinoooo/eggie_poll/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// New creates the epoll backed Poller.
func New(maxEvents int) (Poller, error) {
	return newEpollPoller(maxEvents)
}

// EpollPoller keeps the registration table in the kernel. Duplicate and
// missing registrations are detected by epoll_ctl itself.
type EpollPoller struct {
	mu     sync.Mutex // guards active and closed
	waitMu sync.Mutex // one native wait at a time, kernelEvents belongs to it

	epfd         int
	wakefd       int // eventfd Close writes to end an in-flight Wait
	closed       bool
	kernelEvents []unix.EpollEvent
	active       []Event
}

func newEpollPoller(maxEvents int) (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		e := errs.NewResourceErr().WithErr(err)
		pollLogger.Error(e.Error())
		return nil, e
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		e := errs.NewResourceErr().WithErr(err)
		pollLogger.Error(e.Error())
		return nil, e
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		e := errs.NewResourceErr().WithErr(err)
		pollLogger.Error(e.Error())
		return nil, e
	}

	return &EpollPoller{
		epfd:         epfd,
		wakefd:       wakefd,
		kernelEvents: make([]unix.EpollEvent, normalizeMaxEvents(maxEvents)),
	}, nil
}

func (p *EpollPoller) Backend() string {
	return "epoll"
}

func (p *EpollPoller) AddFd(fd handle.Fd, interest Mask) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, interest)
}

func (p *EpollPoller) ModifyFd(fd handle.Fd, interest Mask) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, interest)
}

func (p *EpollPoller) ctl(op int, fd handle.Fd, interest Mask) error {
	if !fd.Valid() {
		e := errs.NewInvalidParamErr()
		pollLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "fd"), zap.Int(consts.LogFieldValue, int(fd)))
		return e
	}

	return utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}

		ev := unix.EpollEvent{
			Events: epollToNative(interest),
			Fd:     int32(fd),
		}
		err := unix.EpollCtl(p.epfd, op, int(fd), &ev)
		if err == nil {
			pollLogger.Debug("epoll ctl", zap.Int("op", op), zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, interest))
			return nil
		}

		var e *errs.PollErr
		switch {
		case op == unix.EPOLL_CTL_ADD && errors.Is(err, unix.EEXIST):
			e = errs.NewDuplicateRegistrationErr().WithErr(err)
		case op == unix.EPOLL_CTL_MOD && errors.Is(err, unix.ENOENT):
			e = errs.NewNotRegisteredErr().WithErr(err)
		default:
			e = errs.NewRegistrationErr().WithErr(err)
		}
		pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, interest))
		return e
	})
}

func (p *EpollPoller) RemoveFd(fd handle.Fd) {
	if !fd.Valid() {
		return
	}

	utils.WrapLock(&p.mu, func() {
		if p.closed {
			return
		}
		// ENOENT: never registered. EBADF: the owner closed it first and the
		// kernel already dropped the registration.
		err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
		if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
			pollLogger.Warn("epoll ctl del failed", zap.Int(consts.LogFieldFd, int(fd)), zap.Error(err))
		}
	})
}

func (p *EpollPoller) Wait(timeoutMs int) error {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	var epfd int
	if err := utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		epfd = p.epfd
		return nil
	}); err != nil {
		return err
	}

	if timeoutMs < 0 {
		timeoutMs = -1
	}

	n, err := unix.EpollWait(epfd, p.kernelEvents, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			p.replace(nil)
			return nil
		}
		e := errs.NewWaitErr().WithErr(err)
		pollLogger.Error(e.Error())
		return e
	}

	ready := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		if int(p.kernelEvents[i].Fd) == p.wakefd {
			continue
		}
		ready = append(ready, Event{
			Fd:   handle.Fd(p.kernelEvents[i].Fd),
			Mask: epollFromNative(p.kernelEvents[i].Events),
		})
	}
	p.replace(ready)
	return nil
}

func (p *EpollPoller) replace(ready []Event) {
	utils.WrapLock(&p.mu, func() {
		p.active = ready
	})
}

func (p *EpollPoller) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close wakes an in-flight Wait and releases epfd once that Wait has returned,
// so a Wait never runs on a recycled descriptor number.
func (p *EpollPoller) Close() error {
	var alreadyClosed bool
	utils.WrapLock(&p.mu, func() {
		alreadyClosed = p.closed
		if alreadyClosed {
			return
		}
		p.closed = true
		p.active = nil

		// the counter is never drained, the wakefd stays readable until released
		one := []byte{1, 0, 0, 0, 0, 0, 0, 0}
		if _, err := unix.Write(p.wakefd, one); err != nil {
			pollLogger.Warn("epoll wake failed", zap.Error(err))
		}
	})
	if alreadyClosed {
		return nil
	}

	p.waitMu.Lock()
	defer p.waitMu.Unlock()
	if err := unix.Close(p.wakefd); err != nil {
		pollLogger.Warn("close wakefd failed", zap.Error(err))
	}
	return unix.Close(p.epfd)
}

func epollToNative(m Mask) uint32 {
	var native uint32
	if m&Readable != 0 {
		native |= unix.EPOLLIN
	}
	if m&Writable != 0 {
		native |= unix.EPOLLOUT
	}
	return native
}

func epollFromNative(native uint32) Mask {
	m := None
	if native&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if native&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if native&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		m |= Errored
	}
	return m
}
