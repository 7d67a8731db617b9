//go:build darwin || freebsd

package poller

import (
	"sync"
	"syscall"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/Trinoooo/eggie_poll/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// New creates the kqueue backed Poller.
func New(maxEvents int) (Poller, error) {
	return newKqueuePoller(maxEvents)
}

// KqueuePoller registers one read filter and one write filter per fd. It
// tracks which filters are established so that duplicates and unregistered
// modifies are reported the same way as on the other backends, and so a
// half-applied batch can be rolled back.
type KqueuePoller struct {
	mu     sync.Mutex // guards registered, active and closed
	waitMu sync.Mutex // one native wait at a time, Close takes it before releasing kq

	kq           int
	closed       bool
	registered   map[handle.Fd]Mask
	kernelEvents []unix.Kevent_t
	active       []Event

	submit submitFunc
}

// submitFunc applies a change batch and reports the result of every change
// keyed by filter.
type submitFunc func(changes []unix.Kevent_t) (map[int]syscall.Errno, error)

// wakeIdent is the EVFILT_USER event Close triggers to end an in-flight Wait.
const wakeIdent = 0

func newKqueuePoller(maxEvents int) (*KqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		e := errs.NewResourceErr().WithErr(err)
		pollLogger.Error(e.Error())
		return nil, e
	}
	unix.CloseOnExec(kq)

	wake := make([]unix.Kevent_t, 1)
	unix.SetKevent(&wake[0], wakeIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err = unix.Kevent(kq, wake, nil, nil); err != nil {
		_ = unix.Close(kq)
		e := errs.NewResourceErr().WithErr(err)
		pollLogger.Error(e.Error())
		return nil, e
	}

	p := newKqueueWith(maxEvents, nil)
	p.kq = kq
	p.submit = p.kevent
	return p, nil
}

func newKqueueWith(maxEvents int, submit submitFunc) *KqueuePoller {
	return &KqueuePoller{
		kq:           -1,
		registered:   make(map[handle.Fd]Mask),
		kernelEvents: make([]unix.Kevent_t, normalizeMaxEvents(maxEvents)),
		submit:       submit,
	}
}

func (p *KqueuePoller) Backend() string {
	return "kqueue"
}

func (p *KqueuePoller) AddFd(fd handle.Fd, interest Mask) error {
	if !fd.Valid() {
		e := errs.NewInvalidParamErr()
		pollLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "fd"), zap.Int(consts.LogFieldValue, int(fd)))
		return e
	}
	interest &= interestMask

	return utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		if recorded, exist := p.registered[fd]; exist && !p.stale(fd, recorded) {
			e := errs.NewDuplicateRegistrationErr()
			pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)))
			return e
		}

		changes := kqueueChanges(fd, interest, unix.EV_ADD|unix.EV_ENABLE)
		results, err := p.submit(changes)
		if err != nil {
			e := errs.NewRegistrationErr().WithErr(err)
			pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)))
			return e
		}

		var (
			failed      error
			established = None
		)
		for _, filter := range kqueueFilters(interest) {
			if errno := results[filter]; errno != 0 {
				failed = errno
				continue
			}
			established |= filterMask(filter)
		}

		if failed != nil {
			// the batch is all or nothing: undo the filters that did get in
			if established != None {
				_, _ = p.submit(kqueueChanges(fd, established, unix.EV_DELETE))
			}
			e := errs.NewRegistrationErr().WithErr(failed)
			pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, interest))
			return e
		}

		p.registered[fd] = interest
		pollLogger.Debug("kqueue add", zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, interest))
		return nil
	})
}

func (p *KqueuePoller) ModifyFd(fd handle.Fd, interest Mask) error {
	interest &= interestMask

	return utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		previous, exist := p.registered[fd]
		if !exist || p.stale(fd, previous) {
			e := errs.NewNotRegisteredErr()
			pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)))
			return e
		}

		// filters missing from the new mask are deleted explicitly, a stale
		// filter would keep reporting readiness nobody asked for
		changes := make([]unix.Kevent_t, 0, 2)
		changes = append(changes, kqueueChanges(fd, interest, unix.EV_ADD|unix.EV_ENABLE)...)
		changes = append(changes, kqueueChanges(fd, interestMask&^interest, unix.EV_DELETE)...)
		results, err := p.submit(changes)
		if err != nil {
			e := errs.NewRegistrationErr().WithErr(err)
			pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)))
			return e
		}

		var (
			failed      error
			established = None
		)
		for _, filter := range kqueueFilters(interestMask) {
			bit := filterMask(filter)
			errno := results[filter]
			wanted := interest&bit != 0
			switch {
			case wanted && errno == 0:
				established |= bit
			case !wanted && (errno == 0 || errno == unix.ENOENT):
			default:
				failed = errno
				established |= previous & bit
			}
		}
		p.registered[fd] = established

		if failed != nil {
			e := errs.NewRegistrationErr().WithErr(failed)
			pollLogger.Warn(e.Error(), zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, interest))
			return e
		}
		pollLogger.Debug("kqueue modify", zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, interest))
		return nil
	})
}

func (p *KqueuePoller) RemoveFd(fd handle.Fd) {
	if !fd.Valid() {
		return
	}

	utils.WrapLock(&p.mu, func() {
		if p.closed {
			return
		}
		delete(p.registered, fd)

		// try both filters, the fd may only ever have had one of them
		results, err := p.submit(kqueueChanges(fd, interestMask, unix.EV_DELETE))
		if err != nil {
			if !errors.Is(err, unix.EBADF) {
				pollLogger.Warn("kqueue delete failed", zap.Int(consts.LogFieldFd, int(fd)), zap.Error(err))
			}
			return
		}
		for _, errno := range results {
			if errno != 0 && errno != unix.ENOENT && errno != unix.EBADF {
				pollLogger.Warn("kqueue delete failed", zap.Int(consts.LogFieldFd, int(fd)), zap.Error(errno))
			}
		}
	})
}

// stale reports whether the filters recorded for fd are gone from the kernel,
// which happens when the owner closed fd without RemoveFd. The entry is
// dropped then. Must be called with mu held.
func (p *KqueuePoller) stale(fd handle.Fd, recorded Mask) bool {
	if recorded == None {
		return false
	}

	// without EV_ADD, enabling a filter the kernel no longer has fails
	results, err := p.submit(kqueueChanges(fd, recorded, unix.EV_ENABLE))
	if err != nil {
		return false
	}
	for _, filter := range kqueueFilters(recorded) {
		errno := results[filter]
		if errno != unix.ENOENT && errno != unix.EBADF {
			return false
		}
	}

	delete(p.registered, fd)
	pollLogger.Debug("drop stale registration", zap.Int(consts.LogFieldFd, int(fd)), zap.Stringer(consts.LogFieldMask, recorded))
	return true
}

// kevent applies changes with EV_RECEIPT so every change reports its own
// result, keyed by filter. The kevent call itself only fails when the batch
// could not be processed at all.
func (p *KqueuePoller) kevent(changes []unix.Kevent_t) (map[int]syscall.Errno, error) {
	for i := range changes {
		changes[i].Flags |= unix.EV_RECEIPT
	}
	receipts := make([]unix.Kevent_t, len(changes))
	n, err := unix.Kevent(p.kq, changes, receipts, &unix.Timespec{})
	if err != nil {
		return nil, err
	}

	results := make(map[int]syscall.Errno, n)
	for _, receipt := range receipts[:n] {
		if int(receipt.Flags)&unix.EV_ERROR != 0 && receipt.Data != 0 {
			results[int(receipt.Filter)] = syscall.Errno(receipt.Data)
			continue
		}
		results[int(receipt.Filter)] = 0
	}
	return results, nil
}

func (p *KqueuePoller) Wait(timeoutMs int) error {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	var kq int
	if err := utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		kq = p.kq
		return nil
	}); err != nil {
		return err
	}

	var timeout *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}

	n, err := unix.Kevent(kq, nil, p.kernelEvents, timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			p.replace(nil)
			return nil
		}
		e := errs.NewWaitErr().WithErr(err)
		pollLogger.Error(e.Error())
		return e
	}

	// read and write readiness of one fd arrive as separate records, merge
	// them so each fd shows up once
	ready := make([]Event, 0, n)
	index := make(map[handle.Fd]int, n)
	for i := 0; i < n; i++ {
		ev := p.kernelEvents[i]
		if int(ev.Filter) == unix.EVFILT_USER {
			continue
		}
		fd := handle.Fd(ev.Ident)
		m := kqueueFromNative(int(ev.Filter), int(ev.Flags))
		if idx, ok := index[fd]; ok {
			ready[idx].Mask |= m
			continue
		}
		index[fd] = len(ready)
		ready = append(ready, Event{Fd: fd, Mask: m})
	}
	p.replace(ready)
	return nil
}

func (p *KqueuePoller) replace(ready []Event) {
	utils.WrapLock(&p.mu, func() {
		p.active = ready
	})
}

func (p *KqueuePoller) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close wakes an in-flight Wait and releases kq once that Wait has returned,
// so a Wait never runs on a recycled descriptor number.
func (p *KqueuePoller) Close() error {
	var alreadyClosed bool
	utils.WrapLock(&p.mu, func() {
		alreadyClosed = p.closed
		if alreadyClosed {
			return
		}
		p.closed = true
		p.active = nil
		p.registered = nil

		trigger := make([]unix.Kevent_t, 1)
		unix.SetKevent(&trigger[0], wakeIdent, unix.EVFILT_USER, 0)
		trigger[0].Fflags = unix.NOTE_TRIGGER
		if _, err := unix.Kevent(p.kq, trigger, nil, nil); err != nil {
			pollLogger.Warn("kqueue wake failed", zap.Error(err))
		}
	})
	if alreadyClosed {
		return nil
	}

	p.waitMu.Lock()
	defer p.waitMu.Unlock()
	return unix.Close(p.kq)
}

func kqueueFilters(m Mask) []int {
	filters := make([]int, 0, 2)
	if m&Readable != 0 {
		filters = append(filters, unix.EVFILT_READ)
	}
	if m&Writable != 0 {
		filters = append(filters, unix.EVFILT_WRITE)
	}
	return filters
}

func kqueueChanges(fd handle.Fd, m Mask, flags int) []unix.Kevent_t {
	filters := kqueueFilters(m)
	changes := make([]unix.Kevent_t, len(filters))
	for i, filter := range filters {
		unix.SetKevent(&changes[i], int(fd), filter, flags)
	}
	return changes
}

func filterMask(filter int) Mask {
	switch filter {
	case unix.EVFILT_READ:
		return Readable
	case unix.EVFILT_WRITE:
		return Writable
	}
	return None
}

func kqueueFromNative(filter, flags int) Mask {
	if flags&unix.EV_ERROR != 0 {
		return Errored
	}
	m := filterMask(filter)
	if flags&unix.EV_EOF != 0 {
		m |= Errored
	}
	return m
}
