//go:build unix || windows

package poller

import (
	"sync"
	"time"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/Trinoooo/eggie_poll/utils"
	"go.uber.org/zap"
)

type pollFunc func(fds []pollFd, timeoutMs int) (int, error)

// PollArray keeps no kernel state between waits. The registration table is
// the source of truth and the native array is rebuilt from it on every change.
type PollArray struct {
	mu     sync.Mutex // guards everything below except poll and sleep
	waitMu sync.Mutex

	closed     bool
	maxEvents  int
	registered map[handle.Fd]Mask
	order      []handle.Fd // registration order, keeps the array stable
	fds        []pollFd
	active     []Event

	poll  pollFunc
	sleep func(time.Duration)
}

// NewPollArray creates the poll array backend. On windows it is what New
// returns; on unix it is available next to the platform default.
func NewPollArray(maxEvents int) (Poller, error) {
	return newPollArray(maxEvents, sysPoll), nil
}

func newPollArray(maxEvents int, poll pollFunc) *PollArray {
	maxEvents = normalizeMaxEvents(maxEvents)
	return &PollArray{
		maxEvents:  maxEvents,
		registered: make(map[handle.Fd]Mask),
		order:      make([]handle.Fd, 0, maxEvents),
		fds:        make([]pollFd, 0, maxEvents),
		poll:       poll,
		sleep:      time.Sleep,
	}
}

func (p *PollArray) Backend() string {
	return pollBackend
}

func (p *PollArray) AddFd(fd handle.Fd, interest Mask) error {
	if !fd.Valid() {
		e := errs.NewInvalidParamErr()
		pollLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "fd"), zap.Uint64(consts.LogFieldValue, uint64(fd)))
		return e
	}

	return utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		if _, exist := p.registered[fd]; exist {
			e := errs.NewDuplicateRegistrationErr()
			pollLogger.Warn(e.Error(), zap.Uint64(consts.LogFieldFd, uint64(fd)))
			return e
		}

		p.registered[fd] = interest & interestMask
		p.order = append(p.order, fd)
		p.rebuild()
		return nil
	})
}

func (p *PollArray) ModifyFd(fd handle.Fd, interest Mask) error {
	return utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		if _, exist := p.registered[fd]; !exist {
			e := errs.NewNotRegisteredErr()
			pollLogger.Warn(e.Error(), zap.Uint64(consts.LogFieldFd, uint64(fd)))
			return e
		}

		p.registered[fd] = interest & interestMask
		p.rebuild()
		return nil
	})
}

func (p *PollArray) RemoveFd(fd handle.Fd) {
	utils.WrapLock(&p.mu, func() {
		if _, exist := p.registered[fd]; !exist {
			return
		}

		delete(p.registered, fd)
		for i, registered := range p.order {
			if registered == fd {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
		p.rebuild()
	})
}

// rebuild must be called with mu held.
func (p *PollArray) rebuild() {
	p.fds = p.fds[:0]
	for _, fd := range p.order {
		p.fds = append(p.fds, makePollFd(fd, pollToNative(p.registered[fd])))
	}
}

// Registered returns the interest recorded for fd.
func (p *PollArray) Registered(fd handle.Fd) (Mask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.registered[fd]
	return m, ok
}

func (p *PollArray) Wait(timeoutMs int) error {
	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	// the native call runs on a private copy, so registrations changed while
	// it blocks cannot touch the array in flight
	var snapshot []pollFd
	if err := utils.WrapLockErr(&p.mu, func() error {
		if p.closed {
			return errs.NewPollerClosedErr()
		}
		snapshot = make([]pollFd, len(p.fds))
		copy(snapshot, p.fds)
		return nil
	}); err != nil {
		return err
	}

	if len(snapshot) == 0 {
		switch {
		case timeoutMs > 0:
			p.sleep(time.Duration(timeoutMs) * time.Millisecond)
		case timeoutMs < 0:
			pollLogger.Warn("wait without timeout on an empty poll array returns immediately")
		}
		p.replace(nil)
		return nil
	}

	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := p.poll(snapshot, timeoutMs)
	if err != nil {
		if isInterrupted(err) {
			p.replace(nil)
			return nil
		}
		e := errs.NewWaitErr().WithErr(err)
		pollLogger.Error(e.Error())
		return e
	}

	size := n
	if size > p.maxEvents {
		size = p.maxEvents
	}
	ready := make([]Event, 0, size)
	for i := range snapshot {
		if len(ready) == p.maxEvents {
			break
		}
		if snapshot[i].Revents == 0 {
			continue
		}
		ready = append(ready, Event{
			Fd:   pollFdIdent(&snapshot[i]),
			Mask: pollFromNative(snapshot[i].Revents),
		})
	}
	p.replace(ready)
	return nil
}

func (p *PollArray) replace(ready []Event) {
	utils.WrapLock(&p.mu, func() {
		p.active = ready
	})
}

func (p *PollArray) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *PollArray) Close() error {
	utils.WrapLock(&p.mu, func() {
		p.closed = true
		p.registered = map[handle.Fd]Mask{}
		p.order = nil
		p.fds = nil
		p.active = nil
	})
	return nil
}
