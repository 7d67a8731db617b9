// Package poller multiplexes readiness notification for many descriptors.
//
// One Poller contract is served by three native facilities, picked at build time:
//   - epoll on linux: interest lives in the kernel table, one combined mask per descriptor
//   - kqueue on darwin/freebsd: one read filter and one write filter per descriptor
//   - a poll array on windows (WSAPoll) and other unix (poll(2)): rebuilt from a table every wait
//
// A Poller never owns the descriptors it watches. Callers close their descriptors
// themselves and should RemoveFd before doing so. On epoll and kqueue a
// registration left behind by a closed descriptor does not block adding a new
// descriptor that reuses the number. The poll array cannot tell the two apart.
package poller

import (
	"strings"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/Trinoooo/eggie_poll/logs"
)

// Mask is a set of readiness conditions.
type Mask uint8

const (
	Readable Mask = 1 << iota
	Writable
	// Errored is only ever reported, never requested. Error and hangup
	// conditions fold into it regardless of the requested interest.
	Errored

	None Mask = 0

	interestMask = Readable | Writable
)

func (m Mask) Has(other Mask) bool {
	return m&other == other && other != None
}

func (m Mask) String() string {
	if m == None {
		return "-"
	}
	parts := make([]string, 0, 3)
	if m&Readable != 0 {
		parts = append(parts, "R")
	}
	if m&Writable != 0 {
		parts = append(parts, "W")
	}
	if m&Errored != 0 {
		parts = append(parts, "E")
	}
	return strings.Join(parts, "|")
}

// Event is one entry of the ready list.
type Event struct {
	Fd   handle.Fd
	Mask Mask
}

// Poller is the registration and query surface shared by every backend.
//
// All methods are safe for concurrent use. Wait issues the blocking native call
// without holding the bookkeeping lock, so registration changes made while a
// Wait is in flight only take effect on the next Wait.
type Poller interface {
	// AddFd registers fd with the given interest. Registering an fd twice fails
	// with DuplicateRegistrationErr and leaves the first registration intact.
	AddFd(fd handle.Fd, interest Mask) error

	// ModifyFd replaces the interest of a registered fd. An fd that is not
	// registered fails with NotRegisteredErr.
	ModifyFd(fd handle.Fd, interest Mask) error

	// RemoveFd deregisters fd. It is idempotent and never fails: the owner may
	// already have closed fd and the kernel may already have dropped it.
	RemoveFd(fd handle.Fd)

	// Wait blocks until a registered fd is ready, timeoutMs elapses or a signal
	// interrupts the call. timeoutMs < 0 blocks indefinitely and 0 only polls.
	// An interrupted wait is not an error: it yields an empty ready list and is
	// not retried. The ready list is replaced on every call.
	Wait(timeoutMs int) error

	// Events returns the ready list of the last Wait. The slice must be treated
	// as read-only and is only valid until the next call on the Poller.
	Events() []Event

	// Backend names the native facility, for logs.
	Backend() string

	// Close releases the native resources. Watched descriptors stay open.
	// epoll and kqueue wake an in-flight Wait and release their descriptor only
	// after it returns. The poll array has no native resource, its in-flight
	// Wait runs to its timeout and later calls fail with PollerClosedErr.
	Close() error
}

const DefaultMaxEvents = consts.DefaultMaxEvents

var pollLogger = logs.With("poller")

func normalizeMaxEvents(maxEvents int) int {
	if maxEvents <= 0 {
		return DefaultMaxEvents
	}
	if maxEvents > consts.MaxEvents {
		return consts.MaxEvents
	}
	return maxEvents
}
