//go:build unix && !linux && !darwin && !freebsd

package poller

// New falls back to poll(2) on unix flavours without an epoll or kqueue backend.
func New(maxEvents int) (Poller, error) {
	return NewPollArray(maxEvents)
}
