//go:build linux

package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEpollTranslation(t *testing.T) {
	assert.Equal(t, uint32(0), epollToNative(None))
	assert.Equal(t, uint32(unix.EPOLLIN), epollToNative(Readable))
	assert.Equal(t, uint32(unix.EPOLLOUT), epollToNative(Writable))
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLOUT), epollToNative(Readable|Writable|Errored))

	cases := []struct {
		native uint32
		mask   Mask
	}{
		{0, None},
		{unix.EPOLLIN, Readable},
		{unix.EPOLLOUT, Writable},
		{unix.EPOLLIN | unix.EPOLLOUT, Readable | Writable},
		{unix.EPOLLERR, Errored},
		{unix.EPOLLOUT | unix.EPOLLHUP, Writable | Errored},
		{unix.EPOLLIN | unix.EPOLLRDHUP, Readable | Errored},
	}
	for _, c := range cases {
		assert.Equal(t, c.mask, epollFromNative(c.native), c.native)
	}
}

func TestEpollBackend(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "epoll", p.Backend())
	ep, ok := p.(*EpollPoller)
	require.True(t, ok)
	assert.Len(t, ep.kernelEvents, DefaultMaxEvents)
}
