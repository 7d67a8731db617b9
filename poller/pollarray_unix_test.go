//go:build unix

package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollTranslation(t *testing.T) {
	assert.Equal(t, int16(0), pollToNative(None))
	assert.Equal(t, int16(unix.POLLIN), pollToNative(Readable))
	assert.Equal(t, int16(unix.POLLOUT), pollToNative(Writable))
	assert.Equal(t, int16(unix.POLLIN|unix.POLLOUT), pollToNative(Readable|Writable|Errored))

	cases := []struct {
		native int16
		mask   Mask
	}{
		{0, None},
		{unix.POLLIN, Readable},
		{unix.POLLOUT, Writable},
		{unix.POLLIN | unix.POLLHUP, Readable | Errored},
		{unix.POLLOUT | unix.POLLERR, Writable | Errored},
		{unix.POLLNVAL, Errored},
	}
	for _, c := range cases {
		assert.Equal(t, c.mask, pollFromNative(c.native), c.native)
	}
}

func TestPollArrayInterrupted(t *testing.T) {
	p, f := newFakeArray(0)
	require.NoError(t, p.AddFd(3, Readable))

	f.ready[3] = Readable
	require.NoError(t, p.Wait(0))
	require.Len(t, p.Events(), 1)

	f.err = unix.EINTR
	require.NoError(t, p.Wait(100))
	assert.Empty(t, p.Events())
	// no retry
	assert.Equal(t, 2, f.calls)
}

func TestPollArrayBackend(t *testing.T) {
	p, err := NewPollArray(0)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "poll", p.Backend())
}
