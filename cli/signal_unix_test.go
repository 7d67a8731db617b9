//go:build unix

package cli

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSignals(t *testing.T) {
	called := make(chan struct{}, 1)
	stop := watchSignals(func() error {
		called <- struct{}{}
		return nil
	})

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case <-called:
	case <-time.After(time.Second):
		require.FailNow(t, "shutdown not called on SIGTERM")
	}

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		require.FailNow(t, "stop did not return")
	}
	assert.Empty(t, called)
}
