package poller

import (
	"testing"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/socket"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	if err := socket.Startup(); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = socket.Cleanup()
	if code != 0 {
		panic(code)
	}
}

func TestMask(t *testing.T) {
	cases := []struct {
		mask Mask
		str  string
	}{
		{None, "-"},
		{Readable, "R"},
		{Writable, "W"},
		{Readable | Writable, "R|W"},
		{Readable | Errored, "R|E"},
		{Readable | Writable | Errored, "R|W|E"},
	}
	for _, c := range cases {
		assert.Equal(t, c.str, c.mask.String())
	}

	m := Readable | Errored
	assert.True(t, m.Has(Readable))
	assert.True(t, m.Has(Errored))
	assert.False(t, m.Has(Writable))
	assert.False(t, m.Has(Readable|Writable))
	assert.False(t, m.Has(None))
}

func TestNormalizeMaxEvents(t *testing.T) {
	assert.Equal(t, DefaultMaxEvents, normalizeMaxEvents(0))
	assert.Equal(t, DefaultMaxEvents, normalizeMaxEvents(-3))
	assert.Equal(t, 7, normalizeMaxEvents(7))
	assert.Equal(t, consts.MaxEvents, normalizeMaxEvents(1<<20))
}
