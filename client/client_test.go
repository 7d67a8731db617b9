//go:build unix || windows

package client

import (
	"testing"

	"github.com/Trinoooo/eggie_poll/config"
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/server"
	"github.com/Trinoooo/eggie_poll/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func startServer(t *testing.T) *server.EchoServer {
	t.Helper()
	cfg := config.Default()
	cfg.Port = 0
	cfg.WaitTimeoutMs = 20
	srv, err := server.NewEchoServer(cfg)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestEcho(t *testing.T) {
	srv := startServer(t)

	c, err := Dial(consts.DefaultHost, srv.Port())
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.EchoString("Test")
	require.NoError(t, err)
	assert.Equal(t, "Test", reply)

	_, err = c.Echo(nil)
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
}

func TestEchoAfterServerClose(t *testing.T) {
	srv := startServer(t)

	c, err := Dial(consts.DefaultHost, srv.Port())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.EchoString("first")
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	_, err = c.EchoString("second")
	assert.Error(t, err)
}

func TestDialRefused(t *testing.T) {
	srv := startServer(t)
	port := srv.Port()
	require.NoError(t, srv.Close())

	_, err := Dial(consts.DefaultHost, port)
	assert.Equal(t, int64(errs.ConnectErrCode), errs.GetCode(err))

	_, err = Dial("localhost", port)
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
}

func TestBench(t *testing.T) {
	srv := startServer(t)

	result, err := Bench(BenchOptions{
		Host:        consts.DefaultHost,
		Port:        srv.Port(),
		Clients:     4,
		Messages:    25,
		PayloadSize: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Messages)
	assert.Equal(t, int64(100*512), result.Bytes)
	assert.Zero(t, result.Failures)
	assert.Greater(t, result.Throughput(), float64(0))
}

func TestBenchInvalidOptions(t *testing.T) {
	for _, opts := range []BenchOptions{
		{Clients: 0, Messages: 1, PayloadSize: 1},
		{Clients: 1, Messages: 0, PayloadSize: 1},
		{Clients: 1, Messages: 1, PayloadSize: 0},
		{Clients: 1, Messages: 1, PayloadSize: consts.MB + 1},
	} {
		_, err := Bench(opts)
		assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
	}
}
