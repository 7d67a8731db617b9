//go:build unix || windows

package server

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/Trinoooo/eggie_poll/config"
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/poller"
	"github.com/Trinoooo/eggie_poll/socket"
	"github.com/prometheus/client_golang/prometheus"
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

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Port = 0
	cfg.WaitTimeoutMs = 20
	return cfg
}

var factories = map[string]PollerFactory{
	"default":    poller.New,
	"poll_array": poller.NewPollArray,
}

func eachServer(t *testing.T, fn func(t *testing.T, srv *EchoServer)) {
	for name, factory := range factories {
		factory := factory
		t.Run(name, func(t *testing.T) {
			srv, err := NewEchoServer(testConfig(), WithPoller(factory))
			require.NoError(t, err)
			srv.Start()
			defer srv.Close()
			fn(t, srv)
		})
	}
}

func dial(t *testing.T, port uint16) *socket.Socket {
	t.Helper()
	s, err := socket.Create()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(consts.DefaultHost, port))
	return s
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
		}
		return total
	}
	return 0
}

func TestEcho(t *testing.T) {
	eachServer(t, func(t *testing.T, srv *EchoServer) {
		cli := dial(t, srv.Port())
		require.NoError(t, cli.SendAll([]byte("Test")))

		got := make([]byte, 4)
		_, err := io.ReadFull(cli, got)
		require.NoError(t, err)
		assert.Equal(t, "Test", string(got))
	})
}

func TestEchoManyClients(t *testing.T) {
	eachServer(t, func(t *testing.T, srv *EchoServer) {
		clients := make([]*socket.Socket, 8)
		for i := range clients {
			clients[i] = dial(t, srv.Port())
		}
		for round := 0; round < 3; round++ {
			for i, cli := range clients {
				msg := []byte{byte('a' + i), byte('0' + round)}
				require.NoError(t, cli.SendAll(msg))
				got := make([]byte, len(msg))
				_, err := io.ReadFull(cli, got)
				require.NoError(t, err)
				assert.Equal(t, msg, got)
			}
		}
	})
}

// larger than the socket buffers, so the server has to queue and wait for
// the client to become writable again
func TestEchoBackpressure(t *testing.T) {
	eachServer(t, func(t *testing.T, srv *EchoServer) {
		cli := dial(t, srv.Port())
		payload := bytes.Repeat([]byte("eggie_poll"), consts.MB/10)

		require.NoError(t, cli.SendAll(payload))
		got := make([]byte, len(payload))
		_, err := io.ReadFull(cli, got)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(payload, got))
	})
}

func TestPeerClose(t *testing.T) {
	eachServer(t, func(t *testing.T, srv *EchoServer) {
		registry := srv.Metrics().Registry()
		cli := dial(t, srv.Port())
		require.NoError(t, cli.SendAll([]byte("bye")))
		_, err := io.ReadFull(cli, make([]byte, 3))
		require.NoError(t, err)
		require.NoError(t, cli.Close())

		assert.Eventually(t, func() bool {
			return counterValue(t, registry, "eggie_poll_connection_close_counter") == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, float64(1), counterValue(t, registry, "eggie_poll_connection_accept_counter"))
		assert.Equal(t, float64(0), counterValue(t, registry, "eggie_poll_connections"))
		assert.Equal(t, float64(3), counterValue(t, registry, "eggie_poll_bytes_in_counter"))
		assert.Equal(t, float64(3), counterValue(t, registry, "eggie_poll_bytes_out_counter"))
	})
}

func TestClose(t *testing.T) {
	srv, err := NewEchoServer(testConfig())
	require.NoError(t, err)
	port := srv.Port()

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve()
	}()
	cli := dial(t, port)
	require.NoError(t, cli.SendAll([]byte("x")))
	_, err = io.ReadFull(cli, make([]byte, 1))
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	select {
	case err = <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "serve did not return after close")
	}
	require.NoError(t, srv.Close())

	// the server side of cli is gone
	n, err := cli.Recv(make([]byte, 1))
	assert.Zero(t, n)
	assert.Error(t, err)
}

func TestCloseBeforeServe(t *testing.T) {
	srv, err := NewEchoServer(testConfig())
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	assert.NoError(t, srv.Serve())
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(srv.Serve()))
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "localhost"
	_, err := NewEchoServer(cfg)
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
}
