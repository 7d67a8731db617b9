//go:build unix || windows

package socket

import (
	"bytes"
	"io"
	"testing"

	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := Startup(); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = Cleanup()
	if code != 0 {
		panic(code)
	}
}

func listen(t *testing.T) (*Socket, uint16) {
	t.Helper()
	ln, err := Create()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	require.NoError(t, ln.SetReuseAddr(true))
	require.NoError(t, ln.BindAddr("127.0.0.1", 0))
	require.NoError(t, ln.Listen(0))
	port, err := ln.LocalPort()
	require.NoError(t, err)
	require.NotZero(t, port)
	return ln, port
}

// pair returns the client and the accepted server side of one connection.
func pair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	ln, port := listen(t)

	cli, err := Create()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	require.NoError(t, cli.Connect("127.0.0.1", port))

	srv, err := ln.Accept()
	require.NoError(t, err)
	require.True(t, srv.Valid())
	t.Cleanup(func() { _ = srv.Close() })
	return cli, srv
}

func recvFull(t *testing.T, s *Socket, size int) []byte {
	t.Helper()
	got := make([]byte, 0, size)
	buf := make([]byte, size)
	for len(got) < size {
		n, err := s.Recv(buf[:size-len(got)])
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	return got
}

func TestOwnership(t *testing.T) {
	s := New()
	assert.False(t, s.Valid())
	assert.Equal(t, handle.Invalid, s.Fd())
	assert.NoError(t, s.Close())

	require.NoError(t, s.Create())
	assert.True(t, s.Valid())
	fd := s.Fd()

	moved := s.Move()
	assert.False(t, s.Valid())
	assert.Equal(t, fd, moved.Fd())

	released := moved.Release()
	assert.Equal(t, fd, released)
	assert.False(t, moved.Valid())

	owner := FromFd(released)
	assert.NoError(t, owner.Close())
	assert.False(t, owner.Valid())
	// second close is a no-op
	assert.NoError(t, owner.Close())
}

func TestCreateReplacesDescriptor(t *testing.T) {
	s, err := Create()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Create())
	assert.True(t, s.Valid())
}

func TestInvalidSocket(t *testing.T) {
	s := New()
	buf := make([]byte, 8)

	checks := map[string]error{
		"reuse":       s.SetReuseAddr(true),
		"nonblocking": s.SetNonBlocking(true),
		"bind":        s.Bind(0),
		"listen":      s.Listen(0),
		"connect":     s.Connect("127.0.0.1", 1),
	}
	_, checks["accept"] = s.Accept()
	_, checks["recv"] = s.Recv(buf)
	_, checks["send"] = s.Send(buf)
	_, checks["port"] = s.LocalPort()

	for op, err := range checks {
		assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err), op)
	}
}

func TestHostParsing(t *testing.T) {
	s, err := Create()
	require.NoError(t, err)
	defer s.Close()

	for _, host := range []string{"localhost", "::1", "", "256.1.1.1"} {
		err = s.Connect(host, 8014)
		assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err), host)
	}
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(s.BindAddr("example.com", 0)))
}

func TestEchoTest(t *testing.T) {
	cli, srv := pair(t)

	n, err := cli.SendString("Test")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := srv.RecvString(0)
	require.NoError(t, err)
	assert.Equal(t, "Test", got)

	_, err = srv.SendString(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("Test"), recvFull(t, cli, 4))
}

func TestPayloadRoundTrip(t *testing.T) {
	cli, srv := pair(t)

	for _, size := range []int{1, 17, 1024, 4096} {
		payload := bytes.Repeat([]byte{byte(size)}, size)
		require.NoError(t, cli.SendAll(payload))
		assert.Equal(t, payload, recvFull(t, srv, size), size)
	}
}

func TestReadWriteAdapter(t *testing.T) {
	cli, srv := pair(t)

	n, err := cli.Write([]byte("hello eggie"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	buf := make([]byte, 11)
	_, err = io.ReadFull(srv, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello eggie", string(buf))
}

func TestNonBlockingWouldBlock(t *testing.T) {
	cli, srv := pair(t)
	require.NoError(t, srv.SetNonBlocking(true))

	n, err := srv.Recv(make([]byte, 16))
	assert.NoError(t, err)
	assert.Zero(t, n)

	// back to blocking mode
	require.NoError(t, srv.SetNonBlocking(false))
	_, err = cli.SendString("x")
	require.NoError(t, err)
	got, err := srv.RecvString(1)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestNonBlockingAccept(t *testing.T) {
	ln, _ := listen(t)
	require.NoError(t, ln.SetNonBlocking(true))

	conn, err := ln.Accept()
	require.NoError(t, err)
	assert.False(t, conn.Valid())
}

func TestRecvEOF(t *testing.T) {
	cli, srv := pair(t)
	require.NoError(t, cli.Close())

	n, err := srv.Recv(make([]byte, 16))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
}

func TestConnectRefused(t *testing.T) {
	ln, port := listen(t)
	require.NoError(t, ln.Close())

	s, err := Create()
	require.NoError(t, err)
	defer s.Close()

	err = s.Connect("127.0.0.1", port)
	require.Error(t, err)
	assert.Equal(t, int64(errs.ConnectErrCode), errs.GetCode(err))
	assert.True(t, errs.IsIOErr(err))
	assert.False(t, IsInProgress(err))
	_, ok := errs.NativeCode(err)
	assert.True(t, ok)
}

func TestNonBlockingConnect(t *testing.T) {
	_, port := listen(t)

	s, err := Create()
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SetNonBlocking(true))

	// loopback may complete the handshake immediately
	err = s.Connect("127.0.0.1", port)
	if err != nil {
		assert.True(t, IsInProgress(err), err.Error())
	}
}
