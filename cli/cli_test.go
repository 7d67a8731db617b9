//go:build unix || windows

package cli

import (
	"io"
	"strconv"
	"testing"

	"github.com/Trinoooo/eggie_poll/config"
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

type fakeReader struct {
	lines []string
}

func (r *fakeReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

type fakeEchoer struct {
	got []string
	err error
}

func (e *fakeEchoer) EchoString(msg string) (string, error) {
	e.got = append(e.got, msg)
	return msg, e.err
}

func TestLoop(t *testing.T) {
	echo := &fakeEchoer{}
	err := loop(&fakeReader{lines: []string{"hello", "", "   ", " Test ", "EXIT", "never"}}, echo)
	assert.NoError(t, err)
	assert.Equal(t, []string{"hello", "Test"}, echo.got)

	// end of input quits quietly
	echo = &fakeEchoer{}
	assert.NoError(t, loop(&fakeReader{lines: []string{"a"}}, echo))
	assert.Equal(t, []string{"a"}, echo.got)
}

func TestLoopConnectionLost(t *testing.T) {
	echo := &fakeEchoer{err: errs.NewReadSocketErr()}
	err := loop(&fakeReader{lines: []string{"a", "b"}}, echo)
	assert.Equal(t, int64(errs.ReadSocketErrCode), errs.GetCode(err))
	assert.Equal(t, []string{"a"}, echo.got)

	echo = &fakeEchoer{err: errs.NewInvalidParamErr()}
	assert.NoError(t, loop(&fakeReader{lines: []string{"a", "b"}}, echo))
	assert.Equal(t, []string{"a", "b"}, echo.got)
}

func TestRunBench(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.WaitTimeoutMs = 20
	srv, err := server.NewEchoServer(cfg)
	require.NoError(t, err)
	srv.Start()
	defer srv.Close()

	port := strconv.Itoa(int(srv.Port()))
	err = NewWrapper().Run([]string{"eggie_poll", "--host", "127.0.0.1", "--port", port, "bench", "--clients", "2", "--messages", "5", "--size", "8"})
	assert.NoError(t, err)
}

func TestRunInvalidFlags(t *testing.T) {
	err := NewWrapper().Run([]string{"eggie_poll", "--port", "70000", "bench"})
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))

	err = NewWrapper().Run([]string{"eggie_poll", "--host", "localhost", "bench"})
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))

	err = NewWrapper().Run([]string{"eggie_poll", "bench", "--size", "0"})
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
}
