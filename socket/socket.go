// Package socket wraps a TCP descriptor with exclusive ownership.
//
// A Socket owns its descriptor until Close, Release or Move. Blocking Recv and
// Send on a socket switched to non-blocking mode report would-block as a zero
// length transfer with a nil error; every other native failure is an IO kind
// error from package errs carrying the OS error number.
package socket

import (
	"io"
	"net"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/Trinoooo/eggie_poll/logs"
	"go.uber.org/zap"
)

var sockLogger = logs.With("socket")

type Socket struct {
	fd handle.Fd
}

// New returns an unbound socket, call Create before using it.
func New() *Socket {
	return &Socket{fd: handle.Invalid}
}

// FromFd takes ownership of an existing descriptor.
func FromFd(fd handle.Fd) *Socket {
	return &Socket{fd: fd}
}

// Create returns a fresh IPv4 stream socket.
func Create() (*Socket, error) {
	s := New()
	if err := s.Create(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create allocates the descriptor, closing any descriptor s owned before.
func (s *Socket) Create() error {
	if err := s.Close(); err != nil {
		return err
	}

	fd, err := sysSocket()
	if err != nil {
		return fail(errs.NewCreateSocketErr().WithErr(err), handle.Invalid)
	}
	s.fd = fd
	return nil
}

// Close is a no-op on an invalid socket. The socket is invalid afterwards
// even when the native close failed.
func (s *Socket) Close() error {
	if !s.Valid() {
		return nil
	}

	fd := s.fd
	s.fd = handle.Invalid
	if err := sysClose(fd); err != nil {
		return fail(errs.NewCloseSocketErr().WithErr(err), fd)
	}
	return nil
}

func (s *Socket) Valid() bool {
	return s.fd.Valid()
}

func (s *Socket) Fd() handle.Fd {
	return s.fd
}

// Release gives up ownership without closing.
func (s *Socket) Release() handle.Fd {
	fd := s.fd
	s.fd = handle.Invalid
	return fd
}

// Move transfers ownership into a new Socket and invalidates s.
func (s *Socket) Move() *Socket {
	return FromFd(s.Release())
}

func (s *Socket) SetReuseAddr(enable bool) error {
	if err := s.check("set reuse addr"); err != nil {
		return err
	}
	if err := sysSetReuseAddr(s.fd, enable); err != nil {
		return fail(errs.NewSetSockOptErr().WithErr(err), s.fd)
	}
	return nil
}

func (s *Socket) SetNonBlocking(enable bool) error {
	if err := s.check("set non-blocking"); err != nil {
		return err
	}
	if err := sysSetNonBlocking(s.fd, enable); err != nil {
		return fail(errs.NewSetSockOptErr().WithErr(err), s.fd)
	}
	return nil
}

// Bind binds to port on every local interface. Port 0 picks an ephemeral port,
// see LocalPort.
func (s *Socket) Bind(port uint16) error {
	return s.BindAddr("0.0.0.0", port)
}

func (s *Socket) BindAddr(host string, port uint16) error {
	if err := s.check("bind"); err != nil {
		return err
	}
	addr, err := parseIPv4(host)
	if err != nil {
		return err
	}
	if err = sysBind(s.fd, addr, port); err != nil {
		return fail(errs.NewBindErr().WithErr(err), s.fd, zap.String(consts.LogFieldAddr, host), zap.Uint16("port", port))
	}
	return nil
}

// Listen uses the platform SOMAXCONN when backlog <= 0.
func (s *Socket) Listen(backlog int) error {
	if err := s.check("listen"); err != nil {
		return err
	}
	if err := sysListen(s.fd, backlog); err != nil {
		return fail(errs.NewListenErr().WithErr(err), s.fd)
	}
	return nil
}

// Accept returns the connected socket. On a non-blocking listener with no
// pending connection it returns an invalid socket and a nil error.
func (s *Socket) Accept() (*Socket, error) {
	if err := s.check("accept"); err != nil {
		return nil, err
	}
	fd, err := sysAccept(s.fd)
	if err != nil {
		if isWouldBlock(err) {
			return New(), nil
		}
		return nil, fail(errs.NewAcceptErr().WithErr(err), s.fd)
	}
	return FromFd(fd), nil
}

// Connect takes a dotted IPv4 literal, names are not resolved. A non-blocking
// socket fails with an error for which IsInProgress holds; wait for it to
// become writable.
func (s *Socket) Connect(host string, port uint16) error {
	if err := s.check("connect"); err != nil {
		return err
	}
	addr, err := parseIPv4(host)
	if err != nil {
		return err
	}
	if err = sysConnect(s.fd, addr, port); err != nil {
		e := errs.NewConnectErr().WithErr(err)
		if isInProgress(err) {
			sockLogger.Debug("connect in progress", zap.Uint64(consts.LogFieldFd, uint64(s.fd)))
			return e
		}
		return fail(e, s.fd, zap.String(consts.LogFieldAddr, host), zap.Uint16("port", port))
	}
	return nil
}

// Recv reads at most len(buf) bytes. It returns (0, nil) when a non-blocking
// socket has nothing to read and (0, io.EOF) once the peer shut down.
func (s *Socket) Recv(buf []byte) (int, error) {
	if err := s.check("recv"); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n, err := sysRecv(s.fd, buf)
	if err != nil {
		if isWouldBlock(err) {
			return 0, nil
		}
		return 0, fail(errs.NewReadSocketErr().WithErr(err), s.fd)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// RecvString receives at most limit bytes, consts.DefaultRecvSize when limit <= 0.
func (s *Socket) RecvString(limit int) (string, error) {
	if limit <= 0 {
		limit = consts.DefaultRecvSize
	}
	buf := make([]byte, limit)
	n, err := s.Recv(buf)
	return string(buf[:n]), err
}

// Send writes as much of b as the kernel takes in one call. It returns (0, nil)
// when a non-blocking socket cannot take anything right now.
func (s *Socket) Send(b []byte) (int, error) {
	if err := s.check("send"); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}

	n, err := sysSend(s.fd, b)
	if err != nil {
		if isWouldBlock(err) {
			return 0, nil
		}
		return 0, fail(errs.NewWriteSocketErr().WithErr(err), s.fd)
	}
	return n, nil
}

func (s *Socket) SendString(str string) (int, error) {
	return s.Send([]byte(str))
}

// SendAll keeps sending until b is written. Only meant for blocking sockets,
// on a non-blocking one it spins while the kernel buffer is full.
func (s *Socket) SendAll(b []byte) error {
	for len(b) > 0 {
		n, err := s.Send(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (s *Socket) LocalPort() (uint16, error) {
	if err := s.check("local port"); err != nil {
		return 0, err
	}
	port, err := sysLocalPort(s.fd)
	if err != nil {
		return 0, fail(errs.NewSockNameErr().WithErr(err), s.fd)
	}
	return port, nil
}

// Read implements io.Reader. Would-block surfaces as (0, nil) like Recv.
func (s *Socket) Read(p []byte) (int, error) {
	return s.Recv(p)
}

// Write implements io.Writer and writes all of p.
func (s *Socket) Write(p []byte) (int, error) {
	if err := s.SendAll(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ io.ReadWriteCloser = (*Socket)(nil)

// IsInProgress reports whether err is a non-blocking connect still underway.
func IsInProgress(err error) bool {
	return errs.GetCode(err) == errs.ConnectErrCode && isInProgress(err)
}

func (s *Socket) check(op string) error {
	if s.Valid() {
		return nil
	}
	e := errs.NewInvalidParamErr()
	sockLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "socket"), zap.String("op", op))
	return e
}

func parseIPv4(host string) ([4]byte, error) {
	var addr [4]byte
	ip := net.ParseIP(host).To4()
	if ip == nil {
		e := errs.NewInvalidParamErr()
		sockLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "host"), zap.String(consts.LogFieldValue, host))
		return addr, e
	}
	copy(addr[:], ip)
	return addr, nil
}

func fail(e *errs.PollErr, fd handle.Fd, fields ...zap.Field) error {
	fields = append(fields, zap.Uint64(consts.LogFieldFd, uint64(fd)))
	sockLogger.Warn(e.Error(), fields...)
	return e
}
