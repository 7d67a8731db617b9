// Package server runs a single threaded, level triggered echo server on top of
// a poller.Poller and non-blocking sockets.
package server

import (
	"sync"
	"sync/atomic"

	"github.com/Trinoooo/eggie_poll/config"
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/handle"
	"github.com/Trinoooo/eggie_poll/logs"
	"github.com/Trinoooo/eggie_poll/poller"
	"github.com/Trinoooo/eggie_poll/socket"
	"github.com/Trinoooo/eggie_poll/utils"
	"github.com/bytedance/gopkg/util/gopool"
	"github.com/eapache/queue"
	"github.com/luci/go-render/render"
	"go.uber.org/zap"
)

var srvLogger = logs.With("server")

// maxPending is how many unsent bytes a connection may hold before the server
// stops reading from it.
const maxPending = 4 * consts.MB

type PollerFactory func(maxEvents int) (poller.Poller, error)

type Option func(s *EchoServer)

// WithPoller replaces the platform default poller.New.
func WithPoller(factory PollerFactory) Option {
	return func(s *EchoServer) {
		s.newPoller = factory
	}
}

// WithMetrics shares a MetricsHelper instead of building one from the config.
func WithMetrics(m *MetricsHelper) Option {
	return func(s *EchoServer) {
		s.metricsHelper = m
	}
}

type EchoServer struct {
	cfg           *config.Config
	newPoller     PollerFactory
	metricsHelper *MetricsHelper

	p     poller.Poller
	ln    *socket.Socket
	port  uint16
	conns map[handle.Fd]*connection // owned by the serve loop
	buf   []byte

	serving   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mutex    sync.Mutex // guards released
	released bool
}

type connection struct {
	sock     *socket.Socket
	interest poller.Mask
	pending  *queue.Queue // [][]byte waiting for the socket to become writable
	offset   int          // sent prefix of the head chunk
	size     int          // unsent bytes
}

// NewEchoServer binds and listens right away, so Port is known before Serve.
func NewEchoServer(cfg *config.Config, opts ...Option) (*EchoServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	srv := &EchoServer{
		cfg:       cfg,
		newPoller: poller.New,
		conns:     make(map[handle.Fd]*connection),
		buf:       make([]byte, cfg.RecvBufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.metricsHelper == nil {
		srv.metricsHelper = NewMetricsHelper(cfg.Metrics)
	}

	if err := srv.listen(); err != nil {
		srv.release()
		return nil, err
	}
	srvLogger.Info("echo server listening",
		zap.String(consts.LogFieldAddr, cfg.Host),
		zap.Uint16("port", srv.port),
		zap.String("backend", srv.p.Backend()),
	)
	return srv, nil
}

func (srv *EchoServer) listen() error {
	var err error
	if srv.ln, err = socket.Create(); err != nil {
		return err
	}
	if err = srv.ln.SetReuseAddr(srv.cfg.ReuseAddr); err != nil {
		return err
	}
	if err = srv.ln.BindAddr(srv.cfg.Host, uint16(srv.cfg.Port)); err != nil {
		return err
	}
	if err = srv.ln.Listen(srv.cfg.Backlog); err != nil {
		return err
	}
	if err = srv.ln.SetNonBlocking(true); err != nil {
		return err
	}
	if srv.port, err = srv.ln.LocalPort(); err != nil {
		return err
	}

	if srv.p, err = srv.newPoller(srv.cfg.MaxEvents); err != nil {
		return err
	}
	return srv.p.AddFd(srv.ln.Fd(), poller.Readable)
}

func (srv *EchoServer) Port() uint16 {
	return srv.port
}

func (srv *EchoServer) Metrics() *MetricsHelper {
	return srv.metricsHelper
}

// Serve runs the event loop until Close. It may be called once.
func (srv *EchoServer) Serve() error {
	if !srv.serving.CompareAndSwap(false, true) {
		e := errs.NewInvalidParamErr()
		srvLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "serve"), zap.String(consts.LogFieldValue, "already serving"))
		return e
	}
	defer close(srv.done)
	defer srv.release()

	for {
		select {
		case <-srv.stop:
			srvLogger.Info("echo server stop")
			return nil
		default:
		}

		if err := srv.p.Wait(srv.cfg.WaitTimeoutMs); err != nil {
			srv.metricsHelper.ErrorCounter.WithLabelValues("wait").Inc()
			srvLogger.Error("wait failed, echo server exit", zap.Error(err))
			return err
		}
		srv.metricsHelper.WaitCounter.Inc()

		// the ready list is only valid until the next poller call and handling
		// the events registers and modifies descriptors
		events := append([]poller.Event(nil), srv.p.Events()...)
		if len(events) == 0 {
			continue
		}
		srv.metricsHelper.ReadyEventCounter.Add(float64(len(events)))
		if ce := srvLogger.Check(zap.DebugLevel, "ready"); ce != nil {
			ce.Write(zap.Int(consts.LogFieldCount, len(events)), zap.String("events", render.Render(events)))
		}

		for _, ev := range events {
			if ev.Fd == srv.ln.Fd() {
				srv.accept()
				continue
			}
			srv.handle(ev)
		}
	}
}

// Start runs Serve on the goroutine pool. Serve errors are only logged.
func (srv *EchoServer) Start() {
	gopool.Go(func() {
		defer utils.HandlePanic(srvLogger, nil)
		if err := srv.Serve(); err != nil {
			srvLogger.Error("serve failed", zap.Error(err))
		}
	})
}

func (srv *EchoServer) accept() {
	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			srv.metricsHelper.ErrorCounter.WithLabelValues("accept").Inc()
			return
		}
		if !conn.Valid() {
			return
		}

		if err = conn.SetNonBlocking(true); err != nil {
			srv.metricsHelper.ErrorCounter.WithLabelValues("accept").Inc()
			_ = conn.Close()
			continue
		}
		if err = srv.p.AddFd(conn.Fd(), poller.Readable); err != nil {
			srv.metricsHelper.ErrorCounter.WithLabelValues("register").Inc()
			_ = conn.Close()
			continue
		}

		srv.conns[conn.Fd()] = &connection{
			sock:     conn,
			interest: poller.Readable,
			pending:  queue.New(),
		}
		srv.metricsHelper.ConnectionAcceptCounter.Inc()
		srv.metricsHelper.ConnectionGauge.Inc()
		srvLogger.Debug("accept", zap.Uint64(consts.LogFieldFd, uint64(conn.Fd())))
	}
}

func (srv *EchoServer) handle(ev poller.Event) {
	c, exist := srv.conns[ev.Fd]
	if !exist {
		srvLogger.Warn("ready event for unknown fd", zap.Uint64(consts.LogFieldFd, uint64(ev.Fd)))
		srv.p.RemoveFd(ev.Fd)
		return
	}

	if ev.Mask.Has(poller.Readable) || ev.Mask.Has(poller.Errored) {
		if !srv.read(c) {
			srv.closeConn(c)
			return
		}
	}
	if ev.Mask.Has(poller.Writable) {
		if !srv.flush(c) {
			srv.closeConn(c)
			return
		}
	}
	if ev.Mask == poller.Errored {
		srv.closeConn(c)
		return
	}
	srv.updateInterest(c)
}

// read echoes what one Recv returns. Level triggered readiness brings us back
// for the rest. It reports false once the connection is done.
func (srv *EchoServer) read(c *connection) bool {
	n, err := c.sock.Recv(srv.buf)
	if err != nil {
		if !errs.IsIOErr(err) {
			srvLogger.Debug("peer closed", zap.Uint64(consts.LogFieldFd, uint64(c.sock.Fd())))
		} else {
			srv.metricsHelper.ErrorCounter.WithLabelValues("recv").Inc()
		}
		return false
	}
	if n == 0 {
		return true
	}
	srv.metricsHelper.BytesInCounter.Add(float64(n))

	data := srv.buf[:n]
	if c.size == 0 {
		sent, err := c.sock.Send(data)
		if err != nil {
			srv.metricsHelper.ErrorCounter.WithLabelValues("send").Inc()
			return false
		}
		srv.metricsHelper.BytesOutCounter.Add(float64(sent))
		data = data[sent:]
	}
	if len(data) > 0 {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		c.pending.Add(chunk)
		c.size += len(chunk)
	}
	return true
}

// flush sends queued chunks until the socket would block.
func (srv *EchoServer) flush(c *connection) bool {
	for c.pending.Length() > 0 {
		chunk := c.pending.Peek().([]byte)
		sent, err := c.sock.Send(chunk[c.offset:])
		if err != nil {
			srv.metricsHelper.ErrorCounter.WithLabelValues("send").Inc()
			return false
		}
		if sent == 0 {
			return true
		}
		srv.metricsHelper.BytesOutCounter.Add(float64(sent))
		c.size -= sent
		c.offset += sent
		if c.offset == len(chunk) {
			c.pending.Remove()
			c.offset = 0
		}
	}
	return true
}

func (srv *EchoServer) updateInterest(c *connection) {
	want := poller.None
	if c.size < maxPending {
		want |= poller.Readable
	}
	if c.size > 0 {
		want |= poller.Writable
	}
	if want == c.interest {
		return
	}

	if err := srv.p.ModifyFd(c.sock.Fd(), want); err != nil {
		srv.metricsHelper.ErrorCounter.WithLabelValues("modify").Inc()
		srv.closeConn(c)
		return
	}
	c.interest = want
}

func (srv *EchoServer) closeConn(c *connection) {
	fd := c.sock.Fd()
	srv.p.RemoveFd(fd)
	delete(srv.conns, fd)
	if err := c.sock.Close(); err != nil {
		srv.metricsHelper.ErrorCounter.WithLabelValues("close").Inc()
	}
	srv.metricsHelper.ConnectionCloseCounter.Inc()
	srv.metricsHelper.ConnectionGauge.Dec()
	srvLogger.Debug("connection closed", zap.Uint64(consts.LogFieldFd, uint64(fd)))
}

// Close stops the loop within one wait timeout and releases the listener, the
// connections and the poller. It is safe to call more than once.
func (srv *EchoServer) Close() error {
	srv.closeOnce.Do(func() {
		close(srv.stop)
		if srv.serving.Load() {
			<-srv.done
			return
		}
		srv.release()
	})
	return nil
}

func (srv *EchoServer) release() {
	utils.WrapLock(&srv.mutex, func() {
		if srv.released {
			return
		}
		srv.released = true

		for _, c := range srv.conns {
			srv.closeConn(c)
		}
		if srv.ln != nil && srv.p != nil {
			srv.p.RemoveFd(srv.ln.Fd())
		}
		if srv.ln != nil {
			if err := srv.ln.Close(); err != nil {
				srvLogger.Warn("close listener failed", zap.Error(err))
			}
		}
		if srv.p != nil {
			if err := srv.p.Close(); err != nil {
				srvLogger.Warn("close poller failed", zap.Error(err))
			}
		}
		srv.metricsHelper.Stop()
	})
}
