package server

import (
	"time"

	"github.com/Trinoooo/eggie_poll/config"
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/utils"
	"github.com/bytedance/gopkg/util/gopool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

type MetricsHelper struct {
	registry *prometheus.Registry
	stop     chan struct{}
	done     chan struct{}

	ConnectionAcceptCounter prometheus.Counter     // accepted connections
	ConnectionCloseCounter  prometheus.Counter     // closed connections
	ConnectionGauge         prometheus.Gauge       // open connections
	WaitCounter             prometheus.Counter     // poller waits
	ReadyEventCounter       prometheus.Counter     // entries of the ready lists
	BytesInCounter          prometheus.Counter     // bytes received
	BytesOutCounter         prometheus.Counter     // bytes echoed back
	ErrorCounter            *prometheus.CounterVec // failures by operation
}

func NewMetricsHelper(cfg config.Metrics) *MetricsHelper {
	job := cfg.Job
	if job == "" {
		job = consts.DefaultMetricsJob
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: job,
			Name:      name,
			Help:      help,
		})
	}

	m := &MetricsHelper{
		registry:                prometheus.NewRegistry(),
		ConnectionAcceptCounter: counter("connection_accept_counter", "accepted connections"),
		ConnectionCloseCounter:  counter("connection_close_counter", "closed connections"),
		ConnectionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: job,
			Name:      "connections",
			Help:      "open connections",
		}),
		WaitCounter:       counter("wait_counter", "poller waits"),
		ReadyEventCounter: counter("ready_event_counter", "ready events reported by the poller"),
		BytesInCounter:    counter("bytes_in_counter", "bytes received"),
		BytesOutCounter:   counter("bytes_out_counter", "bytes sent"),
		ErrorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: job,
			Name:      "error_counter",
			Help:      "failures by operation",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.ConnectionAcceptCounter,
		m.ConnectionCloseCounter,
		m.ConnectionGauge,
		m.WaitCounter,
		m.ReadyEventCounter,
		m.BytesInCounter,
		m.BytesOutCounter,
		m.ErrorCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.PushGateway != "" {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		pusher := push.New(cfg.PushGateway, job).Gatherer(m.registry)
		interval := time.Duration(cfg.PushIntervalMs) * time.Millisecond
		gopool.Go(func() {
			defer utils.HandlePanic(srvLogger, func() {
				close(m.done)
			})
			m.pushLoop(pusher, interval)
		})
	}
	return m
}

func (m *MetricsHelper) pushLoop(pusher *push.Pusher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			// last push so short runs still show up
			if err := pusher.Add(); err != nil {
				srvLogger.Warn("prometheus pusher push failed", zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := pusher.Add(); err != nil {
				srvLogger.Warn("prometheus pusher push failed", zap.Error(err))
			}
		}
	}
}

func (m *MetricsHelper) Registry() *prometheus.Registry {
	return m.registry
}

// Stop ends the push loop, if any, after one final push.
func (m *MetricsHelper) Stop() {
	if m.stop == nil {
		return
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}
