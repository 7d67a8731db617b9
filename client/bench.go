package client

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/logs"
	"github.com/Trinoooo/eggie_poll/utils"
	"github.com/bytedance/gopkg/util/gopool"
	"go.uber.org/zap"
)

type BenchOptions struct {
	Host        string
	Port        uint16
	Clients     int
	Messages    int // per client
	PayloadSize int
}

type BenchResult struct {
	Messages int64
	Bytes    int64
	Failures int64
	Elapsed  time.Duration
}

// Throughput is echoed messages per second.
func (r *BenchResult) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Messages) / r.Elapsed.Seconds()
}

// Bench runs Clients concurrent connections on a dedicated goroutine pool,
// each echoing Messages payloads of PayloadSize bytes and checking the reply.
func Bench(opts BenchOptions) (*BenchResult, error) {
	if opts.Clients <= 0 || opts.Messages <= 0 || opts.PayloadSize <= 0 || opts.PayloadSize > consts.MB {
		e := errs.NewInvalidParamErr()
		logs.Error(e.Error(), zap.String(consts.LogFieldParams, "bench"), zap.Any(consts.LogFieldValue, opts))
		return nil, e
	}

	pool := gopool.NewPool("bench", int32(opts.Clients), gopool.NewConfig())
	payload := bytes.Repeat([]byte{'e'}, opts.PayloadSize)
	var (
		wg       sync.WaitGroup
		messages int64
		failures int64
	)

	start := time.Now()
	for i := 0; i < opts.Clients; i++ {
		wg.Add(1)
		pool.Go(func() {
			defer utils.HandlePanic(cliLogger, wg.Done)

			c, err := Dial(opts.Host, opts.Port)
			if err != nil {
				atomic.AddInt64(&failures, int64(opts.Messages))
				return
			}
			defer c.Close()

			for j := 0; j < opts.Messages; j++ {
				reply, err := c.Echo(payload)
				if err != nil {
					atomic.AddInt64(&failures, int64(opts.Messages-j))
					return
				}
				if !bytes.Equal(reply, payload) {
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&messages, 1)
			}
		})
	}
	wg.Wait()

	result := &BenchResult{
		Messages: messages,
		Bytes:    messages * int64(opts.PayloadSize),
		Failures: failures,
		Elapsed:  time.Since(start),
	}
	cliLogger.Info("bench done",
		zap.Int64(consts.LogFieldCount, result.Messages),
		zap.Int64("failures", result.Failures),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}
