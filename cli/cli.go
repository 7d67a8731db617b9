package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Trinoooo/eggie_poll/client"
	"github.com/Trinoooo/eggie_poll/config"
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/logs"
	"github.com/Trinoooo/eggie_poll/poller"
	"github.com/Trinoooo/eggie_poll/server"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "yaml config file, defaults to config.yaml under the eggie_poll home dir.",
		EnvVars: []string{consts.Config},
	}
	flagHost = &cli.StringFlag{
		Name:    "host",
		Aliases: []string{"h"},
		Value:   consts.DefaultHost,
		Usage:   "server ipv4 address, dns names are not resolved.",
		EnvVars: []string{consts.Host},
	}
	flagPort = &cli.Int64Flag{
		Name:    "port",
		Aliases: []string{"p"},
		Value:   consts.DefaultPort,
		Usage:   "server port number, 0 < port < 65535 are available.",
		Action: func(c *cli.Context, port int64) error {
			if port <= 0 || port > 65535 {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "port"), zap.Int64(consts.LogFieldValue, port))
				return e
			}
			return nil
		},
		EnvVars: []string{consts.Port},
	}
	flagMaxEvents = &cli.Int64Flag{
		Name:    "max-events",
		Aliases: []string{"m"},
		Value:   consts.DefaultMaxEvents,
		Usage:   "max ready events per wait, 0 < events <= 65536 are available.",
		Action: func(c *cli.Context, events int64) error {
			if events <= 0 || events > consts.MaxEvents {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "max-events"), zap.Int64(consts.LogFieldValue, events))
				return e
			}
			return nil
		},
		EnvVars: []string{consts.MaxEvent},
	}
	flagWaitTimeout = &cli.Int64Flag{
		Name:  "wait-timeout",
		Value: consts.DefaultWaitTimeoutMs,
		Usage: "poller wait timeout in ms, also bounds how long shutdown takes.",
		Action: func(c *cli.Context, timeout int64) error {
			if timeout <= 0 {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "wait-timeout"), zap.Int64(consts.LogFieldValue, timeout))
				return e
			}
			return nil
		},
	}
	flagPollArray = &cli.BoolFlag{
		Name:  "poll-array",
		Usage: "use the poll array backend instead of the platform default.",
	}
	flagGateway = &cli.StringFlag{
		Name:    "push-gateway",
		Usage:   "prometheus push gateway url, metrics are not pushed when empty.",
		EnvVars: []string{consts.Gateway},
	}
	flagClients = &cli.IntFlag{
		Name:  "clients",
		Value: 16,
		Usage: "concurrent connections.",
	}
	flagMessages = &cli.IntFlag{
		Name:  "messages",
		Value: 1000,
		Usage: "messages per connection.",
	}
	flagSize = &cli.IntFlag{
		Name:  "size",
		Value: 64,
		Usage: "payload bytes per message, 0 < size <= 1MB are available.",
	}
)

type Wrapper struct {
	app *cli.App
}

func NewWrapper() *Wrapper {
	wrapper := &Wrapper{
		app: &cli.App{
			Name:    "eggie_poll",
			Usage:   "an echo server and client on a portable readiness poller",
			Version: "0.0.1.241016_alpha",
		},
	}
	wrapper.modifyDefaultHelp()
	wrapper.withFlags()
	wrapper.withCommands()
	wrapper.withAuthor()
	return wrapper
}

func (wrapper *Wrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *Wrapper) modifyDefaultHelp() {
	cli.HelpFlag = &cli.BoolFlag{
		Name: "help",
	}
	cli.AppHelpTemplate = consts.HelpTemplate
}

func (wrapper *Wrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagConfig,
		flagHost,
		flagPort,
	}
}

func (wrapper *Wrapper) withCommands() {
	wrapper.app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the echo server",
			Flags:  []cli.Flag{flagMaxEvents, flagWaitTimeout, flagPollArray, flagGateway},
			Action: serve,
		},
		{
			Name:   "client",
			Usage:  "interactive client, every line is echoed back",
			Action: repl,
		},
		{
			Name:   "bench",
			Usage:  "concurrent echo benchmark",
			Flags:  []cli.Flag{flagClients, flagMessages, flagSize},
			Action: bench,
		},
	}
}

func (wrapper *Wrapper) withAuthor() {
	wrapper.app.Authors = []*cli.Author{
		{
			Name:  "Trino",
			Email: "sujun.trinoooo@gmail.com",
		},
	}
}

// loadConfig merges the config file with flags the user actually set.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String(flagConfig.Name))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet(flagHost.Name) {
		cfg.Host = ctx.String(flagHost.Name)
	}
	if ctx.IsSet(flagPort.Name) {
		cfg.Port = int(ctx.Int64(flagPort.Name))
	}
	if ctx.IsSet(flagMaxEvents.Name) {
		cfg.MaxEvents = int(ctx.Int64(flagMaxEvents.Name))
	}
	if ctx.IsSet(flagWaitTimeout.Name) {
		cfg.WaitTimeoutMs = int(ctx.Int64(flagWaitTimeout.Name))
	}
	if ctx.IsSet(flagGateway.Name) {
		cfg.Metrics.PushGateway = ctx.String(flagGateway.Name)
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	var opts []server.Option
	if ctx.Bool(flagPollArray.Name) {
		opts = append(opts, server.WithPoller(poller.NewPollArray))
	}
	srv, err := server.NewEchoServer(cfg, opts...)
	if err != nil {
		return err
	}

	stop := watchSignals(srv.Close)
	defer stop()

	return srv.Serve()
}

// watchSignals calls shutdown on SIGINT and SIGTERM until the returned stop is
// called. stop returns once the watching goroutine has exited.
func watchSignals(shutdown func() error) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for range sig {
			logs.Info("shutdown...")
			if err := shutdown(); err != nil {
				logs.Error("server shutdown failed", zap.Error(err))
			}
		}
	}()

	return func() {
		signal.Stop(sig)
		close(sig)
		<-exited
	}
}

func bench(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	result, err := client.Bench(client.BenchOptions{
		Host:        cfg.Host,
		Port:        uint16(cfg.Port),
		Clients:     ctx.Int(flagClients.Name),
		Messages:    ctx.Int(flagMessages.Name),
		PayloadSize: ctx.Int(flagSize.Name),
	})
	if err != nil {
		return err
	}

	fmt.Printf("messages: %d, bytes: %d, failures: %d, elapsed: %v, throughput: %.0f msg/s\n",
		result.Messages, result.Bytes, result.Failures, result.Elapsed, result.Throughput())
	return nil
}
