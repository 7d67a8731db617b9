package main

import (
	"os"

	"github.com/Trinoooo/eggie_poll/cli"
	"github.com/Trinoooo/eggie_poll/logs"
	"github.com/Trinoooo/eggie_poll/socket"
	"go.uber.org/zap"
)

func main() {
	if err := socket.Startup(); err != nil {
		logs.Fatal("network stack startup failed", zap.Error(err))
	}

	err := cli.NewWrapper().Run(os.Args)

	if e := socket.Cleanup(); e != nil {
		logs.Warn("network stack cleanup failed", zap.Error(e))
	}
	if err != nil {
		logs.Error("eggie_poll exit", zap.Error(err))
		logs.Sync()
		os.Exit(1)
	}
	logs.Sync()
}
