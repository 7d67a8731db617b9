package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Trinoooo/eggie_poll/client"
	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/utils"
	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func historyFile() (string, error) {
	path := filepath.Join(consts.HistoryDir, fmt.Sprintf("cmd_history_%s", time.Now().Format("20060102")))
	fd, err := utils.CheckAndCreateFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return "", err
	}
	return path, fd.Close()
}

func repl(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	c, err := client.Dial(cfg.Host, uint16(cfg.Port))
	if err != nil {
		fmt.Println(utils.WrapError("connect %s failed: %v", cfg.Addr(), err))
		return err
	}
	defer c.Close()

	// history is a nicety, the REPL works without it
	history, err := historyFile()
	if err != nil {
		fmt.Println(utils.WrapWarn("history disabled: %v", err))
	}
	input, err := readline.NewEx(&readline.Config{
		Prompt:       "> ",
		AutoComplete: readline.NewPrefixCompleter(readline.PcItem("exit")),
		HistoryFile:  history,
	})
	if err != nil {
		return err
	}
	defer input.Close()

	fmt.Println(utils.WrapInfo("connected to %s, type exit to quit", cfg.Addr()))
	return loop(input, c)
}

type lineReader interface {
	Readline() (string, error)
}

type echoer interface {
	EchoString(msg string) (string, error)
}

func loop(input lineReader, c echoer) error {
	for {
		line, err := input.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			return nil
		}

		reply, err := c.EchoString(line)
		if err != nil {
			fmt.Println(utils.WrapError("%v", err))
			if errs.IsIOErr(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return err
			}
			continue
		}
		fmt.Println(utils.WrapEcho(reply))
	}
}
