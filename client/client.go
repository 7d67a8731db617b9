// Package client talks to the echo server over a blocking socket.
package client

import (
	"io"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/logs"
	"github.com/Trinoooo/eggie_poll/socket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var cliLogger = logs.With("client")

type Client struct {
	sock *socket.Socket
	addr string
}

// Dial connects to host, which must be a dotted IPv4 literal.
func Dial(host string, port uint16) (*Client, error) {
	sock, err := socket.Create()
	if err != nil {
		return nil, err
	}
	if err = sock.Connect(host, port); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &Client{
		sock: sock,
		addr: host,
	}, nil
}

// Echo sends msg and waits until the same number of bytes came back.
func (c *Client) Echo(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		e := errs.NewInvalidParamErr()
		cliLogger.Error(e.Error(), zap.String(consts.LogFieldParams, "msg"), zap.Int(consts.LogFieldValue, 0))
		return nil, e
	}
	if err := c.sock.SendAll(msg); err != nil {
		return nil, err
	}

	reply := make([]byte, len(msg))
	if _, err := io.ReadFull(c.sock, reply); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			cliLogger.Warn("server closed the connection", zap.String(consts.LogFieldAddr, c.addr))
		}
		return nil, err
	}
	return reply, nil
}

func (c *Client) EchoString(msg string) (string, error) {
	reply, err := c.Echo([]byte(msg))
	return string(reply), err
}

func (c *Client) Close() error {
	return c.sock.Close()
}
