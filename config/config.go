// Package config loads the settings of the tools built on the poller: the
// echo server, the client and the bench runner.
//
// Precedence, lowest first: defaults, the yaml file, EGGIE_POLL_* env vars.
// Command line flags are applied on top by package cli.
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/Trinoooo/eggie_poll/consts"
	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/Trinoooo/eggie_poll/logs"
	"github.com/luci/go-render/render"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	Backlog        int     `mapstructure:"backlog"`
	MaxEvents      int     `mapstructure:"max_events"`
	WaitTimeoutMs  int     `mapstructure:"wait_timeout_ms"`
	RecvBufferSize int     `mapstructure:"recv_buffer_size"`
	ReuseAddr      bool    `mapstructure:"reuse_addr"`
	Metrics        Metrics `mapstructure:"metrics"`
}

type Metrics struct {
	PushGateway    string `mapstructure:"push_gateway"` // empty disables pushing
	PushIntervalMs int    `mapstructure:"push_interval_ms"`
	Job            string `mapstructure:"job"`
}

var defaults = map[string]interface{}{
	"host":                     consts.DefaultHost,
	"port":                     consts.DefaultPort,
	"backlog":                  0,
	"max_events":               consts.DefaultMaxEvents,
	"wait_timeout_ms":          consts.DefaultWaitTimeoutMs,
	"recv_buffer_size":         consts.DefaultRecvSize,
	"reuse_addr":               true,
	"metrics.push_gateway":     "",
	"metrics.push_interval_ms": consts.DefaultPushInterval,
	"metrics.job":              consts.DefaultMetricsJob,
}

// Default returns the configuration used when neither a file nor env vars are present.
func Default() *Config {
	return &Config{
		Host:           consts.DefaultHost,
		Port:           consts.DefaultPort,
		MaxEvents:      consts.DefaultMaxEvents,
		WaitTimeoutMs:  consts.DefaultWaitTimeoutMs,
		RecvBufferSize: consts.DefaultRecvSize,
		ReuseAddr:      true,
		Metrics: Metrics{
			PushIntervalMs: consts.DefaultPushInterval,
			Job:            consts.DefaultMetricsJob,
		},
	}
}

// Load reads path, which must exist when given. An empty path looks for
// config.yaml under consts.DefaultConfigPath and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(consts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.AddConfigPath(consts.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			e := errs.NewReadConfigErr().WithErr(err)
			logs.Error(e.Error(), zap.String(consts.LogFieldValue, path))
			return nil, e
		}
		logs.Debug("no config file, using defaults", zap.String(consts.LogFieldValue, consts.DefaultConfigPath))
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		e := errs.NewReadConfigErr().WithErr(err)
		logs.Error(e.Error())
		return nil, e
	}
	logs.Debug("config loaded", zap.String("config", render.Render(cfg)))
	return cfg, nil
}

// Validate checks every field and reports the first invalid one.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
		val  interface{}
	}{
		{"host", net.ParseIP(c.Host).To4() != nil, c.Host},
		{"port", c.Port >= 0 && c.Port <= 65535, c.Port},
		{"backlog", c.Backlog >= 0, c.Backlog},
		{"max_events", c.MaxEvents > 0 && c.MaxEvents <= consts.MaxEvents, c.MaxEvents},
		// the server loop must wake up now and then to notice Close
		{"wait_timeout_ms", c.WaitTimeoutMs > 0, c.WaitTimeoutMs},
		{"recv_buffer_size", c.RecvBufferSize > 0 && c.RecvBufferSize <= consts.MB, c.RecvBufferSize},
		{"metrics.push_interval_ms", c.Metrics.PushGateway == "" || c.Metrics.PushIntervalMs > 0, c.Metrics.PushIntervalMs},
		{"metrics.job", c.Metrics.PushGateway == "" || c.Metrics.Job != "", c.Metrics.Job},
	}
	for _, check := range checks {
		if !check.ok {
			e := errs.NewInvalidParamErr()
			logs.Error(e.Error(), zap.String(consts.LogFieldParams, check.name), zap.Any(consts.LogFieldValue, check.val))
			return e
		}
	}
	return nil
}

// Addr renders host:port for logs.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
