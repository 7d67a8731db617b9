package consts

const (
	EnvPrefix = "EGGIE_POLL"                      // viper AutomaticEnv prefix
	Env       = "EGGIE_POLL_ENV"                  // "test" switches loggers to development mode
	Host      = "EGGIE_POLL_HOST"                 // only ipv4 literal for now, no dns
	Port      = "EGGIE_POLL_PORT"                 // port
	Config    = "EGGIE_POLL_CONFIG"               // config file path
	MaxEvent  = "EGGIE_POLL_MAX_EVENTS"           // events reported per wait
	Gateway   = "EGGIE_POLL_METRICS_PUSH_GATEWAY" // prometheus push gateway
)
