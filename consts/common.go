package consts

const (
	B = 1 << (iota * 10)
	KB
	MB
	GB
)

const HelpTemplate = `NAME:
   {{.Name}} - {{.Usage}}
USAGE:
   {{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}
   {{if len .Authors}}
AUTHOR:
   {{range .Authors}}{{ . }}{{end}}
   {{end}}{{if .Commands}}
COMMANDS:
{{range .Commands}}{{if not .HideHelp}}   {{join .Names ", "}}{{ "\t"}}{{.Usage}}{{ "\n" }}{{end}}{{end}}{{end}}{{if .VisibleFlags}}
GLOBAL OPTIONS:
   {{range .VisibleFlags}}{{.}}
   {{end}}{{end}}{{if .Copyright }}
COPYRIGHT:
   {{.Copyright}}
   {{end}}{{if .Version}}
VERSION:
   {{.Version}}
   {{end}}
`

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8014
	DefaultMaxEvents     = 256
	DefaultWaitTimeoutMs = 100
	DefaultRecvSize      = 4 * KB
	DefaultPushInterval  = 5000
	DefaultMetricsJob    = "eggie_poll"
	MaxEvents            = 64 * KB
)

// log field keys
const (
	LogFieldComponent = "component"
	LogFieldParams    = "params"
	LogFieldValue     = "value"
	LogFieldFd        = "fd"
	LogFieldMask      = "mask"
	LogFieldAddr      = "addr"
	LogFieldCount     = "count"
)
