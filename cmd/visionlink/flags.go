package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/daisycv/visionlink/internal/app"
)

var FlagDataDir = &cli.StringFlag{
	Name:    "data-dir",
	Usage:   "directory for config, history and logs (default: user config dir)",
	EnvVars: []string{"VISIONLINK_DATA_DIR"},
}

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "config file path (default: <data-dir>/config.json)",
	EnvVars: []string{"VISIONLINK_CONFIG"},
}

var FlagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	Usage:   "one of: [debug, info, warn, error]",
	EnvVars: []string{"VISIONLINK_LOG_LEVEL"},
}

var FlagLogFormat = &cli.StringFlag{
	Name:    "log-format",
	Usage:   "one of: [text, json]",
	EnvVars: []string{"VISIONLINK_LOG_FORMAT"},
}

var FlagConnector = &cli.StringFlag{
	Name:    "connector",
	Usage:   "one of: [ip, serial]",
	EnvVars: []string{"VISIONLINK_CONNECTOR"},
}

var FlagHost = &cli.StringFlag{
	Name:    "host",
	Usage:   "controller host name or address",
	EnvVars: []string{"VISIONLINK_HOST"},
}

var FlagPort = &cli.IntFlag{
	Name:    "port",
	Usage:   "controller tcp port",
	EnvVars: []string{"VISIONLINK_PORT"},
}

var FlagSerialPort = &cli.StringFlag{
	Name:    "serial-port",
	Usage:   "serial device, e.g. /dev/ttyACM0 or COM3",
	EnvVars: []string{"VISIONLINK_SERIAL_PORT"},
}

var FlagSerialBaud = &cli.IntFlag{
	Name:    "serial-baud",
	EnvVars: []string{"VISIONLINK_SERIAL_BAUD"},
}

var FlagHeartbeatInterval = &cli.DurationFlag{
	Name:    "heartbeat-interval",
	EnvVars: []string{"VISIONLINK_HEARTBEAT_INTERVAL"},
}

var FlagReconnectBackoff = &cli.DurationFlag{
	Name:    "reconnect-backoff",
	EnvVars: []string{"VISIONLINK_RECONNECT_BACKOFF"},
}

var FlagLivenessThreshold = &cli.DurationFlag{
	Name:    "liveness-threshold",
	EnvVars: []string{"VISIONLINK_LIVENESS_THRESHOLD"},
}

var FlagQueueCapacity = &cli.IntFlag{
	Name:    "queue-capacity",
	EnvVars: []string{"VISIONLINK_QUEUE_CAPACITY"},
}

var FlagNoHistory = &cli.BoolFlag{
	Name:    "no-history",
	Usage:   "do not record connection history",
	EnvVars: []string{"VISIONLINK_NO_HISTORY"},
}

var FlagMirrorURL = &cli.StringFlag{
	Name:    "mirror-url",
	Usage:   "mirror link state to this MQTT broker, tcp://broker:port",
	EnvVars: []string{"VISIONLINK_MIRROR_URL"},
}

var FlagMirrorTopic = &cli.StringFlag{
	Name:    "mirror-topic",
	EnvVars: []string{"VISIONLINK_MIRROR_TOPIC"},
}

var FlagMirrorUsername = &cli.StringFlag{
	Name:    "mirror-username",
	EnvVars: []string{"VISIONLINK_MIRROR_USERNAME"},
}

var FlagMirrorPassword = &cli.StringFlag{
	Name:    "mirror-password",
	EnvVars: []string{"VISIONLINK_MIRROR_PASSWORD"},
}

var FlagSave = &cli.BoolFlag{
	Name:  "save",
	Usage: "write the effective connection settings back to the config file",
}

var FlagListenFor = &cli.DurationFlag{
	Name:  "listen-for",
	Usage: "disable the link after this long, e.g. 30s (default: until interrupt)",
}

var FlagSend = &cli.StringFlag{
	Name:  "send",
	Usage: "text payload to send to the controller while connected",
}

var FlagSendEvery = &cli.DurationFlag{
	Name:  "send-every",
	Value: time.Second,
}

var FlagListen = &cli.StringFlag{
	Name:    "listen",
	Value:   ":5800",
	EnvVars: []string{"VISIONLINK_LISTEN"},
}

var FlagMuteAfter = &cli.DurationFlag{
	Name:  "mute-after",
	Usage: "stop answering heartbeats after this long to simulate a stalled controller",
}

var FlagMuteFor = &cli.DurationFlag{
	Name:  "mute-for",
	Usage: "resume answering after being muted this long (default: stay muted)",
}

var FlagLimit = &cli.IntFlag{
	Name:  "limit",
	Value: app.RecentHistoryLoad,
}

var FlagSessions = &cli.BoolFlag{
	Name:  "sessions",
	Usage: "list socket sessions instead of state events",
}

var FlagClear = &cli.BoolFlag{
	Name:  "clear",
	Usage: "delete all recorded history",
}

var GlobalFlags = []cli.Flag{
	FlagDataDir,
	FlagConfig,
	FlagLogLevel,
	FlagLogFormat,
}

var ConnectFlags = []cli.Flag{
	FlagConnector,
	FlagHost,
	FlagPort,
	FlagSerialPort,
	FlagSerialBaud,
	FlagHeartbeatInterval,
	FlagReconnectBackoff,
	FlagLivenessThreshold,
	FlagQueueCapacity,
	FlagNoHistory,
	FlagMirrorURL,
	FlagMirrorTopic,
	FlagMirrorUsername,
	FlagMirrorPassword,
	FlagSave,
	FlagListenFor,
	FlagSend,
	FlagSendEvery,
}
