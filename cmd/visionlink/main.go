package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/daisycv/visionlink/internal/app"
	"github.com/daisycv/visionlink/internal/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("visionlink terminated", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    app.Name,
		Usage:   "keep a heartbeat link between a vision coprocessor and the robot controller",
		Version: app.CurrentBuild().String(),
		Flags:   GlobalFlags,
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "connect to the controller and keep the link alive",
				Flags:  ConnectFlags,
				Action: runConnect,
			},
			{
				Name:   "serve",
				Usage:  "run a controller-side endpoint that answers heartbeats",
				Flags:  []cli.Flag{FlagListen, FlagMuteAfter, FlagMuteFor},
				Action: runServe,
			},
			{
				Name:   "history",
				Usage:  "show recorded link state changes",
				Flags:  []cli.Flag{FlagLimit, FlagSessions, FlagClear},
				Action: runHistory,
			},
		},
	}
}

// loadSettings resolves paths and loads the config file, then applies the
// global logging flags on top.
func loadSettings(c *cli.Context) (app.Paths, config.AppConfig, error) {
	var (
		paths app.Paths
		err   error
	)
	if dir := strings.TrimSpace(c.String(FlagDataDir.Name)); dir != "" {
		paths, err = app.ResolvePathsIn(dir)
	} else {
		paths, err = app.ResolvePaths()
	}
	if err != nil {
		return app.Paths{}, config.AppConfig{}, fmt.Errorf("resolve paths: %w", err)
	}
	if path := strings.TrimSpace(c.String(FlagConfig.Name)); path != "" {
		paths.ConfigFile = path
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return app.Paths{}, config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if c.IsSet(FlagLogLevel.Name) {
		cfg.Logging.Level = c.String(FlagLogLevel.Name)
	}
	if c.IsSet(FlagLogFormat.Name) {
		cfg.Logging.Format = c.String(FlagLogFormat.Name)
	}
	paths = paths.WithDBFile(cfg.History.DBFile)

	return paths, cfg, nil
}

// applyConnectFlags overlays explicitly set flags and env vars on cfg.
func applyConnectFlags(c *cli.Context, cfg *config.AppConfig) {
	if c.IsSet(FlagConnector.Name) {
		cfg.Connection.Connector = config.ConnectorType(strings.ToLower(strings.TrimSpace(c.String(FlagConnector.Name))))
	}
	if c.IsSet(FlagHost.Name) {
		cfg.Connection.Host = strings.TrimSpace(c.String(FlagHost.Name))
		if !c.IsSet(FlagConnector.Name) {
			cfg.Connection.Connector = config.ConnectorIP
		}
	}
	if c.IsSet(FlagPort.Name) {
		cfg.Connection.Port = c.Int(FlagPort.Name)
	}
	if c.IsSet(FlagSerialPort.Name) {
		cfg.Connection.SerialPort = strings.TrimSpace(c.String(FlagSerialPort.Name))
		if !c.IsSet(FlagConnector.Name) && !c.IsSet(FlagHost.Name) {
			cfg.Connection.Connector = config.ConnectorSerial
		}
	}
	if c.IsSet(FlagSerialBaud.Name) {
		cfg.Connection.SerialBaud = c.Int(FlagSerialBaud.Name)
	}
	if c.IsSet(FlagHeartbeatInterval.Name) {
		cfg.Link.HeartbeatInterval = config.Duration(c.Duration(FlagHeartbeatInterval.Name))
	}
	if c.IsSet(FlagReconnectBackoff.Name) {
		cfg.Link.ReconnectBackoff = config.Duration(c.Duration(FlagReconnectBackoff.Name))
	}
	if c.IsSet(FlagLivenessThreshold.Name) {
		cfg.Link.LivenessThreshold = config.Duration(c.Duration(FlagLivenessThreshold.Name))
	}
	if c.IsSet(FlagQueueCapacity.Name) {
		cfg.Link.QueueCapacity = c.Int(FlagQueueCapacity.Name)
	}
	if c.Bool(FlagNoHistory.Name) {
		cfg.History.Enabled = false
	}
	if c.IsSet(FlagMirrorURL.Name) {
		cfg.Mirror.URL = strings.TrimSpace(c.String(FlagMirrorURL.Name))
		cfg.Mirror.Enabled = cfg.Mirror.URL != ""
	}
	if c.IsSet(FlagMirrorTopic.Name) {
		cfg.Mirror.Topic = c.String(FlagMirrorTopic.Name)
	}
	if c.IsSet(FlagMirrorUsername.Name) {
		cfg.Mirror.Username = c.String(FlagMirrorUsername.Name)
	}
	if c.IsSet(FlagMirrorPassword.Name) {
		cfg.Mirror.Password = c.String(FlagMirrorPassword.Name)
	}
	cfg.FillMissingDefaults()
}
