package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorIP       ConnectorType = "ip"
	ConnectorSerial   ConnectorType = "serial"
	DefaultIPPort                   = 5800
	DefaultSerialBaud               = 115200

	DefaultQueueCapacity     = 64
	DefaultHeartbeatInterval = 100 * time.Millisecond
	DefaultReconnectBackoff  = 250 * time.Millisecond
	DefaultLivenessThreshold = 800 * time.Millisecond
	DefaultConnectTimeout    = 2 * time.Second

	DefaultMirrorTopic    = "visionlink/status"
	DefaultMirrorClientID = "visionlink"
)

// Duration is a time.Duration stored as a Go duration string ("250ms").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var ms int64
		if numErr := json.Unmarshal(raw, &ms); numErr != nil {
			return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)

	return nil
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector      ConnectorType `json:"connector"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	SerialPort     string        `json:"serial_port"`
	SerialBaud     int           `json:"serial_baud"`
	ConnectTimeout Duration      `json:"connect_timeout"`
}

// LinkConfig tunes heartbeat timing and the outbound queue.
type LinkConfig struct {
	QueueCapacity     int      `json:"queue_capacity"`
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	ReconnectBackoff  Duration `json:"reconnect_backoff"`
	LivenessThreshold Duration `json:"liveness_threshold"`
}

// HistoryConfig controls the local connection history database.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	DBFile  string `json:"db_file"`
}

// MirrorConfig controls publishing link status to an MQTT broker.
type MirrorConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Link       LinkConfig       `json:"link"`
	Logging    LoggingConfig    `json:"logging"`
	History    HistoryConfig    `json:"history"`
	Mirror     MirrorConfig     `json:"mirror"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:      ConnectorIP,
			Host:           "",
			Port:           DefaultIPPort,
			SerialPort:     "",
			SerialBaud:     DefaultSerialBaud,
			ConnectTimeout: Duration(DefaultConnectTimeout),
		},
		Link: LinkConfig{
			QueueCapacity:     DefaultQueueCapacity,
			HeartbeatInterval: Duration(DefaultHeartbeatInterval),
			ReconnectBackoff:  Duration(DefaultReconnectBackoff),
			LivenessThreshold: Duration(DefaultLivenessThreshold),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			LogToFile: false,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Mirror: MirrorConfig{
			Enabled:  false,
			ClientID: DefaultMirrorClientID,
			Topic:    DefaultMirrorTopic,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorIP
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultIPPort
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Connection.ConnectTimeout <= 0 {
		c.Connection.ConnectTimeout = Duration(DefaultConnectTimeout)
	}
	if c.Link.QueueCapacity <= 0 {
		c.Link.QueueCapacity = DefaultQueueCapacity
	}
	if c.Link.HeartbeatInterval <= 0 {
		c.Link.HeartbeatInterval = Duration(DefaultHeartbeatInterval)
	}
	if c.Link.ReconnectBackoff <= 0 {
		c.Link.ReconnectBackoff = Duration(DefaultReconnectBackoff)
	}
	if c.Link.LivenessThreshold <= 0 {
		c.Link.LivenessThreshold = Duration(DefaultLivenessThreshold)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Mirror.ClientID == "" {
		c.Mirror.ClientID = DefaultMirrorClientID
	}
	if c.Mirror.Topic == "" {
		c.Mirror.Topic = DefaultMirrorTopic
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("ip host is required")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("ip port out of range: %d", c.Connection.Port)
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	if c.Link.HeartbeatInterval.Std() >= c.Link.LivenessThreshold.Std() {
		return fmt.Errorf("liveness threshold %s must exceed heartbeat interval %s",
			c.Link.LivenessThreshold.Std(), c.Link.HeartbeatInterval.Std())
	}
	if c.Mirror.Enabled && strings.TrimSpace(c.Mirror.URL) == "" {
		return errors.New("mirror url is required when mirror is enabled")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
