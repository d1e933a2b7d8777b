package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/daisycv/visionlink/internal/config"
	"github.com/daisycv/visionlink/internal/transport"
)

// TransportFactory builds a fresh transport for every connect attempt and
// lets the runtime swap the endpoint on config updates. The next reconnect
// picks up the new endpoint.
type TransportFactory struct {
	mu    sync.RWMutex
	cfg   config.ConnectionConfig
	build func() transport.Transport
}

func NewTransportFactory(cfg config.ConnectionConfig) (*TransportFactory, error) {
	f := &TransportFactory{}
	if err := f.Apply(cfg); err != nil {
		return nil, err
	}

	return f, nil
}

// Apply validates cfg by building a transport from it and keeps the current
// endpoint on error.
func (f *TransportFactory) Apply(cfg config.ConnectionConfig) error {
	build, err := builderForConnection(cfg)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.cfg = cfg
	f.build = build
	f.mu.Unlock()

	return nil
}

func (f *TransportFactory) New() transport.Transport {
	f.mu.RLock()
	build := f.build
	f.mu.RUnlock()

	return build()
}

func (f *TransportFactory) Name() string {
	return TransportNameFromConnector(f.Config().Connector)
}

func (f *TransportFactory) Target() string {
	return ConnectionTarget(f.Config())
}

func (f *TransportFactory) Config() config.ConnectionConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.cfg
}

func builderForConnection(cfg config.ConnectionConfig) (func() transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorIP:
		port := cfg.Port
		if port <= 0 {
			port = transport.DefaultIPPort
		}
		timeout := connectTimeout(cfg)
		return func() transport.Transport {
			return transport.NewIPTransport(cfg.Host, port, timeout)
		}, nil
	case config.ConnectorSerial:
		return func() transport.Transport {
			return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud)
		}, nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}

func connectTimeout(cfg config.ConnectionConfig) time.Duration {
	if d := cfg.ConnectTimeout.Std(); d > 0 {
		return d
	}
	return config.DefaultConnectTimeout
}
