package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultPublishTimeout = 5 * time.Second
)

var (
	ErrNotConnected   = errors.New("mqtt not connected")
	ErrConnectTimeout = errors.New("mqtt connect timeout")
	ErrPublishTimeout = errors.New("mqtt publish timeout")
)

// Will is the retained message the broker publishes if the mirror vanishes.
type Will struct {
	Topic   string
	Payload []byte
}

type PublisherParams struct {
	URL      string
	ClientID string
	Username string
	Password string
	Will     *Will

	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Logger *slog.Logger
}

func (p *PublisherParams) EnsureDefaults() {
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.PublishTimeout <= 0 {
		p.PublishTimeout = DefaultPublishTimeout
	}
	if p.NewClientFunc == nil {
		p.NewClientFunc = mqtt.NewClient
	}
	if p.Logger == nil {
		p.Logger = slog.Default().With("component", "mirror")
	}
}

// PublisherStatus summarises broker connectivity and publish activity.
type PublisherStatus struct {
	Connected     bool
	Published     uint64
	LastPublished time.Time
}

// Publisher wraps a paho client with bounded connect and publish waits.
type Publisher struct {
	params PublisherParams
	client mqtt.Client
	logger *slog.Logger

	connected     atomic.Bool
	published     atomic.Uint64
	lastPublished atomic.Pointer[time.Time]
}

func NewPublisher(params PublisherParams) *Publisher {
	params.EnsureDefaults()

	p := &Publisher{params: params, logger: params.Logger}
	p.client = p.newMQTTClient()
	zero := time.Time{}
	p.lastPublished.Store(&zero)

	return p
}

func (p *Publisher) Connect() error {
	if p.connected.Load() {
		return nil
	}

	timer := time.NewTimer(p.params.ConnectTimeout)
	defer timer.Stop()

	token := p.client.Connect()
	select {
	case <-timer.C:
		return ErrConnectTimeout
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect %s: %w", p.params.URL, err)
		}
	}

	p.connected.Store(true)
	return nil
}

func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

func (p *Publisher) Status() PublisherStatus {
	return PublisherStatus{
		Connected:     p.IsConnected(),
		Published:     p.published.Load(),
		LastPublished: *p.lastPublished.Load(),
	}
}

func (p *Publisher) Publish(topic string, qos byte, retained bool, payload any) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	timer := time.NewTimer(p.params.PublishTimeout)
	defer timer.Stop()

	token := p.client.Publish(topic, qos, retained, payload)
	select {
	case <-timer.C:
		return ErrPublishTimeout
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}

	now := time.Now()
	p.lastPublished.Store(&now)
	p.published.Add(1)
	return nil
}

// Disconnect waits up to 250ms for in-flight work before closing.
func (p *Publisher) Disconnect() {
	if p.connected.Swap(false) {
		p.client.Disconnect(250)
	}
}

func (p *Publisher) OnConnect(_ mqtt.Client) {
	p.logger.Info("mqtt connected", "url", p.params.URL)
	p.connected.Store(true)
}

func (p *Publisher) OnConnectionLost(_ mqtt.Client, err error) {
	p.logger.Warn("mqtt connection lost", "url", p.params.URL, "error", err)
	p.connected.Store(false)
}

func (p *Publisher) newMQTTClient() mqtt.Client {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(p.params.URL)
	opts.SetClientID(p.params.ClientID)
	opts.SetUsername(p.params.Username)
	opts.SetPassword(p.params.Password)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if p.params.Will != nil {
		opts.SetBinaryWill(p.params.Will.Topic, p.params.Will.Payload, 1, true)
	}

	opts.OnConnect = p.OnConnect
	opts.OnConnectionLost = p.OnConnectionLost

	return p.params.NewClientFunc(opts)
}
