// Package mirror republishes link state to an MQTT topic as a retained JSON
// document so dashboards see the current state on subscribe.
package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/daisycv/visionlink/internal/connectors"
)

const (
	updateBuffer    = 16
	stateQoS        = byte(1)
	retryConnectGap = 5 * time.Second
)

// StatePayload is the document published on every state change.
type StatePayload struct {
	State  connectors.ConnectionState `json:"state"`
	Target string                     `json:"target"`
	At     time.Time                  `json:"at"`
}

// StatusPublisher is the broker side used by StatusMirror.
type StatusPublisher interface {
	Connect() error
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) error
	Disconnect()
}

// StatusMirror is a link listener. Its callbacks only hand the new state to
// Run, which does all broker I/O on its own goroutine.
type StatusMirror struct {
	pub    StatusPublisher
	topic  string
	target string
	logger *slog.Logger
	now    func() time.Time

	updates chan StatePayload
}

func NewStatusMirror(pub StatusPublisher, topic, target string, logger *slog.Logger) *StatusMirror {
	if logger == nil {
		logger = slog.Default().With("component", "mirror")
	}

	return &StatusMirror{
		pub:     pub,
		topic:   topic,
		target:  target,
		logger:  logger,
		now:     time.Now,
		updates: make(chan StatePayload, updateBuffer),
	}
}

// WillPayload is the retained document the broker should publish for target
// if the mirror disappears without a clean disconnect.
func WillPayload(target string) []byte {
	raw, _ := json.Marshal(StatePayload{State: connectors.ConnectionStateDisconnected, Target: target})
	return raw
}

func (m *StatusMirror) OnConnected() {
	m.offer(connectors.ConnectionStateConnected)
}

func (m *StatusMirror) OnDisconnected() {
	m.offer(connectors.ConnectionStateDisconnected)
}

// offer never blocks: when Run falls behind, the oldest pending update is
// dropped because only the latest state matters for a retained topic.
func (m *StatusMirror) offer(state connectors.ConnectionState) {
	update := StatePayload{State: state, Target: m.target, At: m.now()}
	for {
		select {
		case m.updates <- update:
			return
		default:
		}
		select {
		case stale := <-m.updates:
			m.logger.Debug("dropping stale mirror update", "state", stale.State)
		default:
		}
	}
}

// Run publishes updates until ctx is done, then publishes a final
// disconnected state and closes the broker connection.
func (m *StatusMirror) Run(ctx context.Context) {
	m.ensureConnected()
	defer m.pub.Disconnect()

	var lastAttempt time.Time
	for {
		select {
		case <-ctx.Done():
			m.publish(StatePayload{State: connectors.ConnectionStateDisconnected, Target: m.target, At: m.now()})
			return
		case update := <-m.updates:
			if !m.pub.IsConnected() && time.Since(lastAttempt) >= retryConnectGap {
				lastAttempt = time.Now()
				m.ensureConnected()
			}
			m.publish(update)
		}
	}
}

func (m *StatusMirror) ensureConnected() {
	if err := m.pub.Connect(); err != nil {
		m.logger.Warn("mqtt connect failed", "error", err)
	}
}

func (m *StatusMirror) publish(update StatePayload) {
	raw, err := json.Marshal(update)
	if err != nil {
		m.logger.Error("encode mirror payload", "error", err)
		return
	}
	if err := m.pub.Publish(m.topic, stateQoS, true, raw); err != nil {
		m.logger.Warn("mirror publish failed", "state", update.State, "error", err)
		return
	}
	m.logger.Debug("mirrored link state", "topic", m.topic, "state", update.State)
}
