package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/daisycv/visionlink/internal/bus"
	"github.com/daisycv/visionlink/internal/connectors"
	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/transport"
)

const (
	DefaultHeartbeatInterval = 100 * time.Millisecond
	DefaultReconnectBackoff  = 250 * time.Millisecond
	DefaultLivenessThreshold = 800 * time.Millisecond
	DefaultConnectTimeout    = 2 * time.Second
	DefaultReadTimeout       = time.Second
	DefaultWriteTimeout      = time.Second
)

var ErrAlreadyStarted = errors.New("link client already started")

type ClientParams struct {
	// NewTransport builds a fresh, unconnected transport for every connect attempt.
	NewTransport func() transport.Transport

	QueueCapacity     int
	HeartbeatInterval time.Duration
	ReconnectBackoff  time.Duration
	LivenessThreshold time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	Bus       bus.MessageBus
	OnMessage func(msg message.Message)
	Clock     Clock
	Logger    *slog.Logger
}

func (p *ClientParams) EnsureDefaults() {
	if p.QueueCapacity <= 0 {
		p.QueueCapacity = DefaultQueueCapacity
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if p.ReconnectBackoff <= 0 {
		p.ReconnectBackoff = DefaultReconnectBackoff
	}
	if p.LivenessThreshold <= 0 {
		p.LivenessThreshold = DefaultLivenessThreshold
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.ReadTimeout <= 0 {
		p.ReadTimeout = DefaultReadTimeout
	}
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = DefaultWriteTimeout
	}
	if p.Clock == nil {
		p.Clock = newMonoClock()
	}
	if p.Logger == nil {
		p.Logger = slog.Default().With("component", "link")
	}
}

// Listener is told about connection state changes. Callbacks run on the
// connection worker goroutine and must return quickly. A callback may call
// NotifyConnected or NotifyDisconnected; that change reaches listeners after
// the current round of callbacks has returned.
type Listener interface {
	OnConnected()
	OnDisconnected()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Connected    func()
	Disconnected func()
}

func (f ListenerFuncs) OnConnected() {
	if f.Connected != nil {
		f.Connected()
	}
}

func (f ListenerFuncs) OnDisconnected() {
	if f.Disconnected != nil {
		f.Disconnected()
	}
}

// linkState holds every field shared across goroutines.
type linkState struct {
	enabled      atomic.Bool
	state        atomic.Value // connectors.ConnectionState
	sock         atomic.Pointer[socket]
	lastSent     atomic.Int64
	lastReceived atomic.Int64
	lastGap      atomic.Int64
	connectFails atomic.Int64
	endpoint     atomic.Pointer[endpoint]
}

// endpoint names where the most recently built transport points.
type endpoint struct {
	transport string
	target    string
}

type listenerEntry struct {
	id int
	l  Listener
}

// Client keeps the link to the controller alive.
type Client struct {
	params ClientParams
	logger *slog.Logger
	clock  Clock
	queue  *MessageQueue

	st linkState

	notifyMu      sync.Mutex
	delivering    bool
	pendingStates []connectors.ConnectionState

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int

	started atomic.Bool
	stop    chan struct{}
	wg      conc.WaitGroup
}

func NewClient(params ClientParams) (*Client, error) {
	if params.NewTransport == nil {
		return nil, fmt.Errorf("NewTransport is nil")
	}
	params.EnsureDefaults()

	probe := params.NewTransport()
	if probe == nil {
		return nil, fmt.Errorf("NewTransport returned nil")
	}

	c := &Client{
		params: params,
		logger: params.Logger,
		clock:  params.Clock,
		queue:  NewMessageQueue(params.QueueCapacity),
		stop:   make(chan struct{}),
	}
	c.queue.onDrop = c.onQueueDrop
	c.setEndpoint(probe.Name(), probe.Target())
	c.st.enabled.Store(true)
	c.st.state.Store(connectors.ConnectionStateDisconnected)
	c.st.lastSent.Store(c.clock.NowMillis())

	return c, nil
}

// Start launches the connection worker and both I/O pathways. Cancelling ctx
// disables the client.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.wg.Go(func() {
		select {
		case <-runCtx.Done():
			c.Disable()
		case <-c.stop:
		}
		cancel()
	})
	c.wg.Go(func() { c.runConnection(runCtx) })
	c.wg.Go(func() { c.runReceiver(runCtx) })
	c.wg.Go(func() { c.runSender(runCtx) })

	ep := c.st.endpoint.Load()
	c.logger.Info("link started", "transport", ep.transport, "target", ep.target)

	return nil
}

// Disable is the only shutdown path. The worker observes it at the top of
// its next iteration.
func (c *Client) Disable() {
	if c.st.enabled.CompareAndSwap(true, false) {
		c.logger.Info("link disabled")
		close(c.stop)
	}
}

// Wait blocks until every goroutine started by Start has returned.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) Enabled() bool {
	return c.st.enabled.Load()
}

func (c *Client) State() connectors.ConnectionState {
	return c.st.state.Load().(connectors.ConnectionState)
}

func (c *Client) Connected() bool {
	return c.State() == connectors.ConnectionStateConnected
}

// Target is the endpoint of the most recent connect attempt. It follows the
// transport factory, so an endpoint change shows up on the next reconnect.
func (c *Client) Target() string {
	return c.st.endpoint.Load().target
}

func (c *Client) setEndpoint(name, target string) {
	if cur := c.st.endpoint.Load(); cur != nil && cur.transport == name && cur.target == target {
		return
	}
	c.st.endpoint.Store(&endpoint{transport: name, target: target})
}

func (c *Client) MessageQueue() *MessageQueue {
	return c.queue
}

// Enqueue offers msg to the outbound queue, waiting at most timeout.
func (c *Client) Enqueue(msg message.Message, timeout time.Duration) bool {
	return c.queue.Offer(msg, timeout)
}

func (c *Client) LastSentHeartbeat() int64 {
	return c.st.lastSent.Load()
}

func (c *Client) LastReceivedHeartbeat() int64 {
	return c.st.lastReceived.Load()
}

// RecordHeartbeat advances the last-received timestamp. Older values are ignored.
func (c *Client) RecordHeartbeat(atMillis int64) {
	for {
		cur := c.st.lastReceived.Load()
		if atMillis <= cur {
			return
		}
		if c.st.lastReceived.CompareAndSwap(cur, atMillis) {
			return
		}
	}
}

// AddListener registers l and returns a func that removes it.
func (c *Client) AddListener(l Listener) (remove func()) {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, l: l})
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			for i, entry := range c.listeners {
				if entry.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// TryConnecting makes one connect attempt bounded by the connect timeout.
// Success installs a new socket but leaves the connection state alone: only
// heartbeat liveness proves the peer is there.
func (c *Client) TryConnecting(ctx context.Context) error {
	if stale := c.st.sock.Load(); stale != nil && !stale.usable() {
		if c.st.sock.CompareAndSwap(stale, nil) {
			c.discardSocket(stale, "stale")
		}
	}

	tr := c.params.NewTransport()
	target := tr.Target()
	c.setEndpoint(tr.Name(), target)

	if c.st.connectFails.Load() == 0 {
		c.publishStatus(connectors.ConnectionStateConnecting, nil)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.params.ConnectTimeout)
	defer cancel()

	if err := tr.Connect(connectCtx); err != nil {
		fails := c.st.connectFails.Add(1)
		if fails == 1 {
			c.logger.Warn("connect failed, retrying", "target", target, "error", err)
			c.publishStatus(c.State(), err)
		} else {
			c.logger.Debug("connect failed", "target", target, "attempt", fails, "error", err)
		}

		return fmt.Errorf("connect %s: %w", target, err)
	}

	if fails := c.st.connectFails.Swap(0); fails > 0 {
		c.logger.Info("connected after retries", "target", target, "failed_attempts", fails)
	}
	c.installSocket(newSocket(tr))

	return nil
}

func (c *Client) NotifyConnected() {
	c.transition(connectors.ConnectionStateConnected)
}

func (c *Client) NotifyDisconnected() {
	c.transition(connectors.ConnectionStateDisconnected)
}

// transition is a no-op when already in next, so listeners see each change
// once. A notify issued from inside a listener callback is queued and
// delivered by the outer call after the current callbacks return.
func (c *Client) transition(next connectors.ConnectionState) {
	c.notifyMu.Lock()
	prev := c.State()
	if prev == next {
		c.notifyMu.Unlock()
		return
	}
	c.st.state.Store(next)
	c.logger.Info("link state changed", "from", prev, "to", next, "gap_ms", c.gapForStatus())

	c.pendingStates = append(c.pendingStates, next)
	if c.delivering {
		c.notifyMu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pendingStates) > 0 {
		state := c.pendingStates[0]
		c.pendingStates = c.pendingStates[1:]
		c.notifyMu.Unlock()
		c.deliver(state)
		c.notifyMu.Lock()
	}
	c.delivering = false
	c.notifyMu.Unlock()
}

func (c *Client) deliver(state connectors.ConnectionState) {
	for _, l := range c.snapshotListeners() {
		if state == connectors.ConnectionStateConnected {
			l.OnConnected()
		} else {
			l.OnDisconnected()
		}
	}
	c.publishStatus(state, nil)
}

func (c *Client) snapshotListeners() []Listener {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	out := make([]Listener, 0, len(c.listeners))
	for _, entry := range c.listeners {
		out = append(out, entry.l)
	}

	return out
}

func (c *Client) currentSocket() *socket {
	return c.st.sock.Load()
}

func (c *Client) socketUsable() bool {
	return c.currentSocket().usable()
}

func (c *Client) installSocket(s *socket) {
	if old := c.st.sock.Swap(s); old != nil {
		c.discardSocket(old, "replaced")
	}
	c.logger.Debug("socket installed", "session", s.id, "target", s.tr.Target())
	c.publish(connectors.TopicSession, connectors.SessionEvent{
		SessionID: s.id.String(),
		Target:    s.tr.Target(),
		Opened:    true,
		Timestamp: s.openedAt,
	})
}

func (c *Client) discardSocket(s *socket, fallbackReason string) {
	s.close()
	reason := s.closeReason()
	if reason == "" {
		reason = fallbackReason
	}
	c.logger.Debug("socket discarded", "session", s.id, "reason", reason, "lifetime", time.Since(s.openedAt))
	c.publish(connectors.TopicSession, connectors.SessionEvent{
		SessionID: s.id.String(),
		Target:    s.tr.Target(),
		Opened:    false,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func (c *Client) gapForStatus() int64 {
	if c.st.lastReceived.Load() == 0 {
		return -1
	}

	return c.st.lastGap.Load()
}

func (c *Client) publishStatus(state connectors.ConnectionState, err error) {
	ep := c.st.endpoint.Load()
	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: ep.transport,
		Target:        ep.target,
		GapMS:         c.gapForStatus(),
		Timestamp:     time.Now(),
	}
	if s := c.currentSocket(); s != nil {
		status.SessionID = s.id.String()
		status.Target = s.tr.Target()
	}
	if err != nil {
		status.Err = err.Error()
	}
	c.publish(connectors.TopicConnStatus, status)
}

func (c *Client) publish(topic string, msg any) {
	if c.params.Bus == nil {
		return
	}
	c.params.Bus.Publish(topic, msg)
}

func (c *Client) onQueueDrop(msg message.Message, total uint64) {
	c.logger.Debug("outbound message dropped", "type", msg.Type(), "dropped_total", total, "queue_len", c.queue.Len())
	c.publish(connectors.TopicQueueDrop, connectors.QueueDrop{
		Type:      msg.Type(),
		Dropped:   total,
		Timestamp: time.Now(),
	})
}
