package link

import (
	"context"

	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/periodic"
)

// runConnection drives socket lifecycle and liveness until the client is
// disabled. It is the only writer of the socket pointer, lastSent and state.
func (c *Client) runConnection(ctx context.Context) {
	c.st.lastSent.Store(c.clock.NowMillis())

	w := &periodic.Worker{
		Name:    "connection",
		Period:  c.params.HeartbeatInterval,
		Running: c.Enabled,
		Tick:    func(s periodic.Sleeper) { c.connectionTick(ctx, s) },
		Stop:    c.stop,
		Logger:  c.logger,
	}
	w.Run()

	c.NotifyDisconnected()
	if s := c.st.sock.Swap(nil); s != nil {
		c.discardSocket(s, "link disabled")
	}
}

func (c *Client) connectionTick(ctx context.Context, s periodic.Sleeper) {
	if !c.socketUsable() && !c.Connected() {
		_ = c.TryConnecting(ctx)
		if !s.Sleep(c.params.ReconnectBackoff) && !c.Enabled() {
			return
		}
	}

	now := c.clock.NowMillis()
	if now-c.st.lastSent.Load() > c.params.HeartbeatInterval.Milliseconds() {
		// lastSent advances even when the offer fails so the cadence holds
		// under backpressure.
		if !c.queue.Offer(message.NewHeartbeat(), c.params.HeartbeatInterval) {
			c.logger.Debug("heartbeat not enqueued", "queue_len", c.queue.Len())
		}
		c.st.lastSent.Store(now)
	}

	c.evaluateLiveness()
}

func (c *Client) evaluateLiveness() {
	gap := c.st.lastReceived.Load() - c.st.lastSent.Load()
	if gap < 0 {
		gap = -gap
	}
	c.st.lastGap.Store(gap)

	threshold := c.params.LivenessThreshold.Milliseconds()
	connected := c.Connected()
	switch {
	case gap > threshold && connected:
		c.NotifyDisconnected()
	case gap <= threshold && !connected:
		c.NotifyConnected()
	}
}
