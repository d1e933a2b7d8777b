package link

import (
	"context"
	"time"

	"github.com/daisycv/visionlink/internal/connectors"
	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/transport"
)

const receiverIdleWait = 20 * time.Millisecond

// runReceiver reads frames from whichever socket is current. It never holds a
// socket across iterations.
func (c *Client) runReceiver(ctx context.Context) {
	for ctx.Err() == nil {
		sock := c.currentSocket()
		if !sock.usable() {
			sleepWithContext(ctx, receiverIdleWait)
			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, c.params.ReadTimeout)
		payload, err := sock.tr.ReadFrame(readCtx)
		cancel()
		if err != nil {
			if transport.IsTimeout(err) || ctx.Err() != nil {
				continue
			}
			if sock.markBroken(err) {
				c.logger.Warn("read failed, socket marked broken", "session", sock.id, "error", err)
			}
			continue
		}

		msg, err := message.Decode(payload)
		if err != nil {
			c.logger.Warn("decode inbound frame failed", "session", sock.id, "len", len(payload), "error", err)
			continue
		}
		c.handleInbound(sock, msg)
	}
}

func (c *Client) handleInbound(sock *socket, msg message.Message) {
	if message.IsHeartbeat(msg) {
		c.RecordHeartbeat(c.clock.NowMillis())
		return
	}

	c.logger.Debug("inbound message", "session", sock.id, "type", msg.Type())
	if c.params.OnMessage != nil {
		c.params.OnMessage(msg)
	}
	c.publish(connectors.TopicMessageIn, connectors.InboundMessage{
		SessionID: sock.id.String(),
		Message:   msg,
		Timestamp: time.Now(),
	})
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
