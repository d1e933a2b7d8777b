package link

import (
	"context"

	"github.com/daisycv/visionlink/internal/message"
)

// runSender drains the queue onto the current socket. A message taken while
// no socket is usable is dropped; producers own their retries.
func (c *Client) runSender(ctx context.Context) {
	for {
		msg, err := c.queue.Take(ctx)
		if err != nil {
			return
		}
		c.transmit(ctx, msg)
	}
}

func (c *Client) transmit(ctx context.Context, msg message.Message) {
	sock := c.currentSocket()
	if !sock.usable() {
		c.logger.Debug("outbound message discarded: no socket", "type", msg.Type())
		return
	}

	raw, err := message.Encode(msg)
	if err != nil {
		c.logger.Warn("encode outbound message failed", "type", msg.Type(), "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.params.WriteTimeout)
	defer cancel()
	if err := sock.tr.WriteFrame(writeCtx, raw); err != nil {
		if sock.markBroken(err) {
			c.logger.Warn("write failed, socket marked broken", "session", sock.id, "error", err)
		}
	}
}
