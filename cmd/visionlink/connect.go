package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/daisycv/visionlink/internal/app"
	"github.com/daisycv/visionlink/internal/bus"
	"github.com/daisycv/visionlink/internal/connectors"
	"github.com/daisycv/visionlink/internal/message"
)

// TypeText carries a UTF-8 note for the controller's driver station log.
const TypeText message.Type = 0x10

const sendTimeout = 100 * time.Millisecond

func runConnect(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	applyConnectFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid connection settings: %w", err)
	}
	locks := &endpointLocks{dir: paths.RootDir}
	if err := locks.acquire(app.ConnectionTarget(cfg.Connection)); err != nil {
		return err
	}
	defer locks.release()

	var logger *slog.Logger
	rt, err := app.Initialize(ctx, app.Options{
		Paths:  paths,
		Config: cfg,
		OnMessage: func(msg message.Message) {
			if logger != nil {
				logger.Info("controller message", "type", msg.Type())
			}
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	logger = rt.LogManager.Logger("cli")
	if c.Bool(FlagSave.Name) {
		if err := rt.SaveConfig(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logger.Info("config saved", "path", paths.ConfigFile)
	}
	logger.Info("connecting", "transport", rt.Transports.Name(), "target", rt.Transports.Target(), "history", cfg.History.Enabled, "mirror", cfg.Mirror.Enabled)

	subs := subscribeWatch(rt.Bus)
	if err := rt.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		watch(gctx, rt.Bus, subs, logger)
		return nil
	})
	g.Go(func() error {
		rt.Wait()
		cancel()
		return nil
	})
	g.Go(func() error {
		reloadOnHangup(gctx, c, rt, locks, logger)
		return nil
	})
	if listenFor := c.Duration(FlagListenFor.Name); listenFor > 0 {
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-time.After(listenFor):
				logger.Info("listen period elapsed", "duration", listenFor)
				rt.Link.Disable()
			}
			return nil
		})
	}
	if text := c.String(FlagSend.Name); text != "" {
		g.Go(func() error {
			sendLoop(gctx, rt, logger, []byte(text), c.Duration(FlagSendEvery.Name))
			return nil
		})
	}

	err = g.Wait()
	status := rt.CurrentConnStatus()
	logger.Info("link stopped", "last_state", status.State, "target", status.Target, "session", status.SessionID)

	return err
}

// sendLoop enqueues payload every period while the link is connected.
func sendLoop(ctx context.Context, rt *app.Runtime, logger *slog.Logger, payload []byte, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !rt.Link.Connected() {
				continue
			}
			if !rt.Link.Enqueue(message.NewRaw(TypeText, payload), sendTimeout) {
				logger.Warn("outbound queue full, message dropped", "type", TypeText)
			}
		}
	}
}

type watchSubs struct {
	status  bus.Subscription
	session bus.Subscription
	drop    bus.Subscription
}

func subscribeWatch(b bus.MessageBus) watchSubs {
	return watchSubs{
		status:  b.Subscribe(connectors.TopicConnStatus),
		session: b.Subscribe(connectors.TopicSession),
		drop:    b.Subscribe(connectors.TopicQueueDrop),
	}
}

// watch logs bus traffic until ctx is done.
func watch(ctx context.Context, b bus.MessageBus, subs watchSubs, logger *slog.Logger) {
	defer func() {
		b.Unsubscribe(subs.status, connectors.TopicConnStatus)
		b.Unsubscribe(subs.session, connectors.TopicSession)
		b.Unsubscribe(subs.drop, connectors.TopicQueueDrop)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-subs.status:
			if !ok {
				return
			}
			if status, ok := raw.(connectors.ConnectionStatus); ok {
				logger.Info("conn", "state", status.State, "target", status.Target, "gap_ms", status.GapMS, "session", status.SessionID, "error", status.Err)
			}
		case raw, ok := <-subs.session:
			if !ok {
				return
			}
			if ev, ok := raw.(connectors.SessionEvent); ok {
				if ev.Opened {
					logger.Info("session opened", "session", ev.SessionID, "target", ev.Target)
				} else {
					logger.Info("session closed", "session", ev.SessionID, "reason", ev.Reason)
				}
			}
		case raw, ok := <-subs.drop:
			if !ok {
				return
			}
			if drop, ok := raw.(connectors.QueueDrop); ok {
				logger.Debug("queue drop", "type", drop.Type, "dropped_total", drop.Dropped)
			}
		}
	}
}
