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

	"github.com/daisycv/visionlink/internal/logging"
	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/peer"
)

const serveReportEvery = 5 * time.Second

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	cfg.Logging.LogToFile = false
	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, ""); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logMgr.Close() }()
	logger := logMgr.Logger("serve")

	srv := peer.NewServer(peer.ServerParams{
		Addr: c.String(FlagListen.Name),
		OnMessage: func(remote string, msg message.Message) {
			payload, _ := msg.Payload()
			logger.Info("client message", "remote", remote, "type", msg.Type(), "len", len(payload))
		},
		Logger: logMgr.Logger("peer"),
	})
	if err := srv.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		report(gctx, srv, logger)
		return nil
	})
	if muteAfter := c.Duration(FlagMuteAfter.Name); muteAfter > 0 {
		muteFor := c.Duration(FlagMuteFor.Name)
		g.Go(func() error {
			simulateStall(gctx, srv, logger, muteAfter, muteFor)
			return nil
		})
	}

	return g.Wait()
}

func report(ctx context.Context, srv *peer.Server, logger *slog.Logger) {
	ticker := time.NewTicker(serveReportEvery)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := srv.HeartbeatsReceived()
			logger.Info("heartbeats", "total", total, "rate_per_s", float64(total-last)/serveReportEvery.Seconds())
			last = total
		}
	}
}

// simulateStall mutes the server after muteAfter and, when muteFor is set,
// unmutes it again once that has passed.
func simulateStall(ctx context.Context, srv *peer.Server, logger *slog.Logger, muteAfter, muteFor time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(muteAfter):
	}
	srv.SetMuted(true)
	logger.Warn("muted: heartbeats are no longer answered")

	if muteFor <= 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(muteFor):
	}
	srv.SetMuted(false)
	logger.Info("unmuted")
}
