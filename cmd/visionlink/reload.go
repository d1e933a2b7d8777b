package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/daisycv/visionlink/internal/app"
	"github.com/daisycv/visionlink/internal/config"
	"github.com/daisycv/visionlink/internal/platform"
)

// endpointLocks holds the lock for the endpoint the link currently targets.
type endpointLocks struct {
	dir    string
	target string
	lock   platform.EndpointLock
}

// acquire locks target, then releases the previous endpoint. A busy target
// leaves the current lock in place.
func (l *endpointLocks) acquire(target string) error {
	if target == l.target && l.lock != nil {
		return nil
	}

	lock, err := platform.AcquireEndpointLock(l.dir, target)
	switch {
	case errors.Is(err, platform.ErrEndpointBusy):
		return fmt.Errorf("%s: %w", target, err)
	case errors.Is(err, platform.ErrEndpointLockUnsupported):
		lock = nil
	case err != nil:
		return err
	}

	l.release()
	l.target = target
	l.lock = lock

	return nil
}

func (l *endpointLocks) release() {
	if l.lock != nil {
		_ = l.lock.Release()
		l.lock = nil
	}
}

// reloadSettings re-reads the config file and lays the connect flags over it
// again, so flags keep winning across reloads.
func reloadSettings(c *cli.Context) (config.AppConfig, error) {
	_, cfg, err := loadSettings(c)
	if err != nil {
		return config.AppConfig{}, err
	}
	applyConnectFlags(c, &cfg)

	return cfg, nil
}

// reloadOnHangup applies the config file on SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, c *cli.Context, rt *app.Runtime, locks *endpointLocks, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := applyReload(c, rt, locks); err != nil {
				logger.Warn("config reload rejected", "error", err)
				continue
			}
			status := rt.CurrentConnStatus()
			logger.Info("config reloaded", "target", rt.Transports.Target(), "state", status.State)
		}
	}
}

func applyReload(c *cli.Context, rt *app.Runtime, locks *endpointLocks) error {
	cfg, err := reloadSettings(c)
	if err != nil {
		return err
	}
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	prevTarget := locks.target
	if err := locks.acquire(app.ConnectionTarget(cfg.Connection)); err != nil {
		return err
	}
	if err := rt.ApplyConfig(cfg); err != nil {
		_ = locks.acquire(prevTarget)
		return err
	}

	return nil
}
