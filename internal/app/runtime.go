package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sourcegraph/conc"

	"github.com/daisycv/visionlink/internal/bus"
	"github.com/daisycv/visionlink/internal/config"
	"github.com/daisycv/visionlink/internal/connectors"
	"github.com/daisycv/visionlink/internal/link"
	"github.com/daisycv/visionlink/internal/logging"
	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/mirror"
	"github.com/daisycv/visionlink/internal/persistence"
)

const busCapacity = 256

// Options carries everything Initialize needs besides the parent context.
type Options struct {
	Paths  Paths
	Config config.AppConfig
	// OnMessage receives decoded non-heartbeat messages from the controller.
	OnMessage func(message.Message)
	// NewMQTTClient replaces the paho constructor when set.
	NewMQTTClient func(*mqtt.ClientOptions) mqtt.Client
}

type Runtime struct {
	mu sync.RWMutex

	// Ctx is derived from the parent passed to Initialize; cancelling the
	// parent disables the link.
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus

	History     *History
	WriterQueue *persistence.WriterQueue
	projection  *persistence.HistoryProjection
	// historyCancel stops the writer. It outlives the parent context so the
	// final disconnect and session close still reach the database.
	historyCancel context.CancelFunc

	Transports *TransportFactory
	Link       *link.Client
	Mirror     *mirror.StatusMirror

	background conc.WaitGroup
	closeOnce  sync.Once

	connSub      bus.Subscription
	connStatusMu sync.RWMutex
	connStatus   connectors.ConnectionStatus
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:        ctx,
		cancel:     cancel,
		Paths:      opts.Paths,
		Config:     cfg,
		connStatus: ConnectionStatusFromConfig(cfg.Connection),
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, opts.Paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	build := CurrentBuild()
	slog.Info("starting visionlink runtime", "version", build.Version, "build_date", build.Date, "revision", build.Revision)

	b := bus.New(logMgr.Logger("bus"), busCapacity)
	rt.Bus = b
	rt.connSub = b.Subscribe(connectors.TopicConnStatus)
	rt.background.Go(func() { rt.captureConnStatus(rt.connSub) })

	if cfg.History.Enabled {
		if err := rt.openHistory(parent); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	transports, err := NewTransportFactory(cfg.Connection)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize transport: %w", err)
	}
	rt.Transports = transports

	params := LinkParams(cfg)
	params.NewTransport = transports.New
	params.Bus = b
	params.OnMessage = opts.OnMessage
	params.Logger = logMgr.Logger("link")
	client, err := link.NewClient(params)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize link: %w", err)
	}
	rt.Link = client

	if cfg.Mirror.Enabled {
		rt.startMirror(ctx, cfg.Mirror, opts.NewMQTTClient)
	}

	return rt, nil
}

// LinkParams maps the link and connection sections onto client params.
func LinkParams(cfg config.AppConfig) link.ClientParams {
	return link.ClientParams{
		QueueCapacity:     cfg.Link.QueueCapacity,
		HeartbeatInterval: cfg.Link.HeartbeatInterval.Std(),
		ReconnectBackoff:  cfg.Link.ReconnectBackoff.Std(),
		LivenessThreshold: cfg.Link.LivenessThreshold.Std(),
		ConnectTimeout:    cfg.Connection.ConnectTimeout.Std(),
	}
}

func (r *Runtime) openHistory(parent context.Context) error {
	h, err := OpenHistory(parent, r.Paths.DBFile)
	if err != nil {
		return err
	}
	r.History = h

	historyCtx, cancel := context.WithCancel(context.WithoutCancel(parent))
	r.historyCancel = cancel
	writerQueue := persistence.NewWriterQueue(r.LogManager.Logger("persistence"), 512)
	writerQueue.Start(historyCtx)
	r.WriterQueue = writerQueue
	r.projection = persistence.StartHistoryProjection(r.Bus, writerQueue, h.StateEvents, h.Sessions)

	return nil
}

func (r *Runtime) startMirror(ctx context.Context, cfg config.MirrorConfig, newClient func(*mqtt.ClientOptions) mqtt.Client) {
	target := r.Transports.Target()
	pub := mirror.NewPublisher(mirror.PublisherParams{
		URL:           cfg.URL,
		ClientID:      cfg.ClientID,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Will:          &mirror.Will{Topic: cfg.Topic, Payload: mirror.WillPayload(target)},
		NewClientFunc: newClient,
		Logger:        r.LogManager.Logger("mirror"),
	})
	r.Mirror = mirror.NewStatusMirror(pub, cfg.Topic, target, r.LogManager.Logger("mirror"))
	r.Link.AddListener(r.Mirror)
	r.background.Go(func() { r.Mirror.Run(ctx) })
}

// Start launches the link. Cancelling the runtime context disables it.
func (r *Runtime) Start() error {
	return r.Link.Start(r.Ctx)
}

// Wait blocks until the link has been disabled and its goroutines returned.
func (r *Runtime) Wait() {
	r.Link.Wait()
}

// captureConnStatus runs until Close unsubscribes sub.
func (r *Runtime) captureConnStatus(sub bus.Subscription) {
	for raw := range sub {
		if status, ok := raw.(connectors.ConnectionStatus); ok {
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status connectors.ConnectionStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() connectors.ConnectionStatus {
	r.connStatusMu.RLock()
	defer r.connStatusMu.RUnlock()

	return r.connStatus
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

// ApplyConfig switches to cfg where that can happen live: logging and the
// connection endpoint, which the next reconnect picks up. Link timing,
// history and mirror changes need a restart. An invalid cfg changes nothing.
func (r *Runtime) ApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.Config

	if err := r.Transports.Apply(cfg.Connection); err != nil {
		return err
	}
	if err := r.LogManager.Configure(cfg.Logging, r.Paths.LogFile); err != nil {
		return err
	}
	r.Config = cfg

	if prev.Connection != cfg.Connection {
		slog.Info("connection endpoint changed; used from the next reconnect", "from", ConnectionTarget(prev.Connection), "to", ConnectionTarget(cfg.Connection))
	}
	if prev.Link != cfg.Link || prev.History != cfg.History || prev.Mirror != cfg.Mirror {
		slog.Warn("link, history or mirror settings changed; restart to apply")
	}

	return nil
}

// SaveConfig writes the active config to the config file.
func (r *Runtime) SaveConfig() error {
	return config.Save(r.Paths.ConfigFile, r.CurrentConfig())
}

// Close disables the link, flushes pending history writes and releases
// resources. It is safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.Link != nil {
			r.Link.Disable()
			r.Link.Wait()
		}
		if r.projection != nil {
			r.projection.Stop()
		}
		if r.connSub != nil {
			r.Bus.Unsubscribe(r.connSub, connectors.TopicConnStatus)
		}
		if r.historyCancel != nil {
			r.historyCancel()
		}
		if r.cancel != nil {
			r.cancel()
		}
		r.background.Wait()
		if r.WriterQueue != nil {
			<-r.WriterQueue.Done()
		}
		if r.Bus != nil {
			r.Bus.Close()
		}
		if r.History != nil {
			_ = r.History.Close()
		}
		if r.LogManager != nil {
			_ = r.LogManager.Close()
		}
	})

	return nil
}
