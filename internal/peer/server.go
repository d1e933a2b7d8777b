// Package peer implements the controller end of the link: it accepts client
// connections and answers every heartbeat with one of its own.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/daisycv/visionlink/internal/message"
	"github.com/daisycv/visionlink/internal/transport"
)

type ServerParams struct {
	Addr      string
	OnMessage func(remote string, msg message.Message)
	Logger    *slog.Logger
}

type conn struct {
	net.Conn
	writeMu sync.Mutex
}

func (c *conn) send(msg message.Message) error {
	raw, err := message.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return transport.WriteFrame(c.Conn, raw)
}

type Server struct {
	params ServerParams
	logger *slog.Logger
	muted  atomic.Bool

	mu    sync.Mutex
	ln    net.Listener
	conns map[*conn]struct{}

	heartbeats atomic.Uint64
}

func NewServer(params ServerParams) *Server {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default().With("component", "peer")
	}

	return &Server{params: params, logger: logger, conns: make(map[*conn]struct{})}
}

// Listen binds the listening socket so Addr is known before Serve runs.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.params.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.params.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("listening", "addr", ln.Addr().String())

	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

// SetMuted stops (or resumes) answering heartbeats while keeping sockets open.
func (s *Server) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// HeartbeatsReceived counts heartbeats seen across all connections.
func (s *Server) HeartbeatsReceived() uint64 {
	return s.heartbeats.Load()
}

// Broadcast sends msg to every connected client.
func (s *Server) Broadcast(msg message.Message) error {
	var errs []error
	for _, c := range s.snapshot() {
		if err := c.send(msg); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", c.RemoteAddr(), err))
		}
	}

	return errors.Join(errs...)
}

// DropConnections closes every accepted connection; the listener stays up.
func (s *Server) DropConnections() {
	for _, c := range s.snapshot() {
		_ = c.Close()
	}
}

// Serve accepts connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		s.DropConnections()
		return nil
	})
	g.Go(func() error {
		for {
			raw, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			c := &conn{Conn: raw}
			s.track(c)
			// DropConnections may have already taken its snapshot.
			if gctx.Err() != nil {
				s.untrack(c)
				_ = c.Close()
				return nil
			}
			g.Go(func() error {
				s.handle(c)
				return nil
			})
		}
	})

	return g.Wait()
}

func (s *Server) handle(c *conn) {
	remote := c.RemoteAddr().String()
	logger := s.logger.With("remote", remote)
	logger.Info("client connected")
	defer func() {
		s.untrack(c)
		_ = c.Close()
		logger.Info("client disconnected")
	}()

	for {
		payload, err := transport.ReadFrame(c)
		if err != nil {
			logger.Debug("read failed", "error", err)
			return
		}
		msg, err := message.Decode(payload)
		if err != nil {
			logger.Warn("decode failed", "len", len(payload), "error", err)
			continue
		}
		if !message.IsHeartbeat(msg) {
			if s.params.OnMessage != nil {
				s.params.OnMessage(remote, msg)
			}
			continue
		}

		s.heartbeats.Add(1)
		if s.muted.Load() {
			continue
		}
		if err := c.send(message.NewHeartbeat()); err != nil {
			logger.Debug("heartbeat reply failed", "error", err)
			return
		}
	}
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) snapshot() []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}

	return out
}
