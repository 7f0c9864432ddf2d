package redisserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/telemetry/logger"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
)

// Config holds the RESP server configuration.
type Config struct {
	// Address is the listen address.
	Address string

	// ReadTimeout bounds reading one command once its first byte arrived.
	ReadTimeout time.Duration

	// WriteTimeout bounds flushing one reply.
	WriteTimeout time.Duration

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration

	// RateLimit is the per-connection command rate. Zero disables it.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records per-command request metrics under protocol "resp".
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is a RESP2 server over a storage engine.
type Server struct {
	cfg     Config
	handler *CommandHandler
	logger  *slog.Logger
	metrics *metric.Registry

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing atomic.Bool
	wg      sync.WaitGroup
}

// New creates a server. Zero timeouts take the defaults.
func New(cfg Config, engine storage.Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = int(cfg.RateLimit) + 1
	}

	s := &Server{
		cfg:     cfg,
		handler: NewCommandHandler(engine, logger),
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on the configured address and serves until
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after
// Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("resp server listening", "address", ln.Addr().String())

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(c) {
			c.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.serveConn(c)
		}()
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
}

func (s *Server) serveConn(c net.Conn) {
	remote := c.RemoteAddr().String()
	br := bufio.NewReader(c)
	w := NewWriter(c)

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	}

	ctx, cancel := context.WithCancel(logger.WithClient(context.Background(), remote))
	defer cancel()

	s.logger.Debug("resp connection opened", "remote", remote)
	defer s.logger.Debug("resp connection closed", "remote", remote)

	for {
		// Idle connections may wait up to IdleTimeout for the next command.
		if err := c.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if _, err := br.Peek(1); err != nil {
			s.readFailed(remote, err)
			return
		}
		if err := c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		args, err := ReadCommand(br)
		if err != nil {
			if errors.Is(err, ErrProtocol) || errors.Is(err, ErrLimitExceeded) {
				s.logger.Warn("resp protocol error", "remote", remote, "error", err)
				w.Error("ERR " + err.Error())
				s.flush(c, w)
			} else {
				s.readFailed(remote, err)
			}
			return
		}
		if args == nil {
			continue
		}

		start := time.Now()
		var (
			name    string
			failed  bool
			quitErr error
		)
		if limiter != nil && !limiter.Allow() {
			name, failed = s.handler.label(args[0]), true
			w.Error(formatError(domain.ErrRateLimited))
		} else {
			name, failed, quitErr = s.handler.Handle(ctx, w, args)
		}
		s.record(name, failed, time.Since(start))

		if err := s.flush(c, w); err != nil || quitErr != nil {
			return
		}
	}
}

func (s *Server) flush(c net.Conn, w *Writer) error {
	if err := c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) readFailed(remote string, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		s.logger.Debug("resp connection timed out", "remote", remote)
		return
	}
	s.logger.Debug("resp read failed", "remote", remote, "error", err)
}

func (s *Server) record(name string, failed bool, d time.Duration) {
	if s.metrics == nil || name == "" {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	s.metrics.RecordRequest("resp", name, status)
	s.metrics.ObserveRequestDuration("resp", name, d.Seconds())
}
