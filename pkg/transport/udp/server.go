// Package udp serves the datagram protocol: one request per datagram, at most
// one response datagram back to the sender.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/internal/ratelimiter"
	"github.com/marmos91/lockfs/pkg/metrics"
)

// Drop reasons reported to TransportMetrics.
const (
	DropMalformed   = "malformed"
	DropRateLimited = "rate_limited"
	DropEncodeError = "encode_error"
)

// DefaultReadTimeout is how often the receive loop checks for shutdown.
const DefaultReadTimeout = 500 * time.Millisecond

// Handler executes decoded requests. A nil response means no reply is sent.
// A non-nil error is fatal and stops the server.
type Handler interface {
	Handle(ctx context.Context, req *wire.Request) (*wire.Response, error)
}

// RateLimitConfig configures ingress limiting. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond uint
	Burst             uint
}

// Config holds configuration for the UDP server.
type Config struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the UDP port. 0 picks a free port.
	Port int

	// ReadTimeout bounds each blocking read so Stop is noticed promptly.
	ReadTimeout time.Duration

	RateLimit RateLimitConfig
}

// Server receives request datagrams and hands them to a Handler.
type Server struct {
	config  Config
	handler Handler
	metrics metrics.TransportMetrics
	limiter *ratelimiter.RateLimiter

	mu           sync.Mutex
	conn         *net.UDPConn
	ready        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records dropped datagrams. Nil disables it.
func WithMetrics(m metrics.TransportMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server that dispatches to h.
func NewServer(cfg Config, h Handler, opts ...Option) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	s := &Server{
		config:   cfg,
		handler:  h,
		limiter:  ratelimiter.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens and processes datagrams until ctx is cancelled, Stop is
// called, or the handler returns a fatal error, which Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, fmt.Sprintf("%d", s.config.Port))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve UDP %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen UDP %s: %w", addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)

	logger.Info("UDP server started", logger.KeyAddress, conn.LocalAddr().String(),
		"rate_limited", !s.limiter.Unlimited())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	err = s.serve(ctx, conn)
	s.Stop()
	logger.Info("UDP server stopped")
	return err
}

func (s *Server) serve(ctx context.Context, conn *net.UDPConn) error {
	// One byte over the limit so oversized datagrams are detected, not truncated.
	buf := make([]byte, wire.MaxDatagram+1)

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			if s.stopping() {
				return nil
			}
			logger.Debug("Set UDP deadline failed", logger.Err(err))
			continue
		}

		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if s.stopping() {
				return nil
			}
			logger.Debug("UDP read failed", logger.Err(err))
			continue
		}

		if err := s.handleDatagram(ctx, conn, buf[:n], clientAddr); err != nil {
			return err
		}
	}
}

// handleDatagram processes one datagram. Only fatal handler errors are returned.
func (s *Server) handleDatagram(ctx context.Context, conn *net.UDPConn, data []byte, from *net.UDPAddr) error {
	clientIP := from.IP.String()
	lc := logger.NewLogContext(uuid.NewString(), clientIP)
	ctx = logger.WithContext(ctx, lc)

	if !s.limiter.Allow() {
		logger.DebugCtx(ctx, "Datagram dropped by rate limiter")
		s.drop(DropRateLimited)
		return nil
	}

	req, err := wire.DecodeRequest(data)
	if err != nil {
		logger.WarnCtx(ctx, "Malformed datagram ignored", "size", len(data), logger.Err(err))
		s.drop(DropMalformed)
		return nil
	}
	req.ClientIP = clientIP

	resp, err := s.handler.Handle(ctx, req)
	if err != nil {
		logger.ErrorCtx(ctx, "Fatal error, stopping UDP server", logger.Err(err))
		return err
	}
	if resp == nil {
		return nil
	}

	out, err := wire.EncodeResponse(resp)
	if err != nil {
		logger.ErrorCtx(ctx, "Response encoding failed", logger.Err(err))
		s.drop(DropEncodeError)
		return nil
	}
	if _, err := conn.WriteToUDP(out, from); err != nil {
		logger.DebugCtx(ctx, "UDP write failed", logger.Err(err))
	}
	return nil
}

func (s *Server) drop(reason string) {
	if s.metrics != nil {
		s.metrics.RecordDroppedDatagram(reason)
	}
}

func (s *Server) stopping() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Stop closes the socket. Safe to call multiple times.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// Ready is closed once the socket is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or "" before Serve binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.LocalAddr().String()
}
