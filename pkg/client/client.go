// Package client sends operations to a lockfs server over UDP.
//
// Requests are retransmitted with the same sequence number until a reply
// arrives or the retry budget runs out. The server recognizes the repeat and
// replays its cached reply, so a retransmitted operation never runs twice.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/protocol/wire"
)

// ErrNoResponse is returned when no reply arrived after every retransmission.
// The request may have been stale, or dropped by the server's fault policy.
var ErrNoResponse = errors.New("no response from server")

// Defaults for Config.
const (
	DefaultTimeout = 100 * time.Millisecond
	DefaultRetries = 3
)

// Config identifies the client and the server it talks to.
type Config struct {
	// Server is the host:port of the lockfs UDP endpoint
	Server string

	Machine  string
	ClientID int32

	// Timeout is how long to wait for each reply
	Timeout time.Duration

	// Retries is how many times a request is retransmitted after the first send
	Retries int
}

// Client is a single client identity. It is safe for concurrent use, but
// requests are sent one at a time.
type Client struct {
	cfg   Config
	conn  *net.UDPConn
	store *StateStore

	mu    sync.Mutex
	state State
}

// New dials the server and loads the client's state from store. A nil store
// keeps state in memory only.
func New(cfg Config, store *StateStore) (*Client, error) {
	if cfg.Machine == "" {
		return nil, errors.New("machine name is required")
	}
	if len(cfg.Machine) > wire.MaxMachine {
		return nil, fmt.Errorf("machine name exceeds %d bytes", wire.MaxMachine)
	}
	if strings.ContainsRune(cfg.Machine, ':') {
		return nil, errors.New("machine name must not contain ':'")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	var st State
	if store != nil {
		var err error
		if st, err = store.Load(cfg.Machine, cfg.ClientID); err != nil {
			return nil, err
		}
	}

	raddr, err := net.ResolveUDPAddr("udp", cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Server, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Server, err)
	}

	return &Client{cfg: cfg, conn: conn, store: store, state: st}, nil
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// State returns the current incarnation and last sequence number.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Fail simulates a client crash: the incarnation is bumped and persisted so
// the server releases everything the previous incarnation held on the next
// request.
func (c *Client) Fail() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Incarnation++
	logger.Debug("Client incarnation bumped",
		logger.KeyMachine, c.cfg.Machine,
		logger.KeyClientID, c.cfg.ClientID,
		logger.KeyIncarnation, c.state.Incarnation)
	return c.persist()
}

// Do sends one operation and waits for its reply. Each call consumes a new
// sequence number whether or not a reply arrives.
func (c *Client) Do(ctx context.Context, operation string) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.LastSequence++
	req := &wire.Request{
		ClientIP:    c.localIP(),
		Machine:     c.cfg.Machine,
		ClientID:    c.cfg.ClientID,
		Sequence:    c.state.LastSequence,
		Incarnation: c.state.Incarnation,
		Operation:   operation,
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		c.state.LastSequence--
		return nil, err
	}

	resp, err := c.exchange(ctx, req, data)
	if perr := c.persist(); perr != nil {
		logger.Warn("Failed to persist client state", logger.Err(perr))
	}
	return resp, err
}

func (c *Client) exchange(ctx context.Context, req *wire.Request, data []byte) (*wire.Response, error) {
	c.drain()

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			logger.Debug("Retransmitting request",
				logger.KeySequence, req.Sequence,
				logger.KeyOperation, req.Operation,
				"attempt", attempt)
		}

		if _, err := c.conn.Write(data); err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}

		resp, err := c.receive(ctx)
		if err == nil {
			return resp, nil
		}
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			return nil, fmt.Errorf("receive: %w", err)
		}
	}
	return nil, ErrNoResponse
}

// receive waits up to Timeout for a decodable reply. Undecodable datagrams
// are skipped.
func (c *Client) receive(ctx context.Context) (*wire.Response, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	buf := make([]byte, wire.MaxDatagram+1)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, err
		}
		resp, err := wire.DecodeResponse(buf[:n])
		if err != nil {
			logger.Debug("Ignoring malformed reply", logger.Err(err))
			continue
		}
		return resp, nil
	}
}

// drain discards replies that arrived after an earlier request gave up, so
// they are not mistaken for the reply to the next one.
func (c *Client) drain() {
	buf := make([]byte, wire.MaxDatagram+1)
	for {
		if err := c.conn.SetReadDeadline(time.Now()); err != nil {
			return
		}
		if _, err := c.conn.Read(buf); err != nil {
			return
		}
	}
}

func (c *Client) localIP() string {
	addr, ok := c.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	ip := addr.IP.String()
	if len(ip) > wire.MaxClientIP {
		return ""
	}
	return ip
}

func (c *Client) persist() error {
	if c.store == nil {
		return nil
	}
	return c.store.Save(c.cfg.Machine, c.cfg.ClientID, c.state)
}
