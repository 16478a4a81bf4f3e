// Package simpleredis is a minimal client for servers speaking the Redis
// serialization protocol (RESP2).
//
// A Client owns exactly one connection, opened by NewClient and released by
// Close. Every call is a synchronous request/response cycle: the command is
// encoded and flushed, then a single reply is read.
//
//	client, err := simpleredis.NewClient(ctx, simpleredis.Config{Addr: "127.0.0.1:6379"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if _, err := client.Set(ctx, "greeting", "hello"); err != nil {
//	    return err
//	}
//	reply, err := client.Get(ctx, "greeting")
//	value, err := reply.OptionalText() // nil when the key does not exist
//
// Error replies from the server are returned as *resp.ServerError. After a
// connection or protocol error the client is unusable and returns
// ErrConnectionBroken: there is no reconnection.
package simpleredis

import (
	"context"
	"net"
	"time"

	"github.com/pior/simpleredis/resp"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DefaultAddr is the address used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:6379"

const defaultDialTimeout = 5 * time.Second

// Config holds configuration for the client connection.
// The zero value is usable and connects to DefaultAddr.
type Config struct {
	// Addr is the host:port of the server.
	// Default: 127.0.0.1:6379
	Addr string

	// DialTimeout bounds connection establishment.
	// Default: 5s. The context passed to NewClient can shorten it.
	DialTimeout time.Duration

	// ReadTimeout and WriteTimeout bound each call when the context has no deadline.
	// Zero means no timeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// WriteBufferSize is the size of the buffered writer.
	// Default: 2048 bytes.
	WriteBufferSize int

	// Dialer is the net.Dialer used to open the connection.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Logger receives connection events and per-command debug traces.
	// If nil, logging is disabled.
	Logger *zap.Logger

	// NewCircuitBreaker creates the circuit breaker wrapping every call.
	// Called once with the server address. If nil, no circuit breaker is used.
	NewCircuitBreaker func(addr string) *gobreaker.CircuitBreaker[resp.Reply]

	// for testing purposes only
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = resp.DefaultWriteBufferSize
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if c.dialContext != nil {
		return c.dialContext(ctx, network, addr)
	}
	return c.Dialer.DialContext(ctx, network, addr)
}

// Client is a RESP client bound to a single connection.
// It is safe for concurrent use; calls are serialized on the connection.
type Client struct {
	*Commands

	addr           string
	conn           *Connection
	circuitBreaker *gobreaker.CircuitBreaker[resp.Reply] // nil if not configured
	logger         *zap.Logger
	stats          *clientStatsCollector
}

var _ Executor = (*Client)(nil)

// NewClient connects to the server and returns a ready client.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	config = config.withDefaults()

	conn, err := Dial(ctx, config)
	if err != nil {
		config.Logger.Warn("connect failed", zap.String("addr", config.Addr), zap.Error(err))
		return nil, err
	}

	client := &Client{
		addr:   config.Addr,
		conn:   conn,
		logger: config.Logger,
		stats:  newClientStatsCollector(),
	}
	client.Commands = NewCommands(client)

	if config.NewCircuitBreaker != nil {
		client.circuitBreaker = config.NewCircuitBreaker(config.Addr)
	}

	config.Logger.Info("connected", zap.String("addr", config.Addr))
	return client, nil
}

// Execute sends a command and returns its reply.
//
// An error reply from the server is returned as a *resp.ServerError, never as
// a successful reply. Other errors come from the connection (see
// resp.ShouldCloseConnection) or the circuit breaker (gobreaker.ErrOpenState).
func (c *Client) Execute(ctx context.Context, name string, args ...any) (resp.Reply, error) {
	start := time.Now()

	var reply resp.Reply
	var err error
	if c.circuitBreaker != nil {
		reply, err = c.circuitBreaker.Execute(func() (resp.Reply, error) {
			return c.execute(ctx, name, args...)
		})
	} else {
		reply, err = c.execute(ctx, name, args...)
	}

	c.stats.record(time.Since(start), err)
	return reply, err
}

func (c *Client) execute(ctx context.Context, name string, args ...any) (resp.Reply, error) {
	reply, err := c.conn.Execute(ctx, name, args...)
	if err != nil {
		return resp.Reply{}, err
	}

	if serverErr := reply.AsError(); serverErr != nil {
		c.conn.markFailed()
		return resp.Reply{}, serverErr
	}

	return reply, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// State returns the stage reached by the current or last call.
func (c *Client) State() CallState {
	return c.conn.State()
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// CircuitBreakerState returns the breaker state, or StateClosed when no
// breaker is configured.
func (c *Client) CircuitBreakerState() gobreaker.State {
	if c.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return c.circuitBreaker.State()
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	err := c.conn.Close()
	c.logger.Info("disconnected", zap.String("addr", c.addr))
	return err
}
