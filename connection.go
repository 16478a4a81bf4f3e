package simpleredis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/simpleredis/resp"
	"go.uber.org/zap"
)

var (
	ErrConnectionClosed = errors.New("simpleredis: connection closed")

	// ErrConnectionBroken is returned by every call after a connection-ending
	// error. The connection is never reconnected, create a new one.
	ErrConnectionBroken = errors.New("simpleredis: connection broken by a previous error")
)

// CallState is the stage reached by the current, or last, call on a connection.
type CallState int32

const (
	StateIdle          CallState = iota // no call yet
	StateSending                        // encoding and flushing the command
	StateAwaitingReply                  // command flushed, reading the reply
	StateDone                           // reply fully read
	StateFailed                         // the call returned an error, or the server replied with an error
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting-reply"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("CallState(%d)", int32(s))
	}
}

// contextError is returned when the context is done before the command is sent.
// Nothing was written, the connection stays usable.
type contextError struct {
	err error
}

func (e *contextError) Error() string {
	return "simpleredis: " + e.err.Error()
}

func (e *contextError) Unwrap() error {
	return e.err
}

// ShouldCloseConnection returns false - the stream was not touched
func (e *contextError) ShouldCloseConnection() bool {
	return false
}

// aLongTimeAgo is a deadline in the past, used to interrupt a blocked read or write.
var aLongTimeAgo = time.Unix(1, 0)

// Connection is a single RESP connection.
// Calls are serialized: one command is in flight at a time.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *resp.Writer

	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	broken   bool
	lastUsed time.Time

	state     atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an established net.Conn.
// The connection takes ownership of netConn and closes it on Close.
func NewConnection(netConn net.Conn) *Connection {
	return newConnection(netConn, Config{})
}

func newConnection(netConn net.Conn, config Config) *Connection {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bufferSize := config.WriteBufferSize
	if bufferSize <= 0 {
		bufferSize = resp.DefaultWriteBufferSize
	}

	return &Connection{
		conn:         netConn,
		reader:       bufio.NewReader(netConn),
		writer:       resp.NewWriterSize(netConn, bufferSize),
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
		logger:       logger.With(zap.String("addr", netConn.RemoteAddr().String())),
		lastUsed:     time.Now(),
	}
}

// Dial opens a TCP connection to config.Addr with Nagle's algorithm disabled.
func Dial(ctx context.Context, config Config) (*Connection, error) {
	config = config.withDefaults()

	dialCtx := ctx
	if config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
	}

	netConn, err := config.dial(dialCtx, "tcp", config.Addr)
	if err != nil {
		return nil, &resp.ConnectionError{Op: "dial", Err: err}
	}

	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			_ = netConn.Close()
			return nil, &resp.ConnectionError{Op: "dial", Err: err}
		}
	}

	return newConnection(netConn, config), nil
}

// Execute sends one command and reads its reply.
//
// An error reply from the server is returned as a reply of kind
// resp.KindError with a nil error: Execute only fails when the command could
// not be sent or the reply could not be read. See Client.Execute for the
// variant that raises error replies.
//
// The context deadline bounds the whole call. Without a deadline, the
// configured read and write timeouts apply. Cancelling the context interrupts
// a blocked call and breaks the connection. A context already done fails the
// call before anything is written and leaves the connection usable.
func (c *Connection) Execute(ctx context.Context, name string, args ...any) (resp.Reply, error) {
	if err := ctx.Err(); err != nil {
		return resp.Reply{}, &contextError{err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return resp.Reply{}, ErrConnectionClosed
	}
	if c.broken {
		return resp.Reply{}, ErrConnectionBroken
	}

	c.setDeadlines(ctx)

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		_ = c.conn.SetDeadline(aLongTimeAgo)
	})
	defer func() {
		// A started interrupt must land before the next call sets its deadlines
		if !stop() {
			<-interrupted
		}
	}()

	c.state.Store(int32(StateSending))
	if err := c.writer.WriteCommand(name, args...); err != nil {
		return resp.Reply{}, c.fail(ctx, name, err)
	}

	c.state.Store(int32(StateAwaitingReply))
	reply, err := resp.ReadReply(c.reader)
	if err != nil {
		return resp.Reply{}, c.fail(ctx, name, err)
	}

	c.state.Store(int32(StateDone))
	c.lastUsed = time.Now()

	if ce := c.logger.Check(zap.DebugLevel, "command executed"); ce != nil {
		ce.Write(zap.String("command", name), zap.Int("args", len(args)), zap.Stringer("kind", reply.Kind))
	}

	return reply, nil
}

// setDeadlines applies the context deadline, or the configured timeouts.
// Must be called with the lock held.
func (c *Connection) setDeadlines(ctx context.Context) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		return
	}

	now := time.Now()

	writeDeadline := time.Time{}
	if c.writeTimeout > 0 {
		writeDeadline = now.Add(c.writeTimeout)
	}
	_ = c.conn.SetWriteDeadline(writeDeadline)

	readDeadline := time.Time{}
	if c.readTimeout > 0 {
		readDeadline = now.Add(c.readTimeout)
	}
	_ = c.conn.SetReadDeadline(readDeadline)
}

// fail records a failed call. Connection-ending errors mark the connection broken.
// Must be called with the lock held.
func (c *Connection) fail(ctx context.Context, name string, err error) error {
	c.state.Store(int32(StateFailed))

	if !resp.ShouldCloseConnection(err) {
		return err
	}

	c.broken = true
	c.logger.Warn("connection broken", zap.String("command", name), zap.Error(err))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("simpleredis: %w: %w", ctxErr, err)
	}
	return err
}

// markFailed records an error reply on the last call.
func (c *Connection) markFailed() {
	c.state.Store(int32(StateFailed))
}

// State returns the stage reached by the current or last call.
func (c *Connection) State() CallState {
	return CallState(c.state.Load())
}

// IsBroken reports whether a previous call left the connection unusable.
func (c *Connection) IsBroken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// IsClosed returns whether the connection is closed
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// LastUsed returns when the connection last completed a call
func (c *Connection) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// RemoteAddr returns the address of the server
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the socket. It is safe to call more than once and does not
// wait for an in-flight call, which fails with a ConnectionError.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		c.logger.Debug("connection closed")
	})
	return c.closeErr
}
