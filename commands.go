package simpleredis

import (
	"context"
	"time"

	"github.com/pior/simpleredis/resp"
)

// Executor sends one command and returns its reply.
// Implementations return error replies as *resp.ServerError.
type Executor interface {
	Execute(ctx context.Context, name string, args ...any) (resp.Reply, error)
}

// Commands provides named wrappers over Executor.Execute.
// Each wrapper sends exactly one command and returns the raw reply; the
// caller picks the accessor (Text, Int64, Bool, Slice...).
//
// It can be used independently with a custom Executor, or embedded in Client.
type Commands struct {
	executor Executor
}

// NewCommands creates a new Commands instance using executor.
func NewCommands(executor Executor) *Commands {
	return &Commands{
		executor: executor,
	}
}

// Ping checks the server is alive. The reply is the status PONG.
func (c *Commands) Ping(ctx context.Context) (resp.Reply, error) {
	return c.executor.Execute(ctx, "PING")
}

// Echo returns message as a bulk string.
func (c *Commands) Echo(ctx context.Context, message string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "ECHO", message)
}

// Get returns the value of key, or a null bulk string if the key does not exist.
func (c *Commands) Get(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "GET", key)
}

// Set stores value under key. Value is a string, a []byte or an integer.
func (c *Commands) Set(ctx context.Context, key string, value any) (resp.Reply, error) {
	return c.executor.Execute(ctx, "SET", key, value)
}

// Del removes keys. The reply is the number of keys removed, so Bool reports
// whether a single key existed.
func (c *Commands) Del(ctx context.Context, keys ...string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "DEL", stringArgs(keys)...)
}

// Exists returns the number of keys that exist.
func (c *Commands) Exists(ctx context.Context, keys ...string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "EXISTS", stringArgs(keys)...)
}

// Incr increments the integer at key by one and returns the new value.
func (c *Commands) Incr(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "INCR", key)
}

// IncrBy increments the integer at key by delta and returns the new value.
func (c *Commands) IncrBy(ctx context.Context, key string, delta int64) (resp.Reply, error) {
	return c.executor.Execute(ctx, "INCRBY", key, delta)
}

// Decr decrements the integer at key by one and returns the new value.
func (c *Commands) Decr(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "DECR", key)
}

// DecrBy decrements the integer at key by delta and returns the new value.
func (c *Commands) DecrBy(ctx context.Context, key string, delta int64) (resp.Reply, error) {
	return c.executor.Execute(ctx, "DECRBY", key, delta)
}

// RPush appends values to the list at key and returns the new length.
func (c *Commands) RPush(ctx context.Context, key string, values ...any) (resp.Reply, error) {
	return c.executor.Execute(ctx, "RPUSH", prepend(key, values)...)
}

// LPush prepends values to the list at key and returns the new length.
func (c *Commands) LPush(ctx context.Context, key string, values ...any) (resp.Reply, error) {
	return c.executor.Execute(ctx, "LPUSH", prepend(key, values)...)
}

// LPop removes and returns the first element of the list, or a null bulk
// string when the list is empty.
func (c *Commands) LPop(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "LPOP", key)
}

// RPop removes and returns the last element of the list, or a null bulk
// string when the list is empty.
func (c *Commands) RPop(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "RPOP", key)
}

// LLen returns the length of the list at key.
func (c *Commands) LLen(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "LLEN", key)
}

// LRange returns the elements between start and stop, inclusive.
// Negative indexes count from the end of the list.
func (c *Commands) LRange(ctx context.Context, key string, start, stop int64) (resp.Reply, error) {
	return c.executor.Execute(ctx, "LRANGE", key, start, stop)
}

// Expire sets a time to live on key, truncated to whole seconds.
// The reply is 1 when the timeout was set, 0 when the key does not exist.
func (c *Commands) Expire(ctx context.Context, key string, ttl time.Duration) (resp.Reply, error) {
	return c.executor.Execute(ctx, "EXPIRE", key, int64(ttl/time.Second))
}

// TTL returns the remaining time to live of key in seconds,
// -1 when the key has no expiration and -2 when it does not exist.
func (c *Commands) TTL(ctx context.Context, key string) (resp.Reply, error) {
	return c.executor.Execute(ctx, "TTL", key)
}

// FlushDB removes every key of the current database.
func (c *Commands) FlushDB(ctx context.Context) (resp.Reply, error) {
	return c.executor.Execute(ctx, "FLUSHDB")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func prepend(first any, rest []any) []any {
	args := make([]any, 0, 1+len(rest))
	args = append(args, first)
	return append(args, rest...)
}
