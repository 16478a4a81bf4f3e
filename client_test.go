package simpleredis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pior/simpleredis/internal/testutils"
	"github.com/pior/simpleredis/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, config Config) (*Client, *testutils.Server) {
	t.Helper()

	server := testutils.NewServer(t)
	config.Addr = server.Addr()

	client, err := NewClient(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func TestNewClient(t *testing.T) {
	client, server := newTestClient(t, Config{})

	assert.Equal(t, server.Addr(), client.Addr())
	assert.Equal(t, StateIdle, client.State())
}

func TestNewClient_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = NewClient(context.Background(), Config{Addr: addr})
	require.Error(t, err)
	assert.True(t, resp.ShouldCloseConnection(err))
}

func TestConfig_Defaults(t *testing.T) {
	config := Config{}.withDefaults()

	assert.Equal(t, "127.0.0.1:6379", config.Addr)
	assert.Equal(t, defaultDialTimeout, config.DialTimeout)
	assert.Equal(t, 2048, config.WriteBufferSize)
	assert.NotNil(t, config.Dialer)
	assert.NotNil(t, config.Logger)
}

func TestNewClient_UsesDialContext(t *testing.T) {
	mock := testutils.NewConnectionMock("+PONG\r\n")

	var dialedAddr string
	client, err := NewClient(context.Background(), Config{
		dialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialedAddr = addr
			return mock, nil
		},
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, DefaultAddr, dialedAddr)

	reply, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(reply.Data))
	assert.Equal(t, "*1\r\n$4\r\nPING\r\n", mock.GetWrittenCommands())
}

func TestClient_GetSet(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Del(ctx, "foo")
	require.NoError(t, err)

	reply, err := client.Get(ctx, "foo")
	require.NoError(t, err)
	value, err := reply.OptionalText()
	require.NoError(t, err)
	assert.Nil(t, value)

	reply, err = client.Set(ctx, "foo", "bar")
	require.NoError(t, err)
	ok, err := reply.Bool()
	require.NoError(t, err)
	assert.True(t, ok)

	reply, err = client.Get(ctx, "foo")
	require.NoError(t, err)
	text, err := reply.Text()
	require.NoError(t, err)
	assert.Equal(t, "bar", text)
}

func TestClient_Counters(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Del(ctx, "counter")
	require.NoError(t, err)

	reply, err := client.Incr(ctx, "counter")
	require.NoError(t, err)
	n, err := reply.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reply, err = client.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	n, err = reply.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	reply, err = client.Decr(ctx, "counter")
	require.NoError(t, err)
	n32, err := reply.Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(5), n32)

	reply, err = client.DecrBy(ctx, "counter", 10)
	require.NoError(t, err)
	n, err = reply.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-5), n)

	// The stored value reads back as text
	reply, err = client.Get(ctx, "counter")
	require.NoError(t, err)
	n, err = reply.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-5), n)
}

func TestClient_DeleteResult(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, "foo", "bar")
	require.NoError(t, err)

	reply, err := client.Del(ctx, "foo")
	require.NoError(t, err)
	deleted, err := reply.Bool()
	require.NoError(t, err)
	assert.True(t, deleted)

	reply, err = client.Del(ctx, "foo")
	require.NoError(t, err)
	deleted, err = reply.Bool()
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestClient_ServerError(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, "foo", "bar")
	require.NoError(t, err)

	_, err = client.Incr(ctx, "foo")

	var serverErr *resp.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "ERR value is not an integer or out of range", err.Error())
	assert.False(t, resp.ShouldCloseConnection(err))

	// The connection survives an error reply
	reply, err := client.Get(ctx, "foo")
	require.NoError(t, err)
	text, err := reply.Text()
	require.NoError(t, err)
	assert.Equal(t, "bar", text)
}

func TestClient_ServerErrorFailsCall(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, "k", "nan")
	require.NoError(t, err)
	assert.Equal(t, StateDone, client.State())

	_, err = client.Incr(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, StateFailed, client.State())
	assert.False(t, client.conn.IsBroken())

	_, err = client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StateDone, client.State())
}

func TestClient_Lists(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Del(ctx, "list")
	require.NoError(t, err)

	reply, err := client.RPush(ctx, "list", "item 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reply.Int)

	reply, err = client.RPush(ctx, "list", "item 2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reply.Int)

	reply, err = client.LRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	items, err := resp.Strings(reply)
	require.NoError(t, err)
	assert.Equal(t, []string{"item 1", "item 2"}, items)

	for _, want := range []string{"item 1", "item 2"} {
		reply, err = client.LPop(ctx, "list")
		require.NoError(t, err)
		text, err := reply.Text()
		require.NoError(t, err)
		assert.Equal(t, want, text)
	}

	reply, err = client.LPop(ctx, "list")
	require.NoError(t, err)
	popped, err := reply.OptionalText()
	require.NoError(t, err)
	assert.Nil(t, popped)

	_, err = client.RPush(ctx, "list", "item 3")
	require.NoError(t, err)

	reply, err = client.LPop(ctx, "list")
	require.NoError(t, err)
	text, err := reply.Text()
	require.NoError(t, err)
	assert.Equal(t, "item 3", text)
}

func TestClient_EmptyListIsNotNull(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	reply, err := client.LRange(ctx, "missing", 0, -1)
	require.NoError(t, err)

	items, err := reply.Slice()
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.False(t, reply.IsNull())
}

func TestClient_BinaryValue(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	value := []byte{0x00, '\r', '\n', 0xff, '$', '*'}
	_, err := client.Set(ctx, "bin", value)
	require.NoError(t, err)

	reply, err := client.Get(ctx, "bin")
	require.NoError(t, err)
	got, err := reply.Bytes()
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestClient_ExpireTTL(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, "session", "data")
	require.NoError(t, err)

	reply, err := client.TTL(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), reply.Int)

	reply, err = client.Expire(ctx, "session", time.Minute)
	require.NoError(t, err)
	set, err := reply.Bool()
	require.NoError(t, err)
	assert.True(t, set)

	reply, err = client.TTL(ctx, "session")
	require.NoError(t, err)
	assert.InDelta(t, 60, reply.Int, 1)

	reply, err = client.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), reply.Int)
}

func TestClient_ConcurrentCallsAreSerialized(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	errs := make(chan error, workers)
	for range workers {
		go func() {
			for range perWorker {
				if _, err := client.Incr(ctx, "shared"); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}
	for range workers {
		require.NoError(t, <-errs)
	}

	reply, err := client.Get(ctx, "shared")
	require.NoError(t, err)
	n, err := reply.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), n)
}

func TestClient_BrokenAfterProtocolError(t *testing.T) {
	client, server := newTestClient(t, Config{})
	ctx := context.Background()

	server.SetHook(func(name string, args [][]byte) ([]byte, bool) {
		return []byte("?bogus\r\n"), true
	})

	_, err := client.Ping(ctx)
	var protoErr *resp.ProtocolError
	require.ErrorAs(t, err, &protoErr)

	server.SetHook(nil)

	_, err = client.Ping(ctx)
	require.ErrorIs(t, err, ErrConnectionBroken)
	assert.Len(t, server.Received(), 1, "no bytes sent on a broken connection")
}

func TestClient_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	client, server := newTestClient(t, Config{Logger: zap.New(core)})
	ctx := context.Background()

	assert.Equal(t, 1, logs.FilterMessage("connected").Len())

	_, err := client.Set(ctx, "k", "v")
	require.NoError(t, err)

	traces := logs.FilterMessage("command executed").All()
	require.Len(t, traces, 1)
	assert.Equal(t, "SET", traces[0].ContextMap()["command"])

	server.SetHook(func(name string, args [][]byte) ([]byte, bool) {
		return nil, true // close the connection
	})
	_, err = client.Get(ctx, "k")
	require.ErrorIs(t, err, resp.ErrPeerDisconnected)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("connection broken").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "GET", warnings[0].ContextMap()["command"])

	require.NoError(t, client.Close())
	assert.Equal(t, 1, logs.FilterMessage("disconnected").Len())
}

func TestClient_Stats(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, "k", "v")
	require.NoError(t, err)
	_, err = client.Incr(ctx, "k")
	require.Error(t, err)
	_, err = client.Execute(ctx, "SET", "k", 1.5)
	require.Error(t, err)

	stats := client.Stats()
	assert.Equal(t, uint64(3), stats.Commands)
	assert.Equal(t, uint64(2), stats.Errors)
	assert.Equal(t, uint64(1), stats.ServerErrors)
	assert.Equal(t, uint64(0), stats.ConnectionErrors)
	assert.Positive(t, stats.TotalTimeNs)
}

func TestClient_Close(t *testing.T) {
	client, _ := newTestClient(t, Config{})

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Ping(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
}
