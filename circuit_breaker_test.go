package simpleredis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pior/simpleredis/resp"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCircuitBreakerConfig(t *testing.T) {
	newBreaker := NewCircuitBreakerConfig(1, time.Second, time.Second, nil)

	cb := newBreaker("127.0.0.1:6379")
	require.NotNil(t, cb)

	assert.Equal(t, "127.0.0.1:6379", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_ServerErrorIsSuccess(t *testing.T) {
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute, nil)("test")

	for range 5 {
		_, err := cb.Execute(func() (resp.Reply, error) {
			return resp.Reply{}, &resp.ServerError{Message: "ERR value is not an integer or out of range"}
		})
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestCircuitBreaker_ConnectionErrorsTrip(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute, zap.New(core))("test")

	for range 3 {
		_, err := cb.Execute(func() (resp.Reply, error) {
			return resp.Reply{}, &resp.ConnectionError{Op: "read", Err: resp.ErrPeerDisconnected}
		})
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (resp.Reply, error) {
		t.Fatal("must not be called while open")
		return resp.Reply{}, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	changes := logs.FilterMessage("circuit breaker state changed").All()
	require.Len(t, changes, 1)
	assert.Equal(t, "closed", changes[0].ContextMap()["from"])
	assert.Equal(t, "open", changes[0].ContextMap()["to"])
}

func TestIsCircuitBreakerSuccess(t *testing.T) {
	assert.True(t, isCircuitBreakerSuccess(nil))
	assert.True(t, isCircuitBreakerSuccess(&resp.ServerError{Message: "ERR"}))
	assert.True(t, isCircuitBreakerSuccess(&resp.CoercionError{Kind: resp.KindBulk, Target: "int64"}))
	assert.True(t, isCircuitBreakerSuccess(&resp.ArgumentError{Index: 0, Value: 1.5}))
	assert.False(t, isCircuitBreakerSuccess(&resp.ProtocolError{Message: "bad"}))
	assert.False(t, isCircuitBreakerSuccess(ErrConnectionBroken))
	assert.False(t, isCircuitBreakerSuccess(errors.New("unknown")))
}

func TestClient_WithCircuitBreaker(t *testing.T) {
	client, server := newTestClient(t, Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute, nil),
	})
	ctx := context.Background()

	_, err := client.Set(ctx, "k", "v")
	require.NoError(t, err)
	_, err = client.Incr(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())

	// Break the connection, every following call fails with ErrConnectionBroken
	server.SetHook(func(name string, args [][]byte) ([]byte, bool) {
		return nil, true
	})
	for range 5 {
		_, _ = client.Get(ctx, "k")
	}

	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	_, err = client.Get(ctx, "k")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	stats := client.Stats()
	assert.Positive(t, stats.Rejected)
	assert.Positive(t, stats.ConnectionErrors)
}

func TestClient_CancelledContextDoesNotTrip(t *testing.T) {
	client, server := newTestClient(t, Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute, nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 3 {
		_, err := client.Ping(ctx)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
	assert.Empty(t, server.Received())

	stats := client.Stats()
	assert.Equal(t, uint64(3), stats.Errors)
	assert.Zero(t, stats.ConnectionErrors)

	_, err := client.Ping(context.Background())
	require.NoError(t, err)
}

func TestClient_WithoutCircuitBreaker(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
}
