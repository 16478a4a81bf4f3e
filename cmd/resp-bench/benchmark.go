package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/pior/simpleredis"
	"github.com/pior/simpleredis/resp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const batchSize = 100

// benchmark runs scenarios over a pool holding at most one connection per worker.
// A connection broken by a failed call is destroyed and replaced on next acquire.
// When configured, one circuit breaker guards the calls of every pooled connection.
type benchmark struct {
	pool        *puddle.Pool[*simpleredis.Connection]
	breaker     *gobreaker.CircuitBreaker[resp.Reply] // nil if not configured
	registry    *prometheus.Registry
	logger      *zap.Logger
	concurrency int
	valueSize   int

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	replaced   atomic.Int64
}

func newBenchmark(config simpleredis.Config, concurrency, valueSize int, logger *zap.Logger) (*benchmark, error) {
	pool, err := puddle.NewPool(&puddle.Config[*simpleredis.Connection]{
		Constructor: func(ctx context.Context) (*simpleredis.Connection, error) {
			return simpleredis.Dial(ctx, config)
		},
		Destructor: func(conn *simpleredis.Connection) {
			_ = conn.Close()
		},
		MaxSize: int32(concurrency),
	})
	if err != nil {
		return nil, err
	}

	var breaker *gobreaker.CircuitBreaker[resp.Reply]
	if config.NewCircuitBreaker != nil {
		breaker = config.NewCircuitBreaker(config.Addr)
	}

	b := &benchmark{
		pool:        pool,
		breaker:     breaker,
		registry:    prometheus.NewRegistry(),
		logger:      logger,
		concurrency: concurrency,
		valueSize:   valueSize,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resp_bench_operations_total",
			Help: "Total number of benchmark operations by scenario and result",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resp_bench_operation_duration_seconds",
			Help:    "Latency of benchmark operations",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"operation"}),
	}

	b.registry.MustRegister(
		b.operations,
		b.latency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "resp_bench_pool_connections",
			Help: "Connections currently held by the pool",
		}, func() float64 { return float64(pool.Stat().TotalResources()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "resp_bench_pool_replaced_connections_total",
			Help: "Broken connections destroyed by the pool",
		}, func() float64 { return float64(b.replaced.Load()) }),
	)

	return b, nil
}

func (b *benchmark) Close() {
	b.pool.Close()
}

// Ping checks that a connection can be established and answers PING.
func (b *benchmark) Ping(ctx context.Context) error {
	return b.withConnection(ctx, func(cmds *simpleredis.Commands) error {
		return check(cmds.Ping(ctx))
	})
}

func (b *benchmark) withConnection(ctx context.Context, fn func(cmds *simpleredis.Commands) error) error {
	res, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	conn := res.Value()
	var executor simpleredis.Executor = conn
	if b.breaker != nil {
		executor = &breakerExecutor{breaker: b.breaker, conn: conn}
	}
	err = fn(simpleredis.NewCommands(executor))

	if conn.IsBroken() {
		b.replaced.Add(1)
		b.logger.Debug("replacing broken connection", zap.Error(err))
		res.Destroy()
	} else {
		res.Release()
	}
	return err
}

// breakerExecutor runs the calls of a pooled connection through the shared breaker.
type breakerExecutor struct {
	breaker *gobreaker.CircuitBreaker[resp.Reply]
	conn    *simpleredis.Connection
}

func (e *breakerExecutor) Execute(ctx context.Context, name string, args ...any) (resp.Reply, error) {
	return e.breaker.Execute(func() (resp.Reply, error) {
		return e.conn.Execute(ctx, name, args...)
	})
}

// scenario is one unit of work of a worker, usually a batch of commands.
type scenario struct {
	setup func(ctx context.Context, cmds *simpleredis.Commands, value []byte) error
	step  func(ctx context.Context, w *worker, cmds *simpleredis.Commands) error
}

var scenarios = map[OperationType]scenario{
	CacheHit:     {setup: setupCacheHit, step: stepCacheHit},
	DynamicValue: {step: stepDynamicValue},
	CacheMiss:    {step: stepCacheMiss},
	Increment:    {setup: setupIncrement, step: stepIncrement},
	Delete:       {step: stepDelete},
	ListQueue:    {step: stepListQueue},
}

// Run executes a scenario with all workers for the given duration.
func (b *benchmark) Run(ctx context.Context, operation OperationType, duration time.Duration) *BenchmarkResult {
	sc, ok := scenarios[operation]
	if !ok {
		return &BenchmarkResult{
			Operation:    operation,
			Correctness:  false,
			ErrorMessage: fmt.Sprintf("Unknown operation: %s", operation),
		}
	}

	shared := sealPayload(newPayload(rand.New(rand.NewPCG(0, 0)), b.valueSize))

	if sc.setup != nil {
		err := b.withConnection(ctx, func(cmds *simpleredis.Commands) error {
			return sc.setup(ctx, cmds, shared)
		})
		if err != nil {
			return &BenchmarkResult{
				Operation:    operation,
				Correctness:  false,
				ErrorMessage: fmt.Sprintf("Failed to set up: %v", err),
			}
		}
	}

	recorder := newResultRecorder()
	start := time.Now()

	var wg sync.WaitGroup
	for id := range b.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			w := &worker{
				id:        id,
				operation: operation,
				bench:     b,
				recorder:  recorder,
				rand:      rand.New(rand.NewPCG(uint64(start.UnixNano()), uint64(id))),
				shared:    shared,
			}

			for time.Since(start) < duration && ctx.Err() == nil {
				err := b.withConnection(ctx, func(cmds *simpleredis.Commands) error {
					return sc.step(ctx, w, cmds)
				})
				if err != nil {
					b.logger.Debug("benchmark step failed",
						zap.String("operation", string(operation)),
						zap.Int("worker", id),
						zap.Error(err),
					)
				}
				w.seq++
			}
		}()
	}
	wg.Wait()

	return recorder.result(operation, time.Since(start))
}

type worker struct {
	id        int
	seq       int
	operation OperationType
	bench     *benchmark
	recorder  *resultRecorder
	rand      *rand.Rand
	shared    []byte
}

// do times one command and records its outcome.
func (w *worker) do(fn func() error) error {
	start := time.Now()
	err := fn()
	latency := time.Since(start)

	w.recorder.record(latency, err)

	result := "success"
	if err != nil {
		result = "failure"
	}
	w.bench.operations.WithLabelValues(string(w.operation), result).Inc()
	w.bench.latency.WithLabelValues(string(w.operation)).Observe(latency.Seconds())

	return err
}

func (w *worker) key(prefix string) string {
	return fmt.Sprintf("bench:%s:%d:%d", prefix, w.id, w.seq)
}

func (w *worker) value() []byte {
	return sealPayload(newPayload(w.rand, w.bench.valueSize))
}

// check turns an error reply into an error.
func check(reply resp.Reply, err error) error {
	_, err = checked(reply, err)
	return err
}

func checked(reply resp.Reply, err error) (resp.Reply, error) {
	if err != nil {
		return resp.Reply{}, err
	}
	if serverErr := reply.AsError(); serverErr != nil {
		return resp.Reply{}, serverErr
	}
	return reply, nil
}

func expectValue(reply resp.Reply, err error, want []byte) error {
	reply, err = checked(reply, err)
	if err != nil {
		return err
	}
	if reply.IsNull() {
		return &mismatchError{message: "Value missing"}
	}
	got, err := reply.Bytes()
	if err != nil {
		return err
	}
	if err := verifyPayload(got); err != nil {
		return err
	}
	if string(got) != string(want) {
		return &mismatchError{message: "Value mismatch"}
	}
	return nil
}

const cacheHitKey = "bench:cache-hit"

func setupCacheHit(ctx context.Context, cmds *simpleredis.Commands, value []byte) error {
	return check(cmds.Set(ctx, cacheHitKey, value))
}

// Cache-hit: 100 gets of a value set once
func stepCacheHit(ctx context.Context, w *worker, cmds *simpleredis.Commands) error {
	for range batchSize {
		err := w.do(func() error {
			reply, err := cmds.Get(ctx, cacheHitKey)
			return expectValue(reply, err, w.shared)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Dynamic-value: 1 set then 1 get
func stepDynamicValue(ctx context.Context, w *worker, cmds *simpleredis.Commands) error {
	key := w.key("dynamic")
	value := w.value()

	if err := w.do(func() error { return check(cmds.Set(ctx, key, value)) }); err != nil {
		return err
	}
	return w.do(func() error {
		reply, err := cmds.Get(ctx, key)
		return expectValue(reply, err, value)
	})
}

// Cache-miss: 1 get on a missing key
func stepCacheMiss(ctx context.Context, w *worker, cmds *simpleredis.Commands) error {
	key := w.key("missing")

	return w.do(func() error {
		reply, err := checked(cmds.Get(ctx, key))
		if err != nil {
			return err
		}
		if !reply.IsNull() {
			return &mismatchError{message: "Expected missing key but got value"}
		}
		return nil
	})
}

const incrementKey = "bench:increment"

func setupIncrement(ctx context.Context, cmds *simpleredis.Commands, _ []byte) error {
	return check(cmds.Set(ctx, incrementKey, 0))
}

// Increment: 100 incr then 1 get to check the value
func stepIncrement(ctx context.Context, w *worker, cmds *simpleredis.Commands) error {
	var last int64
	for range batchSize {
		err := w.do(func() error {
			reply, err := checked(cmds.Incr(ctx, incrementKey))
			if err != nil {
				return err
			}
			n, err := reply.Int64()
			if err != nil {
				return err
			}
			if n <= last {
				return &mismatchError{message: fmt.Sprintf("Counter went backwards: %d after %d", n, last)}
			}
			last = n
			return nil
		})
		if err != nil {
			return err
		}
	}

	return w.do(func() error {
		reply, err := checked(cmds.Get(ctx, incrementKey))
		if err != nil {
			return err
		}
		n, err := reply.Int64()
		if err != nil {
			return &mismatchError{message: "Counter value is not a number"}
		}
		if n < last {
			return &mismatchError{message: fmt.Sprintf("Counter is %d, expected at least %d", n, last)}
		}
		return nil
	})
}

// Delete: 1 set then 1 delete
func stepDelete(ctx context.Context, w *worker, cmds *simpleredis.Commands) error {
	key := w.key("delete")
	value := w.value()

	if err := w.do(func() error { return check(cmds.Set(ctx, key, value)) }); err != nil {
		return err
	}
	return w.do(func() error {
		reply, err := checked(cmds.Del(ctx, key))
		if err != nil {
			return err
		}
		deleted, err := reply.Bool()
		if err != nil {
			return err
		}
		if !deleted {
			return &mismatchError{message: "Key was not deleted"}
		}
		return nil
	})
}

// List-queue: 1 rpush then 1 lpop on a list owned by the worker
func stepListQueue(ctx context.Context, w *worker, cmds *simpleredis.Commands) error {
	key := fmt.Sprintf("bench:queue:%d", w.id)
	value := w.value()

	if err := w.do(func() error { return check(cmds.RPush(ctx, key, value)) }); err != nil {
		return err
	}
	return w.do(func() error {
		reply, err := cmds.LPop(ctx, key)
		return expectValue(reply, err, value)
	})
}
