package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/pior/simpleredis/internal/cliconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	Increment    OperationType = "increment"
	Delete       OperationType = "delete"
	ListQueue    OperationType = "list-queue"
	All          OperationType = "all"
)

var allOperations = []OperationType{CacheHit, DynamicValue, CacheMiss, Increment, Delete, ListQueue}

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

func main() {
	loader := cliconfig.Register(pflag.CommandLine)
	var (
		operation   = pflag.String("operation", "all", "Operation type: "+operationNames()+", or all")
		duration    = pflag.Duration("duration", 5*time.Second, "Duration of each benchmark")
		concurrency = pflag.Int("concurrency", 1, "Number of concurrent workers, each with its own connection")
		valueSize   = pflag.Int("value-size", 64, "Size in bytes of the generated values")
		metricsAddr = pflag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9121)")
	)
	pflag.Parse()

	options, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	logger, err := options.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if *concurrency < 1 || *valueSize < 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be positive and value-size must not be negative")
		os.Exit(2)
	}

	fmt.Printf("RESP Benchmark Tool\n")
	fmt.Printf("===================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Value Size: %d\n", *valueSize)
	fmt.Printf("Server: %s\n", options.Addr)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bench, err := newBenchmark(options.ClientConfig(logger), *concurrency, *valueSize, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create connection pool: %v\n", err)
		os.Exit(1)
	}
	defer bench.Close()

	if *metricsAddr != "" {
		server := &http.Server{
			Addr:              *metricsAddr,
			Handler:           metricsHandler(bench.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer server.Close()
		fmt.Printf("Serving metrics on http://%s/metrics\n", *metricsAddr)
	}

	// Test connection first
	fmt.Print("Testing connection...")
	if err := bench.Ping(ctx); err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure a server is running on %s\n", options.Addr)
		os.Exit(1)
	}
	fmt.Println(" success!")
	fmt.Println()

	operations := []OperationType{OperationType(*operation)}
	if operations[0] == All {
		operations = allOperations
	}

	for _, op := range operations {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("\n--- Running %s benchmark ---\n", op)
		printResult(bench.Run(ctx, op, *duration))
	}

	printPoolStats(bench.pool.Stat(), bench.replaced.Load())
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func operationNames() string {
	names := make([]string, len(allOperations))
	for i, op := range allOperations {
		names[i] = string(op)
	}
	return strings.Join(names, ", ")
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}

func printPoolStats(stat *puddle.Stat, replaced int64) {
	fmt.Println("Connection Pool:")
	fmt.Printf("  Total Connections: %d\n", stat.TotalResources())
	fmt.Printf("  Idle Connections: %d\n", stat.IdleResources())
	fmt.Printf("  Acquires: %d (waited: %d)\n", stat.AcquireCount(), stat.EmptyAcquireCount())
	fmt.Printf("  Replaced Connections: %d\n", replaced)
}

// resultRecorder aggregates the outcome of every operation of a run.
type resultRecorder struct {
	totalOps     atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	totalLatency atomic.Int64

	mu           sync.Mutex
	correct      bool
	errorMessage string
}

func newResultRecorder() *resultRecorder {
	return &resultRecorder{correct: true}
}

func (r *resultRecorder) record(latency time.Duration, err error) {
	r.totalOps.Add(1)
	r.totalLatency.Add(int64(latency))

	if err == nil {
		r.successes.Add(1)
		return
	}
	r.failures.Add(1)

	var mismatch *mismatchError
	if errors.As(err, &mismatch) {
		r.mu.Lock()
		r.correct = false
		if r.errorMessage == "" {
			r.errorMessage = mismatch.Error()
		}
		r.mu.Unlock()
	}
}

func (r *resultRecorder) result(operation OperationType, elapsed time.Duration) *BenchmarkResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &BenchmarkResult{
		Operation:    operation,
		Duration:     elapsed,
		TotalOps:     r.totalOps.Load(),
		Successes:    r.successes.Load(),
		Failures:     r.failures.Load(),
		Correctness:  r.correct,
		ErrorMessage: r.errorMessage,
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(r.totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / elapsed.Seconds()
	}
	return result
}
