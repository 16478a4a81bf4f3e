package simpleredis

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/pior/simpleredis/resp"
	"github.com/sony/gobreaker/v2"
)

// ClientStats contains statistics about client calls.
// All fields are safe for concurrent access.
//
// Struct is sized to fit within a single cache line (64 bytes).
//
// Exposed to Prometheus by NewCollector.
type ClientStats struct {
	Commands         uint64 // Total calls to Execute, including failed ones
	Errors           uint64 // Calls that returned any error
	ServerErrors     uint64 // Error replies from the server
	ConnectionErrors uint64 // Connection-ending errors, including calls on a broken connection
	Rejected         uint64 // Calls rejected by the open circuit breaker
	TotalTimeNs      uint64 // Total nanoseconds spent in Execute
	_                [2]uint64
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) record(duration time.Duration, err error) {
	atomic.AddUint64(&c.stats.Commands, 1)
	atomic.AddUint64(&c.stats.TotalTimeNs, uint64(duration.Nanoseconds()))

	if err == nil {
		return
	}
	atomic.AddUint64(&c.stats.Errors, 1)

	var serverErr *resp.ServerError
	switch {
	case errors.As(err, &serverErr):
		atomic.AddUint64(&c.stats.ServerErrors, 1)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		atomic.AddUint64(&c.stats.Rejected, 1)
	case resp.ShouldCloseConnection(err):
		atomic.AddUint64(&c.stats.ConnectionErrors, 1)
	}
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Commands:         atomic.LoadUint64(&c.stats.Commands),
		Errors:           atomic.LoadUint64(&c.stats.Errors),
		ServerErrors:     atomic.LoadUint64(&c.stats.ServerErrors),
		ConnectionErrors: atomic.LoadUint64(&c.stats.ConnectionErrors),
		Rejected:         atomic.LoadUint64(&c.stats.Rejected),
		TotalTimeNs:      atomic.LoadUint64(&c.stats.TotalTimeNs),
	}
}
