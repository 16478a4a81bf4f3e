package simpleredis

import (
	"time"

	"github.com/pior/simpleredis/resp"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// NewCircuitBreakerConfig returns a Config.NewCircuitBreaker function.
//
// The breaker opens when at least 3 requests were seen in the interval and 60%
// of them failed. Only errors that break the connection count as failures: an
// error reply, a conversion error or a rejected argument means the server is
// healthy. State changes are logged with logger, which may be nil.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration, logger *zap.Logger) func(string) *gobreaker.CircuitBreaker[resp.Reply] {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(addr string) *gobreaker.CircuitBreaker[resp.Reply] {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: isCircuitBreakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("circuit breaker state changed",
					zap.String("addr", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}
		return gobreaker.NewCircuitBreaker[resp.Reply](settings)
	}
}

func isCircuitBreakerSuccess(err error) bool {
	return !resp.ShouldCloseConnection(err)
}
