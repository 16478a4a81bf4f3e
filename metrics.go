package simpleredis

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the client statistics as Prometheus metrics.
//
//	registry.MustRegister(simpleredis.NewCollector(client))
type Collector struct {
	client *Client

	commands     *prometheus.Desc
	errors       *prometheus.Desc
	seconds      *prometheus.Desc
	circuitState *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading client.Stats on every scrape.
func NewCollector(client *Client) *Collector {
	labels := prometheus.Labels{"server": client.Addr()}

	return &Collector{
		client: client,
		commands: prometheus.NewDesc(
			"simpleredis_commands_total",
			"Total number of commands executed",
			nil, labels,
		),
		errors: prometheus.NewDesc(
			"simpleredis_errors_total",
			"Total number of failed commands by error type",
			[]string{"type"}, labels, // server, connection, rejected, other
		),
		seconds: prometheus.NewDesc(
			"simpleredis_command_seconds_total",
			"Total time spent executing commands",
			nil, labels,
		),
		circuitState: prometheus.NewDesc(
			"simpleredis_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commands
	ch <- c.errors
	ch <- c.seconds
	ch <- c.circuitState
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.client.Stats()

	var other uint64
	if classified := stats.ServerErrors + stats.ConnectionErrors + stats.Rejected; stats.Errors > classified {
		other = stats.Errors - classified
	}

	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(stats.Commands))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.ServerErrors), "server")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.ConnectionErrors), "connection")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.Rejected), "rejected")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(other), "other")
	ch <- prometheus.MustNewConstMetric(c.seconds, prometheus.CounterValue, float64(stats.TotalTimeNs)/1e9)
	ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, float64(c.client.CircuitBreakerState()))
}
