package simpleredis

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, "k", "v")
	require.NoError(t, err)
	_, err = client.Incr(ctx, "k")
	require.Error(t, err)
	_, err = client.Execute(ctx, "SET", "k", 1.5)
	require.Error(t, err)

	collector := NewCollector(client)

	// 1 commands + 4 errors + 1 seconds + 1 circuit state
	assert.Equal(t, 7, testutil.CollectAndCount(collector))

	expected := fmt.Sprintf(`
# HELP simpleredis_commands_total Total number of commands executed
# TYPE simpleredis_commands_total counter
simpleredis_commands_total{server=%[1]q} 3
# HELP simpleredis_errors_total Total number of failed commands by error type
# TYPE simpleredis_errors_total counter
simpleredis_errors_total{server=%[1]q,type="connection"} 0
simpleredis_errors_total{server=%[1]q,type="other"} 1
simpleredis_errors_total{server=%[1]q,type="rejected"} 0
simpleredis_errors_total{server=%[1]q,type="server"} 1
# HELP simpleredis_circuit_breaker_state Circuit breaker state (0=closed, 1=half-open, 2=open)
# TYPE simpleredis_circuit_breaker_state gauge
simpleredis_circuit_breaker_state{server=%[1]q} 0
`, client.Addr())

	err = testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"simpleredis_commands_total",
		"simpleredis_errors_total",
		"simpleredis_circuit_breaker_state",
	)
	require.NoError(t, err)
}

func TestCollector_Register(t *testing.T) {
	client, _ := newTestClient(t, Config{})

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewCollector(client)))

	_, err := client.Ping(context.Background())
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.ElementsMatch(t, []string{
		"simpleredis_commands_total",
		"simpleredis_errors_total",
		"simpleredis_command_seconds_total",
		"simpleredis_circuit_breaker_state",
	}, names)
}
