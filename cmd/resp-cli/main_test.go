package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pior/simpleredis"
	"github.com/pior/simpleredis/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*simpleredis.Client, *testutils.Server) {
	t.Helper()

	server := testutils.NewServer(t)
	client, err := simpleredis.NewClient(context.Background(), simpleredis.Config{
		Addr:        server.Addr(),
		ReadTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"PING", []string{"PING"}},
		{"SET  key\tvalue", []string{"SET", "key", "value"}},
		{`SET greeting "hello world"`, []string{"SET", "greeting", "hello world"}},
		{`SET k ""`, []string{"SET", "k", ""}},
		{`ECHO "say \"hi\""`, []string{"ECHO", `say "hi"`}},
		{`ECHO "a\\b"`, []string{"ECHO", `a\b`}},
		{`ECHO pre"fix suf"fix`, []string{"ECHO", "prefix suffix"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitArgs(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := splitArgs(`ECHO "open`)
	require.Error(t, err)
}

func TestREPL(t *testing.T) {
	client, _ := newTestClient(t)

	input := strings.Join([]string{
		`SET greeting "hello world"`,
		`GET greeting`,
		`GET missing`,
		`RPUSH queue a b`,
		`LRANGE queue 0 -1`,
		`INCR greeting`,
		`stats`,
		`quit`,
		`PING`,
	}, "\n")

	var out bytes.Buffer
	repl(context.Background(), strings.NewReader(input), &out, client, zap.NewNop())

	output := out.String()
	assert.Contains(t, output, "OK\n")
	assert.Contains(t, output, "\"hello world\"\n")
	assert.Contains(t, output, "(nil)\n")
	assert.Contains(t, output, "(integer) 2\n")
	assert.Contains(t, output, "1) \"a\"\n2) \"b\"\n")
	assert.Contains(t, output, "(error) ERR value is not an integer or out of range\n")
	assert.Contains(t, output, "Commands: 6\n")
	assert.Contains(t, output, "Goodbye!\n")
	assert.NotContains(t, output, "PONG")
}

func TestREPL_ConnectionLost(t *testing.T) {
	client, server := newTestClient(t)
	server.SetHook(func(name string, args [][]byte) ([]byte, bool) {
		if name == "GET" {
			return nil, true
		}
		return nil, false
	})

	var out bytes.Buffer
	repl(context.Background(), strings.NewReader("PING\nGET key\nPING\n"), &out, client, zap.NewNop())

	output := out.String()
	assert.Contains(t, output, "PONG\n")
	assert.Contains(t, output, "(failure)")
	assert.Contains(t, output, "Connection lost.\n")
	assert.Equal(t, uint64(2), client.Stats().Commands)
}

func TestExecute(t *testing.T) {
	client, server := newTestClient(t)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), &out, client, []string{"ECHO", "hi there"}))
	assert.Equal(t, "\"hi there\"\n", out.String())
	assert.Equal(t, []string{"ECHO hi there"}, server.Received())

	out.Reset()
	err := execute(context.Background(), &out, client, []string{"NOPE"})
	require.Error(t, err)
	assert.Equal(t, "(error) ERR unknown command 'NOPE'\n", out.String())
}
