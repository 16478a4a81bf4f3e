package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pior/simpleredis"
	"github.com/pior/simpleredis/internal/cliconfig"
	"github.com/pior/simpleredis/resp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	loader := cliconfig.Register(pflag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: resp-cli [flags] [command [args...]]\n\n")
		pflag.PrintDefaults()
	}
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

	ctx := context.Background()

	client, err := simpleredis.NewClient(ctx, options.ClientConfig(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", options.Addr, err)
		os.Exit(1)
	}
	defer client.Close()

	// One-shot mode
	if pflag.NArg() > 0 {
		if err := execute(ctx, os.Stdout, client, pflag.Args()); err != nil {
			client.Close()
			os.Exit(1)
		}
		return
	}

	repl(ctx, os.Stdin, os.Stdout, client, logger)
}

func repl(ctx context.Context, in io.Reader, out io.Writer, client *simpleredis.Client, logger *zap.Logger) {
	fmt.Fprintf(out, "RESP CLI connected to %s\n", client.Addr())
	fmt.Fprintln(out, "Type any command (e.g. SET key value), 'help' or 'quit'.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "%s> ", client.Addr())
		if !scanner.Scan() {
			break
		}

		parts, err := splitArgs(scanner.Text())
		if err != nil {
			fmt.Fprintf(out, "(error) %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "help":
			printHelp(out)
			continue
		case "stats":
			printStats(out, client)
			continue
		case "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		// No reconnection: a connection-ending error ends the session
		if err := execute(ctx, out, client, parts); resp.ShouldCloseConnection(err) {
			logger.Warn("connection lost", zap.String("addr", client.Addr()), zap.Error(err))
			fmt.Fprintln(out, "Connection lost.")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(out, "Error reading input: %v\n", err)
	}
}

// execute runs one command and prints the reply or the error.
func execute(ctx context.Context, out io.Writer, client *simpleredis.Client, parts []string) error {
	args := make([]any, len(parts)-1)
	for i, part := range parts[1:] {
		args[i] = part
	}

	start := time.Now()
	reply, err := client.Execute(ctx, parts[0], args...)
	duration := time.Since(start)

	var serverErr *resp.ServerError
	switch {
	case errors.As(err, &serverErr):
		fmt.Fprintf(out, "(error) %s\n", serverErr.Error())
		return err
	case err != nil:
		fmt.Fprintf(out, "(failure) %v (took %v)\n", err, duration)
		return err
	}

	fmt.Fprintln(out, reply.String())
	return nil
}

// splitArgs splits a line on whitespace. Double quoted sections keep their
// spaces and support \" and \\ escapes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quoted  bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted && c == '\\' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\\'):
			i++
			current.WriteByte(line[i])
		case c == '"':
			quoted = !quoted
			inArg = true
		case !quoted && (c == ' ' || c == '\t'):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteByte(c)
			inArg = true
		}
	}

	if quoted {
		return nil, errors.New("unbalanced quotes")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands are sent as typed, for example:")
	fmt.Fprintln(out, "  PING")
	fmt.Fprintln(out, "  SET greeting \"hello world\"")
	fmt.Fprintln(out, "  GET greeting")
	fmt.Fprintln(out, "  RPUSH queue a b c")
	fmt.Fprintln(out, "  LRANGE queue 0 -1")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Local commands:")
	fmt.Fprintln(out, "  stats  - Show client statistics")
	fmt.Fprintln(out, "  help   - Show this help")
	fmt.Fprintln(out, "  quit   - Exit the CLI")
}

func printStats(out io.Writer, client *simpleredis.Client) {
	stats := client.Stats()
	fmt.Fprintf(out, "Server: %s\n", client.Addr())
	fmt.Fprintf(out, "  Commands: %d\n", stats.Commands)
	fmt.Fprintf(out, "  Errors: %d (server: %d, connection: %d, rejected: %d)\n",
		stats.Errors, stats.ServerErrors, stats.ConnectionErrors, stats.Rejected)
	if stats.Commands > 0 {
		fmt.Fprintf(out, "  Avg Latency: %v\n", time.Duration(stats.TotalTimeNs/stats.Commands))
	}
	fmt.Fprintf(out, "  Circuit Breaker: %s\n", client.CircuitBreakerState())
	fmt.Fprintf(out, "  Call State: %s\n", client.State())
}
