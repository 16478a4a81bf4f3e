package testutils

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pior/simpleredis/resp"
)

const (
	errNotInteger = "ERR value is not an integer or out of range"
	errWrongType  = "WRONGTYPE Operation against a key holding the wrong kind of value"
)

// Hook intercepts a command before the server handles it.
// Returning handled=true sends raw as is instead of the normal reply; a nil
// raw closes the client connection without replying.
type Hook func(name string, args [][]byte) (raw []byte, handled bool)

// Server is an in-process RESP server holding strings and lists in memory.
// It implements the subset of commands used by the client tests.
type Server struct {
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	strings  map[string][]byte
	lists    map[string][][]byte
	expires  map[string]time.Time
	conns    map[net.Conn]struct{}
	received []string
	hook     Hook
	closed   bool
}

// NewServer starts a server on a random local port.
// It is closed automatically when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("Failed to start test server: %v", err)
	}

	s := &Server{
		listener: listener,
		strings:  make(map[string][]byte),
		lists:    make(map[string][][]byte),
		expires:  make(map[string]time.Time),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	tb.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// SetHook installs a hook called for every command. Pass nil to remove it.
func (s *Server) SetHook(hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Received returns the commands received so far, one line per command
// with the arguments separated by spaces.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Close stops the server and closes every client connection.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	w := resp.NewWriter(conn)

	for {
		request, err := resp.ReadReply(r)
		if err != nil {
			return
		}

		args, ok := commandArgs(request)
		if !ok {
			_ = w.WriteReply(resp.ErrorReply("ERR Protocol error: expected an array of bulk strings"))
			return
		}

		name := strings.ToUpper(string(args[0]))

		s.mu.Lock()
		s.received = append(s.received, string(bytesJoin(args)))
		hook := s.hook
		s.mu.Unlock()

		if hook != nil {
			if raw, handled := hook(name, args[1:]); handled {
				if raw == nil {
					return
				}
				if _, err := conn.Write(raw); err != nil {
					return
				}
				continue
			}
		}

		if err := w.WriteReply(s.handle(name, args[1:])); err != nil {
			return
		}
	}
}

func commandArgs(request resp.Reply) ([][]byte, bool) {
	if request.Kind != resp.KindMultiBulk || request.IsNull() || len(request.Array) == 0 {
		return nil, false
	}
	args := make([][]byte, len(request.Array))
	for i, item := range request.Array {
		if item.Kind != resp.KindBulk || item.IsNull() {
			return nil, false
		}
		args[i] = item.Data
	}
	return args, true
}

func bytesJoin(args [][]byte) []byte {
	var out []byte
	for i, arg := range args {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, arg...)
	}
	return out
}

var arity = map[string]struct{ min, max int }{
	"PING":    {0, 1},
	"ECHO":    {1, 1},
	"GET":     {1, 1},
	"SET":     {2, 2},
	"DEL":     {1, math.MaxInt},
	"EXISTS":  {1, math.MaxInt},
	"INCR":    {1, 1},
	"INCRBY":  {2, 2},
	"DECR":    {1, 1},
	"DECRBY":  {2, 2},
	"RPUSH":   {2, math.MaxInt},
	"LPUSH":   {2, math.MaxInt},
	"LPOP":    {1, 1},
	"RPOP":    {1, 1},
	"LLEN":    {1, 1},
	"LRANGE":  {3, 3},
	"EXPIRE":  {2, 2},
	"TTL":     {1, 1},
	"FLUSHDB": {0, 0},
}

func (s *Server) handle(name string, args [][]byte) resp.Reply {
	limits, known := arity[name]
	if !known {
		return resp.ErrorReply(fmt.Sprintf("ERR unknown command '%s'", name))
	}
	if len(args) < limits.min || len(args) > limits.max {
		return resp.ErrorReply(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, arg := range args {
		s.expireIfNeeded(string(arg))
	}

	switch name {
	case "PING":
		if len(args) == 1 {
			return resp.BulkReply(args[0])
		}
		return resp.StatusReply("PONG")

	case "ECHO":
		return resp.BulkReply(args[0])

	case "GET":
		key := string(args[0])
		if _, ok := s.lists[key]; ok {
			return resp.ErrorReply(errWrongType)
		}
		value, ok := s.strings[key]
		if !ok {
			return resp.NullBulkReply()
		}
		return resp.BulkReply(value)

	case "SET":
		key := string(args[0])
		s.deleteKey(key)
		s.strings[key] = append([]byte(nil), args[1]...)
		return resp.StatusReply(resp.StatusOK)

	case "DEL":
		var n int64
		for _, arg := range args {
			if s.deleteKey(string(arg)) {
				n++
			}
		}
		return resp.IntegerReply(n)

	case "EXISTS":
		var n int64
		for _, arg := range args {
			if s.exists(string(arg)) {
				n++
			}
		}
		return resp.IntegerReply(n)

	case "INCR":
		return s.incrBy(args[0], 1)

	case "DECR":
		return s.incrBy(args[0], -1)

	case "INCRBY", "DECRBY":
		delta, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return resp.ErrorReply(errNotInteger)
		}
		if name == "DECRBY" {
			if delta == math.MinInt64 {
				return resp.ErrorReply(errNotInteger)
			}
			delta = -delta
		}
		return s.incrBy(args[0], delta)

	case "RPUSH", "LPUSH":
		key := string(args[0])
		if _, ok := s.strings[key]; ok {
			return resp.ErrorReply(errWrongType)
		}
		list := s.lists[key]
		for _, value := range args[1:] {
			value = append([]byte(nil), value...)
			if name == "RPUSH" {
				list = append(list, value)
			} else {
				list = append([][]byte{value}, list...)
			}
		}
		s.lists[key] = list
		return resp.IntegerReply(int64(len(list)))

	case "LPOP", "RPOP":
		key := string(args[0])
		if _, ok := s.strings[key]; ok {
			return resp.ErrorReply(errWrongType)
		}
		list := s.lists[key]
		if len(list) == 0 {
			return resp.NullBulkReply()
		}
		var value []byte
		if name == "LPOP" {
			value, list = list[0], list[1:]
		} else {
			value, list = list[len(list)-1], list[:len(list)-1]
		}
		if len(list) == 0 {
			s.deleteKey(key)
		} else {
			s.lists[key] = list
		}
		return resp.BulkReply(value)

	case "LLEN":
		key := string(args[0])
		if _, ok := s.strings[key]; ok {
			return resp.ErrorReply(errWrongType)
		}
		return resp.IntegerReply(int64(len(s.lists[key])))

	case "LRANGE":
		return s.lrange(args)

	case "EXPIRE":
		key := string(args[0])
		seconds, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return resp.ErrorReply(errNotInteger)
		}
		if !s.exists(key) {
			return resp.IntegerReply(0)
		}
		if seconds <= 0 {
			s.deleteKey(key)
			return resp.IntegerReply(1)
		}
		s.expires[key] = time.Now().Add(time.Duration(seconds) * time.Second)
		return resp.IntegerReply(1)

	case "TTL":
		key := string(args[0])
		if !s.exists(key) {
			return resp.IntegerReply(-2)
		}
		deadline, ok := s.expires[key]
		if !ok {
			return resp.IntegerReply(-1)
		}
		return resp.IntegerReply(int64(math.Round(time.Until(deadline).Seconds())))

	case "FLUSHDB":
		clear(s.strings)
		clear(s.lists)
		clear(s.expires)
		return resp.StatusReply(resp.StatusOK)
	}

	return resp.ErrorReply(fmt.Sprintf("ERR unknown command '%s'", name))
}

// incrBy must be called with the lock held.
func (s *Server) incrBy(rawKey []byte, delta int64) resp.Reply {
	key := string(rawKey)
	if _, ok := s.lists[key]; ok {
		return resp.ErrorReply(errWrongType)
	}

	var current int64
	if value, ok := s.strings[key]; ok {
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return resp.ErrorReply(errNotInteger)
		}
		current = n
	}

	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return resp.ErrorReply("ERR increment or decrement would overflow")
	}

	current += delta
	s.strings[key] = strconv.AppendInt(nil, current, 10)
	return resp.IntegerReply(current)
}

// lrange must be called with the lock held.
func (s *Server) lrange(args [][]byte) resp.Reply {
	key := string(args[0])
	if _, ok := s.strings[key]; ok {
		return resp.ErrorReply(errWrongType)
	}

	start, err1 := strconv.Atoi(string(args[1]))
	stop, err2 := strconv.Atoi(string(args[2]))
	if err := errors.Join(err1, err2); err != nil {
		return resp.ErrorReply(errNotInteger)
	}

	list := s.lists[key]
	n := len(list)
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	stop = min(stop, n-1)

	if start > stop || start >= n {
		return resp.ArrayReply()
	}

	items := make([]resp.Reply, 0, stop-start+1)
	for _, value := range list[start : stop+1] {
		items = append(items, resp.BulkReply(value))
	}
	return resp.ArrayReply(items...)
}

// exists must be called with the lock held.
func (s *Server) exists(key string) bool {
	_, isString := s.strings[key]
	_, isList := s.lists[key]
	return isString || isList
}

// deleteKey must be called with the lock held.
func (s *Server) deleteKey(key string) bool {
	existed := s.exists(key)
	delete(s.strings, key)
	delete(s.lists, key)
	delete(s.expires, key)
	return existed
}

// expireIfNeeded must be called with the lock held.
func (s *Server) expireIfNeeded(key string) {
	if deadline, ok := s.expires[key]; ok && !time.Now().Before(deadline) {
		s.deleteKey(key)
	}
}
