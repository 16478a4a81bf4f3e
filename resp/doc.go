// Package resp implements the wire codec of the Redis serialization protocol
// (RESP2) used between a client and a key-value server.
//
// The package encodes commands, decodes replies and converts replies to Go
// values. It does not own connections: callers provide the buffered reader
// and the writer and decide what to do with the connection on error.
//
// # Core Types
//
//   - Reply: a decoded reply (status, error, integer, bulk, multi-bulk)
//   - Kind: the reply type, matching its first byte on the wire
//   - Writer: encodes commands through a reusable scratch buffer
//
// # Encoding
//
// WriteCommand serializes a command as an array of bulk strings and flushes
// once the whole command is buffered:
//
//	w := resp.NewWriter(conn)
//	err := w.WriteCommand("SET", "greeting", "hello")
//	// *3\r\n$3\r\nSET\r\n$8\r\ngreeting\r\n$5\r\nhello\r\n
//
// Arguments may be strings, byte slices or integers. Integers are written in
// decimal, so w.WriteCommand("INCRBY", "counter", 5) sends "5" as a bulk string.
//
// # Decoding
//
// ReadReply reads exactly one reply, including all nested array elements:
//
//	reply, err := resp.ReadReply(bufio.NewReader(conn))
//	if err != nil {
//	    if resp.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// Error replies are returned as data (Kind == KindError). Use Reply.Err to
// turn them into a Go error.
//
// # Conversion
//
// The caller picks the accessor, nothing is inferred from the reply:
//
//	s, err := reply.Text()          // bulk, status or integer as string
//	n, err := reply.Int64()         // base-10 number
//	ok, err := reply.Bool()         // "+OK", "1" or "0"
//	b, err := reply.Bytes()         // raw payload, nil for a null bulk
//	p, err := reply.OptionalText()  // nil pointer for a null bulk
//	items, err := resp.Strings(reply)
//
// Non-optional accessors return ErrNil for null replies.
//
// # Error Handling
//
//   - ConnectionError: I/O failure or early end of stream, CLOSE connection
//   - ProtocolError: bytes are not valid RESP, CLOSE connection
//   - ServerError: error reply from the server, connection can be REUSED
//   - CoercionError: reply does not fit the requested type, connection can be REUSED
//   - ArgumentError: argument type cannot be encoded, nothing was written
//
// # Thread Safety
//
// Reply values are immutable once decoded and can be shared.
// A Writer is not safe for concurrent use.
package resp
