package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ReadReply reads and parses exactly one reply from r.
// Array replies are decoded recursively, so a single call consumes the whole
// reply tree and never reads past its last byte.
//
// Error replies from the server are returned as a Reply of KindError, not as
// a Go error. The caller decides whether to raise them (see ServerError).
//
// Go errors returned:
//   - ConnectionError: the stream ended or failed, close the connection
//   - ProtocolError: the bytes are not valid RESP, close the connection
func ReadReply(r *bufio.Reader) (Reply, error) {
	return readReply(r, 0)
}

func readReply(r *bufio.Reader, depth int) (Reply, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Reply{}, readError(err)
	}

	switch Kind(tag) {
	case KindStatus, KindError:
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Kind: Kind(tag), Data: line}, nil

	case KindInteger:
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		n, err := parseDecimal(line)
		if err != nil {
			return Reply{}, &ProtocolError{Message: "invalid integer " + strconv.Quote(string(line)), Err: err}
		}
		return Reply{Kind: KindInteger, Int: n, Data: line}, nil

	case KindBulk:
		return readBulk(r)

	case KindMultiBulk:
		if depth >= MaxNestingDepth {
			return Reply{}, &ProtocolError{Message: fmt.Sprintf("array nesting exceeds maximum depth %d", MaxNestingDepth)}
		}
		return readMultiBulk(r, depth+1)

	default:
		return Reply{}, &ProtocolError{Message: fmt.Sprintf("unexpected reply type %q", tag)}
	}
}

func readBulk(r *bufio.Reader) (Reply, error) {
	n, err := readLength(r)
	if err != nil {
		return Reply{}, err
	}
	if n == NullLength {
		return NullBulkReply(), nil
	}
	if n > MaxBulkLength {
		return Reply{}, &ProtocolError{Message: fmt.Sprintf("bulk length %d exceeds maximum %d", n, MaxBulkLength)}
	}

	// Payload and its CRLF are read in a single call
	data := make([]byte, n+2)
	if _, err := io.ReadFull(r, data); err != nil {
		return Reply{}, readError(err)
	}
	if data[n] != '\r' || data[n+1] != '\n' {
		return Reply{}, &ProtocolError{Message: "expected end-of-line after bulk payload"}
	}

	return Reply{Kind: KindBulk, Data: data[:n:n]}, nil
}

func readMultiBulk(r *bufio.Reader, depth int) (Reply, error) {
	n, err := readLength(r)
	if err != nil {
		return Reply{}, err
	}
	if n == NullLength {
		return NullArrayReply(), nil
	}

	items := make([]Reply, 0, min(n, maxPrealloc))
	for range n {
		item, err := readReply(r, depth)
		if err != nil {
			return Reply{}, err
		}
		items = append(items, item)
	}

	return Reply{Kind: KindMultiBulk, Array: items}, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	return ParseLength(line)
}

// readLine reads up to the next CR and requires the following byte to be LF.
// The returned slice excludes the CRLF and is owned by the caller.
func readLine(r *bufio.Reader) ([]byte, error) {
	chunk, err := r.ReadSlice('\r')
	// ReadSlice returns a view into the reader buffer, copy it before the next read
	line := append([]byte(nil), chunk...)
	for err == bufio.ErrBufferFull {
		chunk, err = r.ReadSlice('\r')
		line = append(line, chunk...)
	}
	if err != nil {
		return nil, readError(err)
	}

	lf, err := r.ReadByte()
	if err != nil {
		return nil, readError(err)
	}
	if lf != '\n' {
		return nil, &ProtocolError{Message: "expected end-of-line"}
	}

	return line[:len(line)-1], nil
}

// ParseLength parses the length field of a bulk or array header.
//
// A single ASCII digit is decoded directly; every other input goes through
// the general decimal parser, which is also where the null sentinel "-1" is
// recognized. Both paths return the same value for the same input.
// Negative values other than -1 are rejected.
func ParseLength(line []byte) (int, error) {
	if len(line) == 1 {
		c := line[0]
		if c < '0' || c > '9' {
			return 0, &ProtocolError{Message: "invalid length " + strconv.Quote(string(line))}
		}
		return int(c - '0'), nil
	}

	n, err := parseDecimal(line)
	if err != nil {
		return 0, &ProtocolError{Message: "invalid length " + strconv.Quote(string(line)), Err: err}
	}
	if n < NullLength {
		return 0, &ProtocolError{Message: fmt.Sprintf("negative length %d", n)}
	}
	if int64(int(n)) != n {
		return 0, &ProtocolError{Message: fmt.Sprintf("length %d out of range", n)}
	}
	return int(n), nil
}

var errEmptyNumber = errors.New("empty number")

// parseDecimal parses a signed base-10 integer: an optional '-' followed by digits.
func parseDecimal(line []byte) (int64, error) {
	if len(line) == 0 {
		return 0, errEmptyNumber
	}
	if line[0] == '+' {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(string(line), 10, 64)
}

// readError converts a read failure into a ConnectionError.
// End of stream, at any point of a reply, means the peer went away.
func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ConnectionError{Op: "read", Err: ErrPeerDisconnected}
	}
	return &ConnectionError{Op: "read", Err: err}
}
