package resp

import (
	"bufio"
	"io"
	"strconv"
)

const (
	// DefaultWriteBufferSize is the size of the buffered writer created by NewWriter.
	DefaultWriteBufferSize = 2048

	// maxScratchRetain is the largest scratch buffer kept between commands.
	maxScratchRetain = 64 * 1024
)

// Writer encodes commands and replies to an underlying stream.
//
// Each argument is first encoded into a scratch buffer so its byte length can
// be written in the $<len> header before the payload. The scratch buffer is
// reused across calls. A Writer is not safe for concurrent use.
type Writer struct {
	bw      *bufio.Writer
	scratch []byte
	num     [20]byte // room for any int64 in decimal
}

// NewWriter returns a Writer buffering writes to w with DefaultWriteBufferSize.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, DefaultWriteBufferSize)
}

// NewWriterSize returns a Writer with a write buffer of at least size bytes.
func NewWriterSize(w io.Writer, size int) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, size)}
}

// WriteCommand writes name and args as an array of bulk strings and flushes
// the stream once the whole command is buffered:
//
//	*<1+len(args)>\r\n$<len(name)>\r\n<name>\r\n$<len(arg)>\r\n<arg>\r\n...
//
// Supported argument types are string, []byte and all integer types.
// Argument types are checked before anything is written; an unsupported
// type returns an ArgumentError and leaves the stream untouched.
func (w *Writer) WriteCommand(name string, args ...any) error {
	if err := validateArgs(args); err != nil {
		return err
	}

	w.writeHeader(KindMultiBulk, 1+len(args))
	w.writeArg(name)
	for _, arg := range args {
		w.writeArg(arg)
	}

	if cap(w.scratch) > maxScratchRetain {
		w.scratch = nil
	}

	return w.flush()
}

// WriteReply writes r, including nested array elements, and flushes the stream.
func (w *Writer) WriteReply(r Reply) error {
	w.writeReply(r)
	return w.flush()
}

func (w *Writer) writeReply(r Reply) {
	switch r.Kind {
	case KindStatus, KindError:
		w.bw.WriteByte(byte(r.Kind))
		w.bw.Write(r.Data)
		w.bw.WriteString(CRLF)

	case KindInteger:
		w.bw.WriteByte(byte(KindInteger))
		w.bw.Write(strconv.AppendInt(w.num[:0], r.Int, 10))
		w.bw.WriteString(CRLF)

	case KindBulk:
		if r.Null {
			w.writeHeader(KindBulk, NullLength)
			return
		}
		w.writeHeader(KindBulk, len(r.Data))
		w.bw.Write(r.Data)
		w.bw.WriteString(CRLF)

	case KindMultiBulk:
		if r.Null {
			w.writeHeader(KindMultiBulk, NullLength)
			return
		}
		w.writeHeader(KindMultiBulk, len(r.Array))
		for _, item := range r.Array {
			w.writeReply(item)
		}
	}
}

// writeArg encodes arg into the scratch buffer, then copies it out behind its length header.
func (w *Writer) writeArg(arg any) {
	w.scratch, _ = appendArg(w.scratch[:0], arg)

	w.writeHeader(KindBulk, len(w.scratch))
	w.bw.Write(w.scratch)
	w.bw.WriteString(CRLF)
}

func (w *Writer) writeHeader(kind Kind, n int) {
	w.bw.WriteByte(byte(kind))
	w.bw.Write(strconv.AppendInt(w.num[:0], int64(n), 10))
	w.bw.WriteString(CRLF)
}

// flush pushes buffered bytes to the stream.
// bufio.Writer errors are sticky, so a failed write earlier in the command surfaces here.
func (w *Writer) flush() error {
	if err := w.bw.Flush(); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// AppendCommand appends the wire encoding of a command to dst.
// It produces the same bytes as WriteCommand.
func AppendCommand(dst []byte, name string, args ...any) ([]byte, error) {
	if err := validateArgs(args); err != nil {
		return dst, err
	}

	dst = appendHeader(dst, KindMultiBulk, 1+len(args))
	dst = appendBulk(dst, name)
	for _, arg := range args {
		dst = appendBulk(dst, arg)
	}
	return dst, nil
}

func appendBulk(dst []byte, arg any) []byte {
	payload, _ := appendArg(nil, arg)
	dst = appendHeader(dst, KindBulk, len(payload))
	dst = append(dst, payload...)
	return append(dst, CRLF...)
}

func appendHeader(dst []byte, kind Kind, n int) []byte {
	dst = append(dst, byte(kind))
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, CRLF...)
}

func validateArgs(args []any) error {
	for i, arg := range args {
		if !isSupportedArg(arg) {
			return &ArgumentError{Index: i, Value: arg}
		}
	}
	return nil
}

func isSupportedArg(arg any) bool {
	switch arg.(type) {
	case string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// appendArg appends the wire encoding of a single argument:
// text as its UTF-8 bytes, integers in decimal, byte slices unchanged.
func appendArg(dst []byte, arg any) ([]byte, bool) {
	switch v := arg.(type) {
	case string:
		return append(dst, v...), true
	case []byte:
		return append(dst, v...), true
	case int:
		return strconv.AppendInt(dst, int64(v), 10), true
	case int8:
		return strconv.AppendInt(dst, int64(v), 10), true
	case int16:
		return strconv.AppendInt(dst, int64(v), 10), true
	case int32:
		return strconv.AppendInt(dst, int64(v), 10), true
	case int64:
		return strconv.AppendInt(dst, v, 10), true
	case uint:
		return strconv.AppendUint(dst, uint64(v), 10), true
	case uint8:
		return strconv.AppendUint(dst, uint64(v), 10), true
	case uint16:
		return strconv.AppendUint(dst, uint64(v), 10), true
	case uint32:
		return strconv.AppendUint(dst, uint64(v), 10), true
	case uint64:
		return strconv.AppendUint(dst, v, 10), true
	default:
		return dst, false
	}
}
