package resp

// Kind is the reply type, identified on the wire by its first byte.
type Kind byte

const (
	KindStatus    Kind = '+' // +OK\r\n
	KindError     Kind = '-' // -ERR message\r\n
	KindInteger   Kind = ':' // :42\r\n
	KindBulk      Kind = '$' // $5\r\nhello\r\n or $-1\r\n
	KindMultiBulk Kind = '*' // *2\r\n<reply><reply> or *-1\r\n
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindMultiBulk:
		return "multi-bulk"
	default:
		return "unknown(" + string(rune(k)) + ")"
	}
}

const (
	CRLF = "\r\n"

	// NullLength is the declared length of a null bulk string or null array.
	NullLength = -1

	// MaxBulkLength is the largest bulk string accepted by the decoder.
	// Matches the server default for proto-max-bulk-len (512MB).
	MaxBulkLength = 512 * 1024 * 1024

	// maxPrealloc caps the capacity reserved up front for an array reply.
	// Larger arrays grow as their elements are decoded.
	maxPrealloc = 1024

	// MaxNestingDepth is the deepest array nesting accepted by the decoder.
	// A top-level array is at depth 1.
	MaxNestingDepth = 512
)

// StatusOK is the acknowledgment text sent by the server on success.
const StatusOK = "OK"
