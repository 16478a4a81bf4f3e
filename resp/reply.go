package resp

import (
	"strconv"
	"strings"
)

// Reply is a decoded RESP reply.
// This is a plain container; the accessors in coerce.go convert it to Go values.
//
// Field usage per Kind:
//
//	KindStatus     Data = status text
//	KindError      Data = error message, verbatim
//	KindInteger    Int = value, Data = decimal text as received
//	KindBulk       Data = payload, Null = true for $-1
//	KindMultiBulk  Array = elements, Null = true for *-1
//
// A null array has a nil Array; an empty array has a non-nil, zero-length Array.
type Reply struct {
	Kind  Kind
	Data  []byte
	Int   int64
	Array []Reply
	Null  bool
}

// StatusReply returns a status reply (+text).
func StatusReply(text string) Reply {
	return Reply{Kind: KindStatus, Data: []byte(text)}
}

// ErrorReply returns an error reply (-message).
func ErrorReply(message string) Reply {
	return Reply{Kind: KindError, Data: []byte(message)}
}

// IntegerReply returns an integer reply (:n).
func IntegerReply(n int64) Reply {
	return Reply{Kind: KindInteger, Int: n, Data: strconv.AppendInt(nil, n, 10)}
}

// BulkReply returns a bulk reply holding data.
// A nil slice is encoded as an empty bulk string, use NullBulkReply for $-1.
func BulkReply(data []byte) Reply {
	if data == nil {
		data = []byte{}
	}
	return Reply{Kind: KindBulk, Data: data}
}

// BulkStringReply returns a bulk reply holding s.
func BulkStringReply(s string) Reply {
	return Reply{Kind: KindBulk, Data: []byte(s)}
}

// NullBulkReply returns the null bulk reply ($-1).
func NullBulkReply() Reply {
	return Reply{Kind: KindBulk, Null: true}
}

// ArrayReply returns a multi-bulk reply holding items.
// Called without items it returns an empty (not null) array.
func ArrayReply(items ...Reply) Reply {
	if items == nil {
		items = []Reply{}
	}
	return Reply{Kind: KindMultiBulk, Array: items}
}

// NullArrayReply returns the null multi-bulk reply (*-1).
func NullArrayReply() Reply {
	return Reply{Kind: KindMultiBulk, Null: true}
}

// IsNull reports whether r is a null bulk string or a null array.
func (r Reply) IsNull() bool {
	return r.Null && (r.Kind == KindBulk || r.Kind == KindMultiBulk)
}

// IsError reports whether r is an error reply.
func (r Reply) IsError() bool {
	return r.Kind == KindError
}

// String renders the reply the way an interactive client prints it:
//
//	"value"   bulk string
//	(nil)     null bulk or null array
//	(integer) 42
//	(error) ERR ...
//	OK        status
//	1) ...    array elements, one per line
func (r Reply) String() string {
	var sb strings.Builder
	r.format(&sb, "")
	return sb.String()
}

func (r Reply) format(sb *strings.Builder, indent string) {
	if r.IsNull() {
		sb.WriteString("(nil)")
		return
	}

	switch r.Kind {
	case KindStatus:
		sb.Write(r.Data)
	case KindError:
		sb.WriteString("(error) ")
		sb.Write(r.Data)
	case KindInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(r.Int, 10))
	case KindBulk:
		sb.WriteString(strconv.Quote(string(r.Data)))
	case KindMultiBulk:
		if len(r.Array) == 0 {
			sb.WriteString("(empty array)")
			return
		}
		width := len(strconv.Itoa(len(r.Array)))
		for i, item := range r.Array {
			if i > 0 {
				sb.WriteByte('\n')
				sb.WriteString(indent)
			}
			num := strconv.Itoa(i + 1)
			sb.WriteString(strings.Repeat(" ", width-len(num)))
			sb.WriteString(num)
			sb.WriteString(") ")
			item.format(sb, indent+strings.Repeat(" ", width+2))
		}
	default:
		sb.WriteString("(unknown)")
	}
}
