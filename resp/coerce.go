package resp

import (
	"math"
	"strconv"
	"strings"
)

// Accessors converting a Reply to Go values.
//
// Rules, applied in order:
//  1. A null reply converts to the absent value of optional accessors
//     (Bytes, Slice, Optional*). Other accessors return ErrNil.
//  2. An error reply fails every accessor with a ServerError, except AsError.
//  3. Status and integer replies expose their text, bulk replies their payload.
//  4. Numbers are parsed in base 10, booleans accept a single '0' or '1',
//     and a status reply is true when it is "OK" (case-insensitive).

// AsError returns the ServerError carried by an error reply, or nil for any
// other reply. It is the only accessor returning an error reply as data.
func (r Reply) AsError() *ServerError {
	if r.Kind != KindError {
		return nil
	}
	return &ServerError{Message: string(r.Data)}
}

// Err returns the error reply as a Go error, or nil for any other reply.
func (r Reply) Err() error {
	if se := r.AsError(); se != nil {
		return se
	}
	return nil
}

// Bytes returns the raw payload.
// Status and integer replies return their text, a null bulk returns nil.
func (r Reply) Bytes() ([]byte, error) {
	switch r.Kind {
	case KindError:
		return nil, r.AsError()
	case KindStatus, KindInteger:
		return r.scalar("[]byte")
	case KindBulk:
		if r.Null {
			return nil, nil
		}
		return r.Data, nil
	default:
		if r.IsNull() {
			return nil, nil
		}
		return nil, r.coercionError("[]byte", "")
	}
}

// Text returns the payload as a string.
func (r Reply) Text() (string, error) {
	b, err := r.scalar("string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Int64 returns the reply as a signed 64-bit integer.
// Integer replies are returned as is, other payloads are parsed in base 10.
func (r Reply) Int64() (int64, error) {
	if r.Kind == KindInteger {
		return r.Int, nil
	}
	b, err := r.scalar("int64")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, r.coercionError("int64", "", err)
	}
	return n, nil
}

// Int32 returns the reply as a signed 32-bit integer.
// Values outside the int32 range fail with a CoercionError.
func (r Reply) Int32() (int32, error) {
	n, err := r.Int64()
	if err != nil {
		if ce, ok := err.(*CoercionError); ok {
			ce.Target = "int32"
		}
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, r.coercionError("int32", strconv.FormatInt(n, 10)+" out of range")
	}
	return int32(n), nil
}

// Bool returns the reply as a boolean.
//
// A status reply is true when its text is "OK" in any case, and false for
// any other text. Integer and bulk replies must be exactly "0" or "1".
func (r Reply) Bool() (bool, error) {
	b, err := r.scalar("bool")
	if err != nil {
		return false, err
	}

	if r.Kind == KindStatus {
		return strings.EqualFold(string(b), StatusOK), nil
	}

	if len(b) == 1 {
		switch b[0] {
		case '0':
			return false, nil
		case '1':
			return true, nil
		}
	}
	return false, r.coercionError("bool", "payload must be \"0\" or \"1\", got "+strconv.Quote(string(b)))
}

// Slice returns the elements of an array reply.
// A null array returns nil, an empty array returns a non-nil empty slice.
func (r Reply) Slice() ([]Reply, error) {
	switch r.Kind {
	case KindError:
		return nil, r.AsError()
	case KindMultiBulk:
		if r.Null {
			return nil, nil
		}
		return r.Array, nil
	default:
		if r.IsNull() {
			return nil, nil
		}
		return nil, r.coercionError("[]Reply", "")
	}
}

// OptionalText is Text with absence: a null reply returns nil.
func (r Reply) OptionalText() (*string, error) {
	return optional(r, Reply.Text)
}

// OptionalInt64 is Int64 with absence: a null reply returns nil.
func (r Reply) OptionalInt64() (*int64, error) {
	return optional(r, Reply.Int64)
}

// OptionalBool is Bool with absence: a null reply returns nil.
func (r Reply) OptionalBool() (*bool, error) {
	return optional(r, Reply.Bool)
}

func optional[T any](r Reply, conv func(Reply) (T, error)) (*T, error) {
	if r.IsNull() {
		return nil, nil
	}
	v, err := conv(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Sequence converts every element of an array reply with conv.
// Each element is converted independently; the first failure is returned
// with the index of the element. A null array returns nil.
func Sequence[T any](r Reply, conv func(Reply) (T, error)) ([]T, error) {
	items, err := r.Slice()
	if err != nil || items == nil {
		return nil, err
	}

	out := make([]T, len(items))
	for i, item := range items {
		v, err := conv(item)
		if err != nil {
			return nil, &ElementError{Index: i, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// Strings converts an array reply to a slice of strings.
func Strings(r Reply) ([]string, error) {
	return Sequence(r, Reply.Text)
}

// Int64s converts an array reply to a slice of int64.
func Int64s(r Reply) ([]int64, error) {
	return Sequence(r, Reply.Int64)
}

// ByteSlices converts an array reply to a slice of byte slices.
// Null elements are kept as nil entries.
func ByteSlices(r Reply) ([][]byte, error) {
	return Sequence(r, Reply.Bytes)
}

// ElementError reports which array element failed to convert.
type ElementError struct {
	Index int
	Err   error
}

func (e *ElementError) Error() string {
	return "resp: element " + strconv.Itoa(e.Index) + ": " + e.Err.Error()
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - conversion happens after the reply was read
func (e *ElementError) ShouldCloseConnection() bool {
	return false
}

// scalar returns the payload of a reply that can be read as a single value.
func (r Reply) scalar(target string) ([]byte, error) {
	switch r.Kind {
	case KindError:
		return nil, r.AsError()
	case KindStatus:
		return r.Data, nil
	case KindInteger:
		if r.Data == nil {
			return strconv.AppendInt(nil, r.Int, 10), nil
		}
		return r.Data, nil
	case KindBulk:
		if r.Null {
			return nil, ErrNil
		}
		return r.Data, nil
	case KindMultiBulk:
		if r.Null {
			return nil, ErrNil
		}
		return nil, r.coercionError(target, "")
	default:
		return nil, r.coercionError(target, "")
	}
}

func (r Reply) coercionError(target, message string, err ...error) *CoercionError {
	e := &CoercionError{Kind: r.Kind, Target: target, Message: message}
	if len(err) > 0 {
		e.Err = err[0]
	}
	return e
}
