// Package resp implements the RESP2 wire protocol: request framing and
// reply parsing for a Redis-compatible server.
package resp

import "fmt"

// Kind tags the concrete case a Value holds.
type Kind int

const (
	// SimpleString is a `+...\r\n` reply.
	SimpleString Kind = iota
	// Error is a `-...\r\n` reply. It is never returned as a Go error by
	// the Reader; callers observe it through the Kind tag on the Value.
	Error
	// Integer is a `:...\r\n` reply.
	Integer
	// BulkString is a `$len\r\n...\r\n` reply. A nil bulk string has
	// Null set to true.
	BulkString
	// Array is a `*count\r\n...` reply. A nil array has Null set to true.
	Array
)

// Value is a tagged variant over the five RESP2 reply shapes described in
// spec.md §3 ("RESP value"). It is a struct rather than an interface{} so
// that callers can switch on Kind without a type assertion.
type Value struct {
	Kind  Kind
	Text  string  // SimpleString, Error
	Int   int64   // Integer
	Bulk  []byte  // BulkString (nil bulk => Null true, Bulk nil)
	Items []Value // Array (nil array => Null true, Items nil)
	Null  bool    // BulkString/Array nil marker
}

// ParseFunc transforms the raw bytes of a terminal scalar reply (a
// SimpleString or BulkString) into a decoded Go value. It is never
// applied to Integer or Array replies, per spec.md §4.1.
type ParseFunc func([]byte) (interface{}, error)

// Val returns the natural decoded form of the reply: a string for simple
// strings and non-nil bulk strings, an int64 for integers, a []interface{}
// for arrays (recursively decoded), and nil for a nil bulk/array.
func (v Value) Val() interface{} {
	switch v.Kind {
	case SimpleString, Error:
		return v.Text
	case Integer:
		return v.Int
	case BulkString:
		if v.Null {
			return nil
		}
		return string(v.Bulk)
	case Array:
		if v.Null {
			return nil
		}
		out := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			out[i] = item.Val()
		}
		return out
	default:
		return nil
	}
}

// Bytes returns the raw, undecoded bytes of a bulk string reply. It is
// used when the server returns non-text data (spec.md §3, "buffer()
// accessor"). Calling it on a non-bulk Value returns nil.
func (v Value) Bytes() []byte {
	if v.Kind != BulkString {
		return nil
	}
	return v.Bulk
}

// IsNil reports whether the reply is a nil bulk string or nil array.
func (v Value) IsNil() bool {
	return v.Null && (v.Kind == BulkString || v.Kind == Array)
}

// IsError reports whether the reply is a RESP error frame.
func (v Value) IsError() bool {
	return v.Kind == Error
}

// AsError converts an Error-kind Value into an *ErrorReply. It panics if
// v is not an Error value; callers should check IsError first.
func (v Value) AsError() *ErrorReply {
	if v.Kind != Error {
		panic(fmt.Sprintf("resp: AsError called on non-error value (kind %d)", v.Kind))
	}
	return &ErrorReply{Text: v.Text}
}

func stringValue(text string) Value  { return Value{Kind: SimpleString, Text: text} }
func errorValue(text string) Value   { return Value{Kind: Error, Text: text} }
func integerValue(n int64) Value     { return Value{Kind: Integer, Int: n} }
func nilBulkValue() Value            { return Value{Kind: BulkString, Null: true} }
func bulkValue(b []byte) Value       { return Value{Kind: BulkString, Bulk: b} }
func nilArrayValue() Value           { return Value{Kind: Array, Null: true} }
func arrayValue(items []Value) Value { return Value{Kind: Array, Items: items} }
