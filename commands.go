package redex

import (
	"strconv"

	"github.com/riftctl/redex/resp"
)

// This file is the illustrative command surface spec.md §6 calls for:
// thin, typed wrappers over Client.SendCommand. None of it is load-bearing
// protocol logic — it exists to show the Command/Value plumbing handling
// a realistic command set.

// Get returns the value of key and whether it was present. A missing key
// reports (nil, false, nil) rather than an error.
func (c *Client) Get(key string) ([]byte, bool, error) {
	value, err := c.SendCommand("GET", key)
	if err != nil {
		return nil, false, err
	}
	if value.IsNil() {
		return nil, false, nil
	}
	return value.Bytes(), true, nil
}

// Set stores val at key, overwriting any existing value.
func (c *Client) Set(key string, val interface{}) error {
	_, err := c.SendCommand("SET", key, val)
	return err
}

// SetNX stores val at key only if key does not already exist.
func (c *Client) SetNX(key string, val interface{}) (bool, error) {
	value, err := c.SendCommand("SETNX", key, val)
	if err != nil {
		return false, err
	}
	return value.Int == 1, nil
}

// SetEx stores val at key with a TTL of seconds.
func (c *Client) SetEx(key string, seconds int64, val interface{}) error {
	_, err := c.SendCommand("SETEX", key, seconds, val)
	return err
}

// PSetEx stores val at key with a TTL of millis.
func (c *Client) PSetEx(key string, millis int64, val interface{}) error {
	_, err := c.SendCommand("PSETEX", key, millis, val)
	return err
}

// Append appends val to the string at key, creating it if absent, and
// returns the resulting length.
func (c *Client) Append(key string, val interface{}) (int64, error) {
	return c.intReply("APPEND", key, val)
}

// GetSet atomically sets key to val and returns its previous value.
func (c *Client) GetSet(key string, val interface{}) ([]byte, bool, error) {
	value, err := c.SendCommand("GETSET", key, val)
	if err != nil {
		return nil, false, err
	}
	if value.IsNil() {
		return nil, false, nil
	}
	return value.Bytes(), true, nil
}

// GetRange returns the substring of the string at key between start and
// end (inclusive, 0-indexed, negative indices count from the end).
func (c *Client) GetRange(key string, start, end int64) ([]byte, error) {
	value, err := c.SendCommand("GETRANGE", key, start, end)
	if err != nil {
		return nil, err
	}
	return value.Bytes(), nil
}

// SetRange overwrites the string at key starting at offset and returns
// the resulting length.
func (c *Client) SetRange(key string, offset int64, val interface{}) (int64, error) {
	return c.intReply("SETRANGE", key, offset, val)
}

// StrLen returns the length of the string at key (0 if it doesn't exist).
func (c *Client) StrLen(key string) (int64, error) {
	return c.intReply("STRLEN", key)
}

// MGet returns one reply per key, in order; a missing key's reply is a
// nil bulk Value.
func (c *Client) MGet(keys ...string) ([]resp.Value, error) {
	value, err := c.SendCommand("MGET", stringArgs(keys)...)
	if err != nil {
		return nil, err
	}
	return value.Items, nil
}

// MSet stores every key/value pair in pairs atomically.
func (c *Client) MSet(pairs map[string]interface{}) error {
	_, err := c.SendCommand("MSET", flattenPairs(pairs)...)
	return err
}

// MSetNX stores every key/value pair in pairs only if none of the keys
// already exist.
func (c *Client) MSetNX(pairs map[string]interface{}) (bool, error) {
	value, err := c.SendCommand("MSETNX", flattenPairs(pairs)...)
	if err != nil {
		return false, err
	}
	return value.Int == 1, nil
}

// Incr increments the integer at key by one and returns the new value.
func (c *Client) Incr(key string) (int64, error) { return c.intReply("INCR", key) }

// Decr decrements the integer at key by one and returns the new value.
func (c *Client) Decr(key string) (int64, error) { return c.intReply("DECR", key) }

// IncrBy increments the integer at key by n and returns the new value.
func (c *Client) IncrBy(key string, n int64) (int64, error) { return c.intReply("INCRBY", key, n) }

// DecrBy decrements the integer at key by n and returns the new value.
func (c *Client) DecrBy(key string, n int64) (int64, error) { return c.intReply("DECRBY", key, n) }

// IncrByFloat increments the float at key by n and returns the new value.
// The server replies with a bulk string, so this parses it directly
// rather than routing it through Value.Int.
func (c *Client) IncrByFloat(key string, n float64) (float64, error) {
	value, err := c.SendCommand("INCRBYFLOAT", key, strconv.FormatFloat(n, 'f', -1, 64))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(string(value.Bytes()), 64)
}

// SetBit sets or clears the bit at offset in the string at key and
// returns the bit's previous value.
func (c *Client) SetBit(key string, offset int64, bit int) (int64, error) {
	return c.intReply("SETBIT", key, offset, bit)
}

// GetBit returns the bit at offset in the string at key.
func (c *Client) GetBit(key string, offset int64) (int64, error) {
	return c.intReply("GETBIT", key, offset)
}

// BitCount counts the number of set bits in the string at key.
func (c *Client) BitCount(key string) (int64, error) {
	return c.intReply("BITCOUNT", key)
}

// BitCountRange counts the number of set bits between the byte offsets
// start and end in the string at key.
func (c *Client) BitCountRange(key string, start, end int64) (int64, error) {
	return c.intReply("BITCOUNT", key, start, end)
}

// BitOp applies a bitwise operation (AND, OR, XOR, NOT) across srcKeys
// and stores the result at destKey, returning its length.
func (c *Client) BitOp(op, destKey string, srcKeys ...string) (int64, error) {
	args := append([]interface{}{op, destKey}, stringArgs(srcKeys)...)
	return c.intReply("BITOP", args...)
}

// BitPos returns the position of the first bit set to bit in the string
// at key.
func (c *Client) BitPos(key string, bit int) (int64, error) {
	return c.intReply("BITPOS", key, bit)
}

// BitField issues BITFIELD with the given raw sub-operation arguments
// (e.g. "GET", "u8", 0) and returns one reply per sub-operation.
func (c *Client) BitField(key string, ops ...interface{}) ([]resp.Value, error) {
	args := append([]interface{}{key}, ops...)
	value, err := c.SendCommand("BITFIELD", args...)
	if err != nil {
		return nil, err
	}
	return value.Items, nil
}

// Del removes the given keys and returns how many were actually removed.
func (c *Client) Del(keys ...string) (int64, error) {
	return c.intReply("DEL", stringArgs(keys)...)
}

// Exists returns how many of the given keys currently exist.
func (c *Client) Exists(keys ...string) (int64, error) {
	return c.intReply("EXISTS", stringArgs(keys)...)
}

// FlushDB removes every key in the currently selected database.
func (c *Client) FlushDB() error {
	_, err := c.SendCommand("FLUSHDB")
	return err
}

// Ping round-trips a PING, returning the server's reply text ("PONG" for
// a bare ping).
func (c *Client) Ping() (string, error) {
	value, err := c.SendCommand("PING")
	if err != nil {
		return "", err
	}
	return value.Text, nil
}

// Eval runs a Lua script with the given keys and extra arguments.
func (c *Client) Eval(script string, keys []string, args ...interface{}) (resp.Value, error) {
	cmdArgs := append([]interface{}{script, len(keys)}, stringArgs(keys)...)
	cmdArgs = append(cmdArgs, args...)
	return c.SendCommand("EVAL", cmdArgs...)
}

// Publish sends payload to channel and returns the number of subscribers
// that received it.
func (c *Client) Publish(channel string, payload interface{}) (int64, error) {
	return c.intReply("PUBLISH", channel, payload)
}

func (c *Client) intReply(name string, args ...interface{}) (int64, error) {
	value, err := c.SendCommand(name, args...)
	if err != nil {
		return 0, err
	}
	return value.Int, nil
}

func stringArgs(ss []string) []interface{} {
	args := make([]interface{}, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func flattenPairs(pairs map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		args = append(args, k, v)
	}
	return args
}
