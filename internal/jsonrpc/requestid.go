package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC ID: a string or an integer.
type RequestID struct {
	value any
}

// StringID returns a string ID.
func StringID(s string) *RequestID { return &RequestID{value: s} }

// IntID returns an integer ID.
func IntID(n int64) *RequestID { return &RequestID{value: n} }

func (id *RequestID) String() string {
	if id == nil {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// Equal reports whether two IDs carry the same value.
func (id *RequestID) Equal(other *RequestID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.value == other.value
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("jsonrpc: %w", err)
		}
		id.value = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		i, err := n.Int64()
		if err != nil {
			return fmt.Errorf("jsonrpc: non-integer id %s", data)
		}
		id.value = i
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string or number, got %s", data)
}
