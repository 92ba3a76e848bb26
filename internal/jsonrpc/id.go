// Package jsonrpc models the slice of JSON-RPC 2.0 needed to correlate
// requests and responses flowing through the bridge: a closed id sum type
// and lightweight helpers for peeking at a message body without fully
// decoding it into a domain type.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// idKind enumerates the three JSON-RPC id variants a message may carry.
type idKind int

const (
	idNone idKind = iota
	idInt
	idFloat
	idString
)

// ID is a closed sum type over the three JSON-RPC id variants (integer,
// float, string). The zero value is the "no id" (notification) variant.
type ID struct {
	kind idKind
	i    int64
	f    float64
	s    string
}

// Int constructs an integer-variant id.
func Int(v int64) ID { return ID{kind: idInt, i: v} }

// Float constructs a float-variant id.
func Float(v float64) ID { return ID{kind: idFloat, f: v} }

// String constructs a string-variant id.
func String(v string) ID { return ID{kind: idString, s: v} }

// IsZero reports whether this is the "no id" variant (id absent, i.e. a
// JSON-RPC notification).
func (id ID) IsZero() bool { return id.kind == idNone }

// Equal reports whether two ids are equal: same variant and same value.
func Equal(a, b ID) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case idInt:
		return a.i == b.i
	case idFloat:
		return a.f == b.f
	case idString:
		return a.s == b.s
	default:
		return true // both idNone
	}
}

// String renders the id for logging; not used for wire encoding.
func (id ID) String() string {
	switch id.kind {
	case idInt:
		return fmt.Sprintf("%d", id.i)
	case idFloat:
		return fmt.Sprintf("%g", id.f)
	case idString:
		return id.s
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the id the way it was received: a bare number or a
// quoted string.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idInt:
		return json.Marshal(id.i)
	case idFloat:
		return json.Marshal(id.f)
	case idString:
		return json.Marshal(id.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare number or string into the matching variant.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = String(s)
		return nil
	}

	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		// Only treat as integer if re-encoding matches (no fractional part).
		if f, ferr := parseExactFloat(data); ferr == nil && f == float64(i) {
			*id = Int(i)
			return nil
		}
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("jsonrpc: invalid id %s: %w", data, err)
	}
	*id = Float(f)
	return nil
}

func parseExactFloat(data []byte) (float64, error) {
	var f float64
	err := json.Unmarshal(data, &f)
	return f, err
}
