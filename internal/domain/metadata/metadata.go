package metadata

import (
	"strconv"
	"strings"
)

// Kind enumerates the supported metadata value types.
type Kind int

const (
	// KindString is a text value.
	KindString Kind = iota
	// KindNumber is a float64 value.
	KindNumber
	// KindBool is a boolean value.
	KindBool
)

// Value is a scalar metadata value (string, number, or bool).
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String creates a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueKind returns the value type.
func (v Value) ValueKind() Kind { return v.kind }

// Str returns the string payload (zero unless KindString).
func (v Value) Str() string { return v.str }

// Num returns the numeric payload (zero unless KindNumber).
func (v Value) Num() float64 { return v.num }

// Truth returns the boolean payload (false unless KindBool).
func (v Value) Truth() bool { return v.b }

// String renders the value in its canonical text form. Numbers use the
// shortest representation that round-trips; bools are "true"/"false".
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return v.str == o.str
	}
}

// Field is a single key-value pair.
type Field struct {
	Key   string
	Value Value
}

// Metadata is an ordered string-keyed map of scalar values. Key order is
// insertion order and is part of a document's identity (it feeds the stable
// content hash), so two metadata sets with the same pairs in different order
// hash differently.
type Metadata struct {
	fields []Field
}

// New creates metadata from ordered fields.
func New(fields ...Field) Metadata {
	m := Metadata{}
	for _, f := range fields {
		m.Set(f.Key, f.Value)
	}
	return m
}

// Set inserts or replaces a value. Replacement keeps the original position.
func (m *Metadata) Set(key string, v Value) {
	for i := range m.fields {
		if m.fields[i].Key == key {
			m.fields[i].Value = v
			return
		}
	}
	m.fields = append(m.fields, Field{Key: key, Value: v})
}

// Get returns the value for key.
func (m Metadata) Get(key string) (Value, bool) {
	for _, f := range m.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Keys returns keys in insertion order.
func (m Metadata) Keys() []string {
	keys := make([]string, len(m.fields))
	for i, f := range m.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the ordered key-value pairs.
func (m Metadata) Fields() []Field { return m.fields }

// Len returns the number of fields.
func (m Metadata) Len() int { return len(m.fields) }

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	c := Metadata{fields: make([]Field, len(m.fields))}
	copy(c.fields, m.fields)
	return c
}

// Canonical renders the metadata as a stable "key=value;" sequence with a
// one-letter kind tag per value. Used for content hashing.
func (m Metadata) Canonical() string {
	var sb strings.Builder
	for _, f := range m.fields {
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		switch f.Value.kind {
		case KindNumber:
			sb.WriteByte('n')
		case KindBool:
			sb.WriteByte('b')
		default:
			sb.WriteByte('s')
		}
		sb.WriteByte(':')
		sb.WriteString(f.Value.String())
		sb.WriteByte(';')
	}
	return sb.String()
}
