package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

// Value kinds. KindRecord only exists so nested records can be reached with
// dotted field keys; it never takes part in search, filtering or ordering.
const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindList
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is a single field value of a Record. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	list []Value
	rec  Record
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time returns a timestamp Value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// List returns an ordered list Value.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Nested wraps a record so it can be reached through dotted keys.
func Nested(r Record) Value {
	if r == nil {
		return Null()
	}
	return Value{kind: KindRecord, rec: r}
}

// Kind returns the dynamic kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// BoolVal returns the boolean payload.
func (v Value) BoolVal() (bool, bool) { return v.b, v.kind == KindBool }

// TimeVal returns the timestamp payload.
func (v Value) TimeVal() (time.Time, bool) { return v.t, v.kind == KindTime }

// ListVal returns the list payload.
func (v Value) ListVal() ([]Value, bool) { return v.list, v.kind == KindList }

// RecordVal returns the nested record payload.
func (v Value) RecordVal() (Record, bool) { return v.rec, v.kind == KindRecord }

// Text returns the canonical textual form used for search and text filters:
// numbers in shortest base-10 form, booleans as "true"/"false", timestamps as
// RFC 3339 in UTC, lists joined with ", " and null as "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// Equal reports whether v and o hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		if len(v.rec) != len(o.rec) {
			return false
		}
		for k, a := range v.rec {
			b, ok := o.rec[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Coerce converts v to the target kind when a lossless textual conversion
// exists (for example the string "42" to the number 42). It reports false
// when no conversion applies.
func (v Value) Coerce(target Kind) (Value, bool) {
	if v.kind == target {
		return v, true
	}
	switch target {
	case KindString:
		switch v.kind {
		case KindNumber, KindBool, KindTime:
			return String(v.Text()), true
		}
	case KindNumber:
		if v.kind == KindString {
			f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
			if err == nil && !math.IsNaN(f) {
				return Number(f), true
			}
		}
	case KindBool:
		if v.kind == KindString {
			b, err := strconv.ParseBool(strings.TrimSpace(v.str))
			if err == nil {
				return Bool(b), true
			}
		}
	case KindTime:
		if v.kind == KindString {
			if t, ok := ParseTime(v.str); ok {
				return Time(t), true
			}
		}
	}
	return Null(), false
}

// timeLayouts lists the accepted textual timestamp forms, most precise first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTime parses an ISO 8601 timestamp or calendar date.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromAny converts a decoded JSON, YAML or SQL value into a Value. Unknown
// types fall back to their fmt representation as a string.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case time.Time:
		return Time(t)
	case *time.Time:
		if t == nil {
			return Null()
		}
		return Time(*t)
	case []Value:
		return List(t...)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...)
	case Record:
		return Nested(t)
	case map[string]any:
		return Nested(RecordFromMap(t))
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

// Interface returns v as a plain Go value suitable for encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindRecord:
		return v.rec.ToMap()
	default:
		return nil
	}
}

// MarshalJSON encodes v as its plain JSON value.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON value. Strings stay strings; callers that
// know a field is a timestamp type it through Coerce.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(normalizeJSON(raw))
	return nil
}

// normalizeJSON converts json.Number leaves inside nested containers.
func normalizeJSON(x any) any {
	switch t := x.(type) {
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item)
		}
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return x
	}
}
