// Package record provides the ordered record type flowing from sources into
// the normalizer.
//
// Field order matters: the normalizer processes fields in the order the source
// delivered them, and output column order is derived from it. Go maps do not
// preserve insertion order, so Record keeps an explicit key sequence next to
// the value map.
package record

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Record is a string-keyed mapping that preserves insertion order.
//
// Values are JSON-shaped: scalars (string, json.Number, bool, nil), nested
// *Record objects, and []any arrays.
type Record struct {
	keys []string
	vals map[string]any
}

// New returns an empty Record.
func New() *Record {
	return &Record{vals: make(map[string]any)}
}

// FromPairs builds a Record from alternating key/value arguments.
// Intended for tests and small fixtures; panics on an odd argument count.
func FromPairs(pairs ...any) *Record {
	if len(pairs)%2 != 0 {
		panic("record: FromPairs requires an even number of arguments")
	}
	r := New()
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1])
	}
	return r
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the field names in insertion order.
// The returned slice is owned by the Record; callers must not mutate it.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return r.keys
}

// Get returns the value for key and whether it is present.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.vals[key]
	return v, ok
}

// Set stores key=value. A new key is appended to the key order; an existing
// key keeps its position and only the value is replaced.
func (r *Record) Set(key string, value any) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = value
}

// CanonicalJSON encodes the record as canonical JSON: object keys sorted
// lexicographically at every nesting level, array order preserved, no
// insignificant whitespace.
//
// Two records with the same fields and values produce byte-identical output
// regardless of field order, which is what makes the surrogate-id digest
// deterministic.
func (r *Record) CanonicalJSON() []byte {
	var b strings.Builder
	writeCanonical(&b, r)
	return []byte(b.String())
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")

	case *Record:
		keys := append([]string(nil), t.keys...)
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalString(b, k)
			b.WriteByte(':')
			writeCanonical(b, t.vals[k])
		}
		b.WriteByte('}')

	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalString(b, k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')

	case []any:
		b.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, el)
		}
		b.WriteByte(']')

	case string:
		writeCanonicalString(b, t)

	case json.Number:
		b.WriteString(t.String())

	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	default:
		// Uncommon value types go through encoding/json (sorted-key for maps).
		enc, err := json.Marshal(t)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(enc)
	}
}

func writeCanonicalString(b *strings.Builder, s string) {
	enc, _ := json.Marshal(s)
	b.Write(enc)
}
