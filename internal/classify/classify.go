// Package classify determines the structural category of a field value.
//
// Classification looks only at the value at hand. There is no declared
// schema, and the same field may legally change category from one record to
// the next.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"

	"tabular/internal/record"
)

// Category is the structural shape of a single field value.
type Category int

const (
	// Leaf is an indivisible scalar: string, number, bool, or null.
	Leaf Category = iota
	// Object is a string-keyed mapping, possibly nested.
	Object
	// LeafArray is an array whose elements are all leaves.
	LeafArray
	// ObjectArray is an array whose elements are all objects.
	ObjectArray
)

func (c Category) String() string {
	switch c {
	case Leaf:
		return "leaf"
	case Object:
		return "object"
	case LeafArray:
		return "leaf_array"
	case ObjectArray:
		return "object_array"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ErrUnclassifiable reports a value shape the normalizer cannot represent:
// an array mixing leaves and objects, an array of arrays, or a container
// type outside the JSON-shaped universe.
var ErrUnclassifiable = errors.New("unclassifiable value")

// Classify returns the Category of v.
//
// Errors wrap ErrUnclassifiable and are fatal for the record being processed;
// the caller does not recover partially flattened rows.
func Classify(v any) (Category, error) {
	switch t := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Leaf, nil

	case *record.Record:
		return Object, nil

	case map[string]any:
		return Object, nil

	case []any:
		return classifyArray(t)

	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrUnclassifiable, v)
	}
}

func classifyArray(arr []any) (Category, error) {
	// An empty array carries no element shape; it classifies as a leaf array
	// and, being falsy, is omitted from output rows anyway.
	if len(arr) == 0 {
		return LeafArray, nil
	}

	leaves, objects := 0, 0
	for _, el := range arr {
		cat, err := Classify(el)
		if err != nil {
			return 0, err
		}
		switch cat {
		case Leaf:
			leaves++
		case Object:
			objects++
		default:
			return 0, fmt.Errorf("%w: nested array element", ErrUnclassifiable)
		}
	}

	switch {
	case objects == 0:
		return LeafArray, nil
	case leaves == 0:
		return ObjectArray, nil
	default:
		return 0, fmt.Errorf("%w: array mixes %d leaves with %d objects", ErrUnclassifiable, leaves, objects)
	}
}

// IsFalsy reports whether v is a falsy value: null, false, a zero number, an
// empty string, or an empty container.
//
// Falsy fields are omitted from output rows entirely rather than stored as
// empty leaves. This mirrors long-standing extractor behavior that downstream
// consumers depend on; it is intentional, not a bug to fix here (zero and
// empty-string data never reach the output tables).
func IsFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case float32:
		return t == 0
	case *record.Record:
		return t.Len() == 0
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
