package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LeafString produces a stable string form of a leaf value, used for
// delete-spec value sets and injected parent identifiers.
//
// Hot-path rules:
//   - Avoid fmt.Sprint for common primitive types (it allocates heavily).
//   - json.Number keeps its literal form, so integer ids survive untouched.
//   - Treat nil as "".
func LeafString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""

	case string:
		return t

	case json.Number:
		return t.String()

	case bool:
		if t {
			return "true"
		}
		return "false"

	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)

	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)

	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)

	default:
		return fmt.Sprint(v)
	}
}
