package record

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeAll reads all records from r.
//
// Accepted layouts:
//   - root array of objects: streams each element
//   - root object containing an array-of-objects field: streams the first such
//     array field (envelope pattern); remaining envelope fields are skipped
//   - root object with no array-of-objects field: one record
//   - JSONL: any of the above may be followed by further whitespace-separated
//     root objects
//
// Numbers decode as json.Number so integer identity survives the trip.
func DecodeAll(r io.Reader) ([]*Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out []*Record
	emit := func(rec *Record) { out = append(out, rec) }

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("json: read first token: %w", err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	switch d {
	case '[':
		if err := decodeArrayOfRecords(dec, emit); err != nil {
			return nil, err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}

	case '{':
		streamed, single, err := decodeEnvelopeOrSingle(dec, emit)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		if !streamed && single != nil {
			emit(single)
		}

	default:
		return nil, fmt.Errorf("json: unsupported root delimiter %q", d)
	}

	// Trailing JSONL objects.
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("json: read trailing token: %w", err)
		}
		if tok != json.Delim('{') {
			return nil, fmt.Errorf("json: expected trailing object, got %v", tok)
		}
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		emit(rec)
	}
}

// decodeArrayOfRecords decodes elements of the current array (after '[').
// Each element must be an object; nil elements are skipped.
func decodeArrayOfRecords(dec *json.Decoder, emit func(*Record)) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read array element: %w", err)
		}
		if tok == nil {
			continue
		}
		if tok != json.Delim('{') {
			return fmt.Errorf("json: array element not an object (got %v)", tok)
		}
		rec, err := decodeObject(dec)
		if err != nil {
			return err
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
		emit(rec)
	}
	return nil
}

// decodeEnvelopeOrSingle walks a root object (after '{'). The first field whose
// value is an array of objects is streamed and the remaining fields are
// skipped. If no such field exists, the whole object is returned as a single
// record.
func decodeEnvelopeOrSingle(dec *json.Decoder, emit func(*Record)) (streamed bool, single *Record, _ error) {
	single = New()

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("json: read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return false, nil, fmt.Errorf("json: object key not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("json: read object value token: %w", err)
		}

		if delim, ok := valTok.(json.Delim); ok && delim == '[' {
			// Peek the first element to decide envelope vs. plain array value.
			if !dec.More() {
				if err := expectDelim(dec, ']'); err != nil {
					return false, nil, err
				}
				single.Set(key, []any{})
				continue
			}
			first, err := dec.Token()
			if err != nil {
				return false, nil, fmt.Errorf("json: read array element token: %w", err)
			}
			if first == json.Delim('{') {
				rec, err := decodeObject(dec)
				if err != nil {
					return false, nil, err
				}
				if err := expectDelim(dec, '}'); err != nil {
					return false, nil, err
				}
				emit(rec)
				if err := decodeArrayOfRecords(dec, emit); err != nil {
					return false, nil, err
				}
				if err := expectDelim(dec, ']'); err != nil {
					return false, nil, err
				}
				// Skip the rest of the envelope fields without materializing.
				for dec.More() {
					if _, err := dec.Token(); err != nil {
						return true, nil, fmt.Errorf("json: skip envelope key: %w", err)
					}
					if err := skipValue(dec); err != nil {
						return true, nil, err
					}
				}
				return true, nil, nil
			}

			// Plain array value on a single record: materialize it.
			head, err := decodeValue(dec, first)
			if err != nil {
				return false, nil, err
			}
			arr := []any{head}
			for dec.More() {
				el, err := nextValue(dec)
				if err != nil {
					return false, nil, err
				}
				arr = append(arr, el)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return false, nil, err
			}
			single.Set(key, arr)
			continue
		}

		val, err := decodeValue(dec, valTok)
		if err != nil {
			return false, nil, err
		}
		single.Set(key, val)
	}

	return false, single, nil
}

// decodeObject builds an order-preserving Record for the current object
// (after '{' has been consumed, up to but not including '}').
func decodeObject(dec *json.Decoder) (*Record, error) {
	rec := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read nested object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("json: nested object key not string (got %T)", keyTok)
		}
		val, err := nextValue(dec)
		if err != nil {
			return nil, err
		}
		rec.Set(key, val)
	}
	return rec, nil
}

func nextValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json: read value token: %w", err)
	}
	return decodeValue(dec, tok)
}

// decodeValue builds a Go value from the current JSON value, given its first
// token. Objects become *Record (order preserved), arrays []any.
func decodeValue(dec *json.Decoder, tok any) (any, error) {
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '{':
			rec, err := decodeObject(dec)
			if err != nil {
				return nil, err
			}
			if err := expectDelim(dec, '}'); err != nil {
				return nil, err
			}
			return rec, nil

		case '[':
			arr := []any{}
			for dec.More() {
				el, err := nextValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, el)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return nil, err
			}
			return arr, nil

		default:
			return nil, fmt.Errorf("json: unexpected delimiter %q", d)
		}
	}
	return tok, nil
}

// skipValue consumes the next JSON value without materializing it.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: skip value token: %w", err)
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("json: skip object key: %w", err)
			}
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, '}')

	case '[':
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')

	default:
		return fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("json: expected %q, got %v", want, tok)
	}
	return nil
}
