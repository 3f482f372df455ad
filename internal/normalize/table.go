// Package normalize turns batches of nested, schema-less records into a
// forest of flat relational tables.
//
// One Table owns one logical output table: its flattened rows, the child
// tables spun off from array-of-object fields, and the delete specification
// that makes incremental child loads safe. Schema is discovered row by row;
// nothing is declared up front.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"tabular/internal/classify"
	"tabular/internal/record"
)

const (
	// subObjectSep joins nested object keys into flattened column names.
	subObjectSep = "_"
	// childTableSep joins a parent table name with the spawning field name.
	childTableSep = "__"

	// ComputedIDColumn is the surrogate identifier column used when no
	// natural key is configured.
	ComputedIDColumn = "computed_id"
	// ParentIDColumn links child-table rows back to their parent row.
	ParentIDColumn = "parent_id"

	// DeleteOpEquals is the only delete-spec operator produced by this
	// package: purge rows whose column equals any recorded value.
	DeleteOpEquals = "eq"
)

// Row is a flattened output row. Membership varies row to row; only columns
// with truthy source values are present.
type Row map[string]any

// DeleteSpec records which parent-id values were observed in the current run
// so the destination can purge stale child rows before inserting fresh ones
// (replace-children-of-touched-parents semantics).
type DeleteSpec struct {
	Column   string
	Operator string
	Values   map[string]struct{}
}

// SortedValues returns the recorded values in lexicographic order.
func (d *DeleteSpec) SortedValues() []string {
	out := make([]string, 0, len(d.Values))
	for v := range d.Values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Table accumulates the flattened rows of one logical table plus the child
// tables spun off while flattening.
//
// A Table lives for one run: it is built from batches, merged with later
// fragments, handed to a writer, and discarded. Only the column order
// survives between runs, via the external state store.
type Table struct {
	Name       string
	IDColumns  []string
	RequireIDs bool

	Rows     []Row
	Children map[string]*Table

	// DeleteWhere is set only on child tables.
	DeleteWhere *DeleteSpec

	// Columns is the first-seen column order across all rows.
	Columns []string

	colSeen map[string]struct{}
}

// New creates an empty Table.
//
// If idColumns is empty the table uses the surrogate ComputedIDColumn: each
// row gets a deterministic content-hash identifier. When idColumns are given
// and requireIDs is true, records missing an id column fail with
// ErrMissingIdentifier; when requireIDs is false they fall back to the
// surrogate digest.
func New(name string, idColumns []string, requireIDs bool) *Table {
	if len(idColumns) == 0 {
		idColumns = []string{ComputedIDColumn}
		requireIDs = false
	}
	return &Table{
		Name:       name,
		IDColumns:  append([]string(nil), idColumns...),
		RequireIDs: requireIDs,
		Children:   make(map[string]*Table),
		colSeen:    make(map[string]struct{}),
	}
}

// FromRecords builds an ephemeral Table from one batch of raw records.
//
// Errors:
//   - ErrEmptyBatch when recs is empty (callers treat it as a warning).
//   - Any AddRow failure, which aborts the batch.
func FromRecords(name string, recs []*record.Record, idColumns []string, requireIDs bool) (*Table, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("table %s: %w", name, ErrEmptyBatch)
	}
	t := New(name, idColumns, requireIDs)
	for _, rec := range recs {
		if err := t.AddRow(rec); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddRow flattens one raw record into the table.
//
// Identifier columns are processed first so that nested flattening of an
// id-bearing object assigns consistent prefixes; the remaining fields follow
// in the record's original order. Array-of-object fields create or extend
// child tables as a side effect.
//
// Errors:
//   - classify.ErrUnclassifiable for value shapes the model cannot represent;
//     fatal for this record, no partial row is appended.
//   - ErrMissingIdentifier when a required id column is absent.
func (t *Table) AddRow(rec *record.Record) error {
	row := make(Row, rec.Len()+1)

	var surrogate string
	idValue := func(col string) (any, error) {
		v, ok := rec.Get(col)
		if ok && v != nil {
			return v, nil
		}
		if t.RequireIDs {
			return nil, fmt.Errorf("table %s: %w: column %q", t.Name, ErrMissingIdentifier, col)
		}
		if surrogate == "" {
			surrogate = SurrogateID(rec)
		}
		return surrogate, nil
	}

	for _, col := range t.IDColumns {
		v, err := idValue(col)
		if err != nil {
			return err
		}
		if err := t.addValue(col, v, row); err != nil {
			return err
		}
	}

	for _, key := range rec.Keys() {
		if t.isIDColumn(key) {
			continue
		}
		v, _ := rec.Get(key)
		if err := t.addValue(key, v, row); err != nil {
			return err
		}
	}

	t.Rows = append(t.Rows, row)
	return nil
}

// SurrogateID computes a deterministic content-hash identifier for a record:
// the hex SHA-256 digest of its canonical (sorted-key) JSON form. Two records
// with the same keys and values produce the same id regardless of key order.
// Hash collisions are accepted, not detected.
func SurrogateID(rec *record.Record) string {
	sum := sha256.Sum256(rec.CanonicalJSON())
	return hex.EncodeToString(sum[:])
}

func (t *Table) isIDColumn(name string) bool {
	for _, c := range t.IDColumns {
		if c == name {
			return true
		}
	}
	return false
}

// addValue dispatches one field into the row under construction.
//
// Falsy values (null, false, zero, empty string, empty container) are
// omitted entirely, see classify.IsFalsy.
func (t *Table) addValue(column string, v any, row Row) error {
	if classify.IsFalsy(v) {
		return nil
	}

	cat, err := classify.Classify(v)
	if err != nil {
		return fmt.Errorf("table %s: column %q: %w", t.Name, column, err)
	}

	switch cat {
	case classify.Leaf:
		row[column] = v
		t.markColumn(column)

	case classify.Object:
		// Flatten nested objects into underscore-joined columns, then re-feed
		// each flattened value through this dispatch: a nested array-of-objects
		// still spins a child table of THIS table, named from the flattened
		// column path.
		for _, f := range flattenObject(v, column) {
			if err := t.addValue(f.key, f.val, row); err != nil {
				return err
			}
		}

	case classify.LeafArray:
		enc, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("table %s: column %q: encode leaf array: %w", t.Name, column, err)
		}
		row[column] = string(enc)
		t.markColumn(column)

	case classify.ObjectArray:
		return t.spinChild(column, v.([]any), row)
	}

	return nil
}

// spinChild routes an array-of-objects field into the child table
// "<table>__<column>", creating it on first sight. The parent row's
// identifier is injected into every element under ParentIDColumn and recorded
// in the child's delete spec.
func (t *Table) spinChild(column string, elements []any, row Row) error {
	name := t.Name + childTableSep + column
	child := t.Children[name]
	if child == nil {
		child = New(name, nil, false)
		child.DeleteWhere = &DeleteSpec{
			Column:   ParentIDColumn,
			Operator: DeleteOpEquals,
			Values:   make(map[string]struct{}),
		}
		t.Children[name] = child
	}

	parentID := t.parentIDFrom(row)

	for _, el := range elements {
		rec, err := asRecord(el)
		if err != nil {
			return fmt.Errorf("table %s: column %q: %w", t.Name, column, err)
		}
		rec.Set(ParentIDColumn, parentID)
		if err := child.AddRow(rec); err != nil {
			return err
		}
		child.DeleteWhere.Values[parentID] = struct{}{}
	}

	return nil
}

// parentIDFrom reads the row's identifier value(s). Multiple id columns are
// joined with "_" into one linkage value.
func (t *Table) parentIDFrom(row Row) string {
	if len(t.IDColumns) == 1 {
		return LeafString(row[t.IDColumns[0]])
	}
	parts := make([]string, len(t.IDColumns))
	for i, c := range t.IDColumns {
		parts[i] = LeafString(row[c])
	}
	joined := parts[0]
	for _, p := range parts[1:] {
		joined += subObjectSep + p
	}
	return joined
}

func (t *Table) markColumn(name string) {
	if _, ok := t.colSeen[name]; ok {
		return
	}
	t.colSeen[name] = struct{}{}
	t.Columns = append(t.Columns, name)
}

// ChildNames returns the child table names in lexicographic order.
func (t *Table) ChildNames() []string {
	out := make([]string, 0, len(t.Children))
	for name := range t.Children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type flatField struct {
	key string
	val any
}

// flattenObject inlines nested objects into underscore-joined keys, leaving
// arrays and scalars in place for the caller to re-dispatch. Ordered records
// flatten in field order; plain maps (from non-JSON sources) flatten in
// sorted key order for determinism.
func flattenObject(v any, parentKey string) []flatField {
	var out []flatField
	appendField := func(key string, val any) {
		full := parentKey + subObjectSep + key
		if isObject(val) {
			out = append(out, flattenObject(val, full)...)
			return
		}
		out = append(out, flatField{key: full, val: val})
	}

	switch obj := v.(type) {
	case *record.Record:
		for _, k := range obj.Keys() {
			val, _ := obj.Get(k)
			appendField(k, val)
		}
	case map[string]any:
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			appendField(k, obj[k])
		}
	}

	return out
}

func isObject(v any) bool {
	switch v.(type) {
	case *record.Record, map[string]any:
		return true
	default:
		return false
	}
}

// asRecord coerces an array element into an ordered record. Plain maps are
// converted with sorted keys.
func asRecord(el any) (*record.Record, error) {
	switch t := el.(type) {
	case *record.Record:
		return t, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := record.New()
		for _, k := range keys {
			rec.Set(k, t[k])
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: array element %T is not an object", classify.ErrUnclassifiable, el)
	}
}
