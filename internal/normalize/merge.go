package normalize

import "fmt"

// Merge combines two fragments of the same logical table observed in
// different batches, returning the combined table.
//
// Semantics:
//   - Rows: a's rows then b's rows. Batch arrival order IS the table's row
//     order; nothing is resorted.
//   - Children: union by name; names present in both merge recursively.
//   - DeleteSpec: union of value sets, after asserting column/operator
//     identity.
//   - Column order: a's first-seen order, extended with b's unseen columns.
//
// Column-name compatibility across fragments is deliberately NOT asserted:
// rows may carry different key sets, and reconciling that is the writer's
// job.
//
// Merge mutates a and returns it; b must not be used afterwards. Merges are
// order-sensitive (rows, delete values) and must be applied in batch-sequence
// order behind a single accumulator.
//
// Errors:
//   - ErrTableMismatch when names or id columns differ.
//   - ErrDeleteSpecConflict when both fragments carry delete specs targeting
//     different columns or operators.
func Merge(a, b *Table) (*Table, error) {
	if a.Name != b.Name {
		return nil, fmt.Errorf("%w: %q vs %q", ErrTableMismatch, a.Name, b.Name)
	}
	if !sameIDColumns(a.IDColumns, b.IDColumns) {
		return nil, fmt.Errorf("%w: table %s id columns %v vs %v",
			ErrTableMismatch, a.Name, a.IDColumns, b.IDColumns)
	}

	a.Rows = append(a.Rows, b.Rows...)

	for _, col := range b.Columns {
		a.markColumn(col)
	}

	for _, name := range b.ChildNames() {
		bc := b.Children[name]
		ac, ok := a.Children[name]
		if !ok {
			a.Children[name] = bc
			continue
		}
		merged, err := Merge(ac, bc)
		if err != nil {
			return nil, err
		}
		a.Children[name] = merged
	}

	spec, err := mergeDeleteSpecs(a.Name, a.DeleteWhere, b.DeleteWhere)
	if err != nil {
		return nil, err
	}
	a.DeleteWhere = spec

	return a, nil
}

func mergeDeleteSpecs(table string, a, b *DeleteSpec) (*DeleteSpec, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.Column != b.Column || a.Operator != b.Operator {
		return nil, fmt.Errorf("%w: table %s: %s %s vs %s %s",
			ErrDeleteSpecConflict, table, a.Column, a.Operator, b.Column, b.Operator)
	}
	for v := range b.Values {
		a.Values[v] = struct{}{}
	}
	return a, nil
}

func sameIDColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
