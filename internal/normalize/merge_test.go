package normalize

import (
	"errors"
	"reflect"
	"testing"

	"tabular/internal/record"
)

func TestMerge_AppendsRowsInBatchOrder(t *testing.T) {
	a := mustTable(t, "users", []string{"id"}, true,
		record.FromPairs("id", "1"),
		record.FromPairs("id", "2"),
	)
	b := mustTable(t, "users", []string{"id"}, true,
		record.FromPairs("id", "3"),
	)

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	var ids []string
	for _, row := range merged.Rows {
		ids = append(ids, row["id"].(string))
	}
	if !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Fatalf("row order = %v", ids)
	}
}

func TestMerge_ExtendsColumnOrderWithUnseenColumns(t *testing.T) {
	a := mustTable(t, "users", []string{"id"}, true,
		record.FromPairs("id", "1", "b", "x"),
	)
	b := mustTable(t, "users", []string{"id"}, true,
		record.FromPairs("id", "2", "a", "y", "b", "z"),
	)

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := []string{"id", "b", "a"}
	if !reflect.DeepEqual(merged.Columns, want) {
		t.Fatalf("Columns = %v, want %v", merged.Columns, want)
	}
}

func TestMerge_UnionsChildrenAndDeleteValues(t *testing.T) {
	a := mustTable(t, "orders", []string{"id"}, true,
		record.FromPairs("id", "r1", "items", []any{record.FromPairs("sku", "a")}),
	)
	b := mustTable(t, "orders", []string{"id"}, true,
		record.FromPairs("id", "r2", "items", []any{record.FromPairs("sku", "b")}),
		record.FromPairs("id", "r3", "notes", []any{record.FromPairs("text", "n")}),
	)

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	wantNames := []string{"orders__items", "orders__notes"}
	if got := merged.ChildNames(); !reflect.DeepEqual(got, wantNames) {
		t.Fatalf("ChildNames = %v, want %v", got, wantNames)
	}

	items := merged.Children["orders__items"]
	if len(items.Rows) != 2 {
		t.Fatalf("items rows = %d, want 2", len(items.Rows))
	}
	if got := items.DeleteWhere.SortedValues(); !reflect.DeepEqual(got, []string{"r1", "r2"}) {
		t.Fatalf("items delete values = %v", got)
	}
}

func TestMerge_NameMismatch(t *testing.T) {
	a := mustTable(t, "users", []string{"id"}, true, record.FromPairs("id", "1"))
	b := mustTable(t, "orders", []string{"id"}, true, record.FromPairs("id", "1"))

	if _, err := Merge(a, b); !errors.Is(err, ErrTableMismatch) {
		t.Fatalf("got %v, want ErrTableMismatch", err)
	}
}

func TestMerge_IDColumnMismatch(t *testing.T) {
	a := mustTable(t, "users", []string{"id"}, true, record.FromPairs("id", "1"))
	b := mustTable(t, "users", []string{"uid"}, true, record.FromPairs("uid", "1"))

	if _, err := Merge(a, b); !errors.Is(err, ErrTableMismatch) {
		t.Fatalf("got %v, want ErrTableMismatch", err)
	}
}

func TestMerge_DeleteSpecConflict(t *testing.T) {
	a := mustTable(t, "users", []string{"id"}, true, record.FromPairs("id", "1"))
	b := mustTable(t, "users", []string{"id"}, true, record.FromPairs("id", "2"))
	a.DeleteWhere = &DeleteSpec{Column: "parent_id", Operator: DeleteOpEquals, Values: map[string]struct{}{"x": {}}}
	b.DeleteWhere = &DeleteSpec{Column: "owner_id", Operator: DeleteOpEquals, Values: map[string]struct{}{"y": {}}}

	if _, err := Merge(a, b); !errors.Is(err, ErrDeleteSpecConflict) {
		t.Fatalf("got %v, want ErrDeleteSpecConflict", err)
	}
}

func TestMerge_NilDeleteSpecPassthrough(t *testing.T) {
	a := mustTable(t, "users", []string{"id"}, true, record.FromPairs("id", "1"))
	b := mustTable(t, "users", []string{"id"}, true, record.FromPairs("id", "2"))
	b.DeleteWhere = &DeleteSpec{Column: "parent_id", Operator: DeleteOpEquals, Values: map[string]struct{}{"x": {}}}

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.DeleteWhere == nil || len(merged.DeleteWhere.Values) != 1 {
		t.Fatalf("DeleteWhere = %+v", merged.DeleteWhere)
	}
}
