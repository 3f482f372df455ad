package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"tabular/internal/classify"
	"tabular/internal/record"
)

func mustTable(t *testing.T, name string, idCols []string, requireIDs bool, recs ...*record.Record) *Table {
	t.Helper()
	tbl, err := FromRecords(name, recs, idCols, requireIDs)
	if err != nil {
		t.Fatalf("FromRecords(%s): %v", name, err)
	}
	return tbl
}

func TestFromRecords_EmptyBatch(t *testing.T) {
	_, err := FromRecords("users", nil, []string{"id"}, false)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("got %v, want ErrEmptyBatch", err)
	}
}

func TestAddRow_FlattensNestedObjects(t *testing.T) {
	rec := record.FromPairs(
		"id", json.Number("1"),
		"addr", record.FromPairs(
			"city", "NY",
			"zip", record.FromPairs("code", "10001"),
		),
	)
	tbl := mustTable(t, "users", []string{"id"}, true, rec)

	if len(tbl.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(tbl.Rows))
	}
	row := tbl.Rows[0]
	if row["id"] != json.Number("1") {
		t.Fatalf("id = %#v", row["id"])
	}
	if row["addr_city"] != "NY" {
		t.Fatalf("addr_city = %#v", row["addr_city"])
	}
	if row["addr_zip_code"] != "10001" {
		t.Fatalf("addr_zip_code = %#v", row["addr_zip_code"])
	}

	want := []string{"id", "addr_city", "addr_zip_code"}
	if !reflect.DeepEqual(tbl.Columns, want) {
		t.Fatalf("Columns = %v, want %v", tbl.Columns, want)
	}
}

func TestAddRow_OmitsFalsyValues(t *testing.T) {
	rec := record.FromPairs(
		"id", json.Number("1"),
		"count", json.Number("0"),
		"name", "",
		"active", false,
		"note", nil,
		"tags", []any{},
	)
	tbl := mustTable(t, "users", []string{"id"}, true, rec)

	row := tbl.Rows[0]
	if len(row) != 1 {
		t.Fatalf("row = %v, want only id", row)
	}
	if !reflect.DeepEqual(tbl.Columns, []string{"id"}) {
		t.Fatalf("Columns = %v", tbl.Columns)
	}
}

func TestAddRow_LeafArraySerializesToJSON(t *testing.T) {
	rec := record.FromPairs(
		"id", json.Number("1"),
		"tags", []any{"a", "b", json.Number("3")},
	)
	tbl := mustTable(t, "users", []string{"id"}, true, rec)

	got, ok := tbl.Rows[0]["tags"].(string)
	if !ok {
		t.Fatalf("tags = %#v, want JSON string", tbl.Rows[0]["tags"])
	}
	if got != `["a","b",3]` {
		t.Fatalf("tags = %s", got)
	}
}

func TestAddRow_SpinsChildTableWithParentLinkage(t *testing.T) {
	recs := []*record.Record{
		record.FromPairs(
			"id", "r1",
			"items", []any{
				record.FromPairs("sku", "a"),
				record.FromPairs("sku", "b"),
			},
		),
		record.FromPairs(
			"id", "r2",
			"items", []any{
				record.FromPairs("sku", "c"),
			},
		),
	}
	tbl := mustTable(t, "orders", []string{"id"}, true, recs...)

	if got := tbl.ChildNames(); !reflect.DeepEqual(got, []string{"orders__items"}) {
		t.Fatalf("ChildNames = %v", got)
	}
	child := tbl.Children["orders__items"]

	if len(child.Rows) != 3 {
		t.Fatalf("child rows = %d, want 3", len(child.Rows))
	}
	if child.Rows[0]["parent_id"] != "r1" || child.Rows[1]["parent_id"] != "r1" {
		t.Fatalf("first two child rows must link to r1: %v", child.Rows[:2])
	}
	if child.Rows[2]["parent_id"] != "r2" {
		t.Fatalf("third child row = %v", child.Rows[2])
	}

	// Child rows get a surrogate id, placed first in column order.
	if child.Columns[0] != ComputedIDColumn {
		t.Fatalf("child Columns = %v, want computed_id first", child.Columns)
	}
	if child.Rows[0][ComputedIDColumn] == child.Rows[1][ComputedIDColumn] {
		t.Fatal("sibling rows with different content must get different surrogate ids")
	}

	// Delete spec covers every parent touched this run.
	if child.DeleteWhere == nil {
		t.Fatal("child must carry a delete spec")
	}
	if child.DeleteWhere.Column != ParentIDColumn || child.DeleteWhere.Operator != DeleteOpEquals {
		t.Fatalf("delete spec = %+v", child.DeleteWhere)
	}
	if got := child.DeleteWhere.SortedValues(); !reflect.DeepEqual(got, []string{"r1", "r2"}) {
		t.Fatalf("delete values = %v", got)
	}

	// The parent row must not contain the array column.
	if _, ok := tbl.Rows[0]["items"]; ok {
		t.Fatal("array column must not appear on the parent row")
	}
}

func TestAddRow_NestedObjectArraySpinsChildOfRootTable(t *testing.T) {
	rec := record.FromPairs(
		"id", "r1",
		"meta", record.FromPairs(
			"tags", []any{record.FromPairs("v", "x")},
		),
	)
	tbl := mustTable(t, "docs", []string{"id"}, true, rec)

	// The child takes its name from the flattened column path but hangs off
	// the root table, not off an intermediate.
	if got := tbl.ChildNames(); !reflect.DeepEqual(got, []string{"docs__meta_tags"}) {
		t.Fatalf("ChildNames = %v", got)
	}
	child := tbl.Children["docs__meta_tags"]
	if child.Rows[0]["parent_id"] != "r1" {
		t.Fatalf("child row = %v", child.Rows[0])
	}
}

func TestAddRow_MissingRequiredIdentifier(t *testing.T) {
	rec := record.FromPairs("name", "x")
	_, err := FromRecords("users", []*record.Record{rec}, []string{"id"}, true)
	if !errors.Is(err, ErrMissingIdentifier) {
		t.Fatalf("got %v, want ErrMissingIdentifier", err)
	}
}

func TestAddRow_MissingIdentifierFallsBackToSurrogate(t *testing.T) {
	rec := record.FromPairs("name", "x")
	tbl := mustTable(t, "users", []string{"id"}, false, rec)

	id, ok := tbl.Rows[0]["id"].(string)
	if !ok || len(id) != 64 {
		t.Fatalf("id = %#v, want 64-char hex digest", tbl.Rows[0]["id"])
	}
}

func TestAddRow_MixedArrayIsRecordFatal(t *testing.T) {
	rec := record.FromPairs(
		"id", "r1",
		"bad", []any{"leaf", record.FromPairs("a", "b")},
	)
	tbl := New("users", []string{"id"}, true)
	err := tbl.AddRow(rec)
	if !errors.Is(err, classify.ErrUnclassifiable) {
		t.Fatalf("got %v, want ErrUnclassifiable", err)
	}
	if len(tbl.Rows) != 0 {
		t.Fatalf("no partial row may be appended, got %v", tbl.Rows)
	}
}

func TestAddRow_MultipleIDColumnsJoinParentID(t *testing.T) {
	rec := record.FromPairs(
		"org", "acme",
		"id", json.Number("7"),
		"items", []any{record.FromPairs("sku", "a")},
	)
	tbl := mustTable(t, "orders", []string{"org", "id"}, true, rec)

	child := tbl.Children["orders__items"]
	if child.Rows[0]["parent_id"] != "acme_7" {
		t.Fatalf("parent_id = %v, want acme_7", child.Rows[0]["parent_id"])
	}
}

func TestSurrogateID_Deterministic(t *testing.T) {
	a := record.FromPairs("id", json.Number("7"), "name", "x")
	b := record.FromPairs("name", "x", "id", json.Number("7"))

	if SurrogateID(a) != SurrogateID(b) {
		t.Fatal("surrogate id must be independent of key order")
	}

	c := record.FromPairs("id", json.Number("8"), "name", "x")
	if SurrogateID(a) == SurrogateID(c) {
		t.Fatal("different content must produce different surrogate ids")
	}
}

func TestAddRow_IdempotentAcrossReruns(t *testing.T) {
	build := func() *Table {
		return mustTable(t, "users", nil, false, record.FromPairs(
			"name", "x",
			"items", []any{record.FromPairs("sku", "a")},
		))
	}
	a, b := build(), build()

	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Fatalf("rows differ across identical runs:\n%v\n%v", a.Rows, b.Rows)
	}
	if !reflect.DeepEqual(a.Children["users__items"].Rows, b.Children["users__items"].Rows) {
		t.Fatal("child rows differ across identical runs")
	}
}

func TestAddRow_ColumnOrderIsFirstSeenAcrossRows(t *testing.T) {
	tbl := mustTable(t, "users", []string{"id"}, true,
		record.FromPairs("id", "1", "b", "x"),
		record.FromPairs("id", "2", "a", "y", "b", "z"),
	)
	want := []string{"id", "b", "a"}
	if !reflect.DeepEqual(tbl.Columns, want) {
		t.Fatalf("Columns = %v, want %v", tbl.Columns, want)
	}
}
