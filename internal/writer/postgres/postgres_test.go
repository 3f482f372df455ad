package postgres

import (
	"reflect"
	"testing"

	"tabular/internal/normalize"
)

func TestBuildCreateSQL(t *testing.T) {
	got := buildCreateSQL("users", []string{"id", "full name"})
	want := `CREATE TABLE IF NOT EXISTS "users" ("id" TEXT, "full name" TEXT);`
	if got != want {
		t.Fatalf("buildCreateSQL = %s", got)
	}
}

func TestBuildDeleteSQL_SortedValuesAndNumberedPlaceholders(t *testing.T) {
	spec := &normalize.DeleteSpec{
		Column:   "parent_id",
		Operator: normalize.DeleteOpEquals,
		Values:   map[string]struct{}{"r2": {}, "r1": {}},
	}
	sql, args := buildDeleteSQL("orders__items", spec)

	wantSQL := `DELETE FROM "orders__items" WHERE "parent_id" IN ($1, $2);`
	if sql != wantSQL {
		t.Fatalf("sql = %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"r1", "r2"}) {
		t.Fatalf("args = %v (must be sorted for determinism)", args)
	}
}

func TestPGIdent_EscapesQuotes(t *testing.T) {
	if got := pgIdent(`wei"rd`); got != `"wei""rd"` {
		t.Fatalf("pgIdent = %s", got)
	}
}
