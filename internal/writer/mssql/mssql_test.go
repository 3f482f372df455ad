package mssql

import (
	"reflect"
	"testing"

	"tabular/internal/normalize"
)

func TestBuildInsertSQL_PlaceholderNumberingSpansRows(t *testing.T) {
	rows := [][]any{
		{"1", "a"},
		{"2", "b"},
	}
	sql, args := buildInsertSQL("users", []string{"id", "name"}, rows)

	wantSQL := "INSERT INTO [users] ([id], [name]) VALUES (@p1, @p2), (@p3, @p4);"
	if sql != wantSQL {
		t.Fatalf("sql = %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"1", "a", "2", "b"}) {
		t.Fatalf("args = %v", args)
	}
}

func TestBuildDeleteSQL(t *testing.T) {
	spec := &normalize.DeleteSpec{
		Column:   "parent_id",
		Operator: normalize.DeleteOpEquals,
		Values:   map[string]struct{}{"b": {}, "a": {}},
	}
	sql, args := buildDeleteSQL("orders__items", spec)

	wantSQL := "DELETE FROM [orders__items] WHERE [parent_id] IN (@p1, @p2);"
	if sql != wantSQL {
		t.Fatalf("sql = %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"a", "b"}) {
		t.Fatalf("args = %v", args)
	}
}

func TestBracketIdent_EscapesClosingBracket(t *testing.T) {
	if got := bracketIdent("odd]name"); got != "[odd]]name]" {
		t.Fatalf("bracketIdent = %s", got)
	}
}
