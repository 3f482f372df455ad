package config

import (
	"reflect"
	"testing"
)

func TestOptions_TypedAccessors(t *testing.T) {
	o := Options{
		"name":   "x",
		"flag":   true,
		"count":  float64(7), // JSON numbers decode as float64
		"whole":  3,
		"tags":   []any{"a", "b"},
		"labels": map[string]any{"k": "v", "n": float64(1)},
	}

	if got := o.String("name", "def"); got != "x" {
		t.Fatalf("String = %q", got)
	}
	if got := o.String("absent", "def"); got != "def" {
		t.Fatalf("String default = %q", got)
	}
	if !o.Bool("flag", false) {
		t.Fatal("Bool = false")
	}
	if got := o.Int("count", 0); got != 7 {
		t.Fatalf("Int(float64) = %d", got)
	}
	if got := o.Int("whole", 0); got != 3 {
		t.Fatalf("Int(int) = %d", got)
	}
	if got := o.Int("name", 9); got != 9 {
		t.Fatalf("Int wrong type = %d, want default", got)
	}
	if got := o.StringSlice("tags"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("StringSlice = %v", got)
	}
	want := map[string]string{"k": "v", "n": "1"}
	if got := o.StringMap("labels"); !reflect.DeepEqual(got, want) {
		t.Fatalf("StringMap = %v", got)
	}
}

func TestOptions_NilReceiverIsSafe(t *testing.T) {
	var o Options
	if o.Any("k") != nil {
		t.Fatal("Any on nil")
	}
	if o.String("k", "d") != "d" {
		t.Fatal("String on nil")
	}
	if o.Int("k", 4) != 4 {
		t.Fatal("Int on nil")
	}
}
