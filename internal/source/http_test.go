package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tabular/internal/config"
)

func TestHTTPSource_PaginatesUntilShortPage(t *testing.T) {
	pages := map[string]string{
		"1": `[{"id":1},{"id":2}]`,
		"2": `[{"id":3}]`,
	}
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if got := r.URL.Query().Get("per_page"); got != "2" {
			t.Errorf("per_page = %q, want 2", got)
		}
		fmt.Fprint(w, pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	t.Setenv("TEST_API_TOKEN", "sekrit")

	src, err := New("http", Params{
		Options: config.Options{
			"url":       srv.URL,
			"token_env": "TEST_API_TOKEN",
		},
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	ctx := context.Background()

	batch, err := src.Next(ctx)
	if err != nil || len(batch) != 2 {
		t.Fatalf("page 1 = %d records, err %v", len(batch), err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	// Short page: returned, then the stream ends.
	batch, err = src.Next(ctx)
	if err != nil || len(batch) != 1 {
		t.Fatalf("page 2 = %d records, err %v", len(batch), err)
	}
	if _, err = src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestHTTPSource_SendsSinceParam(t *testing.T) {
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("updated_since")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	src, err := New("http", Params{
		Options: config.Options{
			"url":         srv.URL,
			"since_param": "updated_since",
		},
		PageSize: 10,
		Since:    "2026-08-30T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("empty first page must end the stream, got %v", err)
	}
	if gotSince != "2026-08-30T00:00:00Z" {
		t.Fatalf("updated_since = %q", gotSince)
	}
}

func TestHTTPSource_NonSuccessStatusFailsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := New("http", Params{
		Options:  config.Options{"url": srv.URL},
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(context.Background()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestHTTPSource_MissingURLOption(t *testing.T) {
	if _, err := New("http", Params{Options: config.Options{}}); err == nil {
		t.Fatal("expected error for missing url")
	}
}
