package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunRequestPrintsIndentedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("select") != "id,name" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("Prefer") != "count=exact" {
			t.Errorf("missing Prefer header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"a"}]`))
	}))
	defer srv.Close()
	t.Setenv("PORTALDB_BASE_URL", srv.URL)

	var out bytes.Buffer
	err := run([]string{"request", "GET", "/items", "-q", "select=id,name", "-H", "Prefer=count=exact"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "[\n  {\n    \"id\": 1,\n    \"name\": \"a\"\n  }\n]\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRunRequestReadsBodyFileAndFailsOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"duplicate key"}`))
	}))
	defer srv.Close()
	t.Setenv("PORTALDB_BASE_URL", srv.URL)

	bodyFile := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(bodyFile, []byte(`{"name":"a"}`), 0o644); err != nil {
		t.Fatalf("write body: %v", err)
	}

	var out bytes.Buffer
	err := run([]string{"request", "POST", "/items", "--body", "@" + bodyFile}, &out)
	if err == nil || !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "duplicate key") {
		t.Fatalf("expected 409 error with detail, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be printed on failure, got %q", out.String())
	}
}

func TestRunRequestRejectsMalformedQuery(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"request", "GET", "/items", "-q", "novalue"}, &out); err == nil {
		t.Fatalf("expected error for malformed query")
	}
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"version"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Fatalf("expected a version string")
	}
}
