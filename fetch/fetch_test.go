package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/front.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpegbytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(srv.Client())
	dir := t.TempDir()

	path := filepath.Join(dir, "cams", "front-porch.jpg")
	if err := f.Fetch(context.Background(), srv.URL+"/front.jpg", path); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fetched file: %v", err)
	}
	if string(got) != "jpegbytes" {
		t.Errorf("file content = %q", got)
	}

	missing := filepath.Join(dir, "missing.jpg")
	if err := f.Fetch(context.Background(), srv.URL+"/nope.jpg", missing); err == nil {
		t.Error("Fetch() expected error on 404")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("file written despite failed fetch")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "cams"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in cams dir: %v", entries)
	}
}

func TestHTTPFetcher_KeepsOldFileOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "back-yard.jpg")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := New(srv.Client()).Fetch(context.Background(), srv.URL, path); err == nil {
		t.Fatal("Fetch() expected error on 503")
	}
	got, _ := os.ReadFile(path)
	if string(got) != "old" {
		t.Errorf("file content = %q, want old", got)
	}
}

func TestHTTPFetcher_BadURL(t *testing.T) {
	if err := New(nil).Fetch(context.Background(), "://bad", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("Fetch() expected error for malformed URL")
	}
}
