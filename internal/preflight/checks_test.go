package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"photosync/internal/api"
	"photosync/internal/config"
)

func testClient(url, key string) api.Client {
	cfg := config.Default()
	cfg.Server.URL = url
	cfg.Server.APIKey = key
	cfg.Server.RequestTimeout = 5
	return api.NewClient(&cfg)
}

func TestCheckDirectoryAccessOK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccessNotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccessNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpaceDisabled(t *testing.T) {
	result := CheckFreeSpace(t.TempDir(), 0)
	if !result.Passed {
		t.Fatalf("expected pass when disabled, got: %s", result.Detail)
	}
}

func TestCheckFreeSpaceImpossibleMinimum(t *testing.T) {
	// No filesystem holds an exabyte of free space.
	result := CheckFreeSpace(t.TempDir(), 1<<40)
	if result.Passed {
		t.Fatal("expected failure for impossible minimum")
	}
	if !strings.Contains(result.Detail, "required") {
		t.Fatalf("expected requirement in detail, got: %s", result.Detail)
	}
}

func TestCheckAPIOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	result := CheckAPI(context.Background(), testClient(srv.URL, "good-key"))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckAPIBadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckAPI(context.Background(), testClient(srv.URL, "bad-key"))
	if result.Passed {
		t.Fatal("expected failure for rejected key")
	}
	if !strings.Contains(result.Detail, "auth failed") {
		t.Fatalf("expected auth failure detail, got: %s", result.Detail)
	}
}
