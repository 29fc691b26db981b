package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"photosync/internal/api"
	"photosync/internal/config"
)

func newClient(t *testing.T, handler http.Handler) *api.HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Server.URL = server.URL
	cfg.Server.APIKey = "test-key"
	cfg.Server.RequestTimeout = 5
	return api.NewClient(&cfg)
}

func TestListAlbumsSendsAPIKey(t *testing.T) {
	var gotKey string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a1","albumName":"Holiday 2025","assetCount":12}]`))
	}))

	albums, err := client.ListAlbums(context.Background())
	if err != nil {
		t.Fatalf("ListAlbums failed: %v", err)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if len(albums) != 1 || albums[0].ID != "a1" || albums[0].Title != "Holiday 2025" || albums[0].AssetCount != 12 {
		t.Fatalf("unexpected albums %+v", albums)
	}
}

func TestListAssetsNormalizesShapes(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/albums/a1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a1","assets":[
			{"id":"x1","originalFileName":"IMG_001.jpg","fileSizeInByte":1024,
			 "checksum":"LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ="},
			{"assetId":"x2","name":"IMG_002.jpg","size":"2048",
			 "sha256":"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"}
		]}`))
	}))

	assets, err := client.ListAssets(context.Background(), "a1")
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	first := assets[0]
	if first.ID != "x1" || first.Name != "IMG_001.jpg" || first.Size != 1024 {
		t.Fatalf("unexpected first asset %+v", first)
	}
	// Base64 digests are canonicalized to hex at the boundary.
	if first.Checksum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("expected hex checksum, got %q", first.Checksum)
	}
	second := assets[1]
	if second.ID != "x2" || second.Size != 2048 || second.AlbumID != "a1" {
		t.Fatalf("unexpected second asset %+v", second)
	}
	if second.Checksum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("expected hex checksum preserved, got %q", second.Checksum)
	}
}

func TestListAlbumsSurfacesStatusError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))

	_, err := client.ListAlbums(context.Background())
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}

func TestDownloadWritesFile(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/assets/x1/original" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image-bytes"))
	}))

	dest := filepath.Join(t.TempDir(), "IMG_001.jpg")
	err := client.Download(context.Background(), api.Asset{ID: "x1"}, dest)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("unexpected downloaded contents %q err %v", data, err)
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	dest := filepath.Join(t.TempDir(), "IMG_404.jpg")
	err := client.Download(context.Background(), api.Asset{ID: "x404"}, dest)
	if err == nil {
		t.Fatal("expected download error")
	}
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected no partial file, stat err %v", statErr)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rejected 404", &api.StatusError{StatusCode: 404}, false},
		{"rejected 403", &api.StatusError{StatusCode: 403}, false},
		{"timeout 408", &api.StatusError{StatusCode: 408}, true},
		{"throttled 429", &api.StatusError{StatusCode: 429}, true},
		{"server 500", &api.StatusError{StatusCode: 500}, true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unclassified", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := api.IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
