package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cavaliercoder/grab"

	"photosync/internal/config"
)

const apiKeyHeader = "X-Api-Key"

// maxErrorBodyBytes bounds how much of an error response is kept for messages.
const maxErrorBodyBytes = 512

// Client lists albums and assets and fetches asset bytes from the remote
// library server.
type Client interface {
	ListAlbums(ctx context.Context) ([]Album, error)
	ListAssets(ctx context.Context, albumID string) ([]Asset, error)
	Download(ctx context.Context, asset Asset, destPath string) error
}

// HTTPClient talks to the remote library over its JSON API. Asset bytes are
// streamed to disk through grab so downloads honor context aborts.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	downloader *grab.Client
}

// NewClient constructs an HTTPClient from configuration.
func NewClient(cfg *config.Config) *HTTPClient {
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	grabClient := grab.NewClient()
	grabClient.UserAgent = "photosync"
	grabClient.HTTPClient = &http.Client{Timeout: timeout}
	return &HTTPClient{
		baseURL:    cfg.Server.URL,
		apiKey:     cfg.Server.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		downloader: grabClient,
	}
}

// ListAlbums fetches all albums visible to the API key.
func (c *HTTPClient) ListAlbums(ctx context.Context) ([]Album, error) {
	body, err := c.getJSON(ctx, "/api/albums")
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	albums, err := normalizeAlbums(body)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	return albums, nil
}

// ListAssets fetches the asset list for one album.
func (c *HTTPClient) ListAssets(ctx context.Context, albumID string) ([]Asset, error) {
	body, err := c.getJSON(ctx, "/api/albums/"+url.PathEscape(albumID))
	if err != nil {
		return nil, fmt.Errorf("list assets for album %s: %w", albumID, err)
	}
	assets, err := normalizeAssets(body, albumID)
	if err != nil {
		return nil, fmt.Errorf("list assets for album %s: %w", albumID, err)
	}
	return assets, nil
}

// Download streams the asset's original bytes to destPath. A failed or
// aborted transfer removes the partial file so it can never be mistaken for a
// completed download.
func (c *HTTPClient) Download(ctx context.Context, asset Asset, destPath string) error {
	endpoint := c.baseURL + "/api/assets/" + url.PathEscape(asset.ID) + "/original"
	req, err := grab.NewRequest(destPath, endpoint)
	if err != nil {
		return fmt.Errorf("download asset %s: %w", asset.ID, err)
	}
	req = req.WithContext(ctx)
	req.HTTPRequest.Header.Set(apiKeyHeader, c.apiKey)
	// Per-asset resume is out of scope; a retry restarts the transfer.
	req.NoResume = true

	resp := c.downloader.Do(req)
	if err := resp.Err(); err != nil {
		_ = os.Remove(destPath)
		if resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("download asset %s: %w", asset.ID, &StatusError{StatusCode: resp.HTTPResponse.StatusCode})
		}
		return fmt.Errorf("download asset %s: %w", asset.ID, err)
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return json.RawMessage(body), nil
}
