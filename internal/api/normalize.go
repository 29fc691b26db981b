package api

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Remote deployments disagree on field names for the same data. All shape
// probing happens here so the rest of the codebase only ever sees canonical
// Album and Asset records.

var titleCaser = cases.Title(language.English, cases.NoLower)

var (
	albumListKeys  = []string{"albums", "items", "data"}
	assetListKeys  = []string{"assets", "items", "media"}
	idKeys         = []string{"id", "assetId", "uuid"}
	albumTitleKeys = []string{"albumName", "title", "name"}
	assetNameKeys  = []string{"originalFileName", "fileName", "filename", "name", "title"}
	sizeKeys       = []string{"size", "fileSizeInByte", "fileSize", "bytes", "exifImageFileSize"}
	checksumKeys   = []string{"checksum", "sha256", "hash", "digest"}
	assetCountKeys = []string{"assetCount", "itemCount", "count"}
)

func normalizeAlbums(raw json.RawMessage) ([]Album, error) {
	records, err := decodeList(raw, albumListKeys)
	if err != nil {
		return nil, err
	}
	albums := make([]Album, 0, len(records))
	for _, record := range records {
		id := stringField(record, idKeys)
		if id == "" {
			continue
		}
		title := strings.TrimSpace(stringField(record, albumTitleKeys))
		if title == "" {
			title = "Album " + id
		} else if title == strings.ToLower(title) {
			// Some servers export titles lowercased; tidy them for display
			// and directory names.
			title = titleCaser.String(title)
		}
		albums = append(albums, Album{
			ID:         id,
			Title:      title,
			AssetCount: int(intField(record, assetCountKeys)),
		})
	}
	return albums, nil
}

func normalizeAssets(raw json.RawMessage, albumID string) ([]Asset, error) {
	records, err := decodeList(raw, assetListKeys)
	if err != nil {
		return nil, err
	}
	assets := make([]Asset, 0, len(records))
	for _, record := range records {
		id := stringField(record, idKeys)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(stringField(record, assetNameKeys))
		if name == "" {
			name = id
		}
		assets = append(assets, Asset{
			ID:       id,
			AlbumID:  albumID,
			Name:     name,
			Size:     intField(record, sizeKeys),
			Checksum: canonicalChecksum(stringField(record, checksumKeys)),
		})
	}
	return assets, nil
}

// decodeList accepts either a bare JSON array or an object wrapping the array
// under one of the candidate keys.
func decodeList(raw json.RawMessage, keys []string) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, key := range keys {
		inner, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &records); err != nil {
			return nil, fmt.Errorf("decode %q list: %w", key, err)
		}
		return records, nil
	}
	return nil, fmt.Errorf("response contains no recognized list field")
}

func stringField(record map[string]any, keys []string) string {
	for _, key := range keys {
		value, ok := record[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intField(record map[string]any, keys []string) int64 {
	for _, key := range keys {
		value, ok := record[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			if v > 0 {
				return int64(v)
			}
		case string:
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
				return parsed
			}
		}
	}
	return 0
}

// canonicalChecksum converts a remote digest to lowercase hex. Servers
// publish SHA-256 digests either hex- or base64-encoded; anything else is
// dropped rather than stored in an unknown encoding.
func canonicalChecksum(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) == 64 {
		if _, err := hex.DecodeString(value); err == nil {
			return strings.ToLower(value)
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == 32 {
		return hex.EncodeToString(decoded)
	}
	return ""
}
