package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"

	"photosync/internal/config"
)

// maxErrorTextBytes bounds the stored error text for a failed asset.
const maxErrorTextBytes = 500

// Store manages download outcome persistence backed by SQLite.
type Store struct {
	db        *sql.DB
	path      string
	backupDir string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return openAt(cfg.LedgerPath(), cfg.BackupDir())
}

func openAt(dbPath, backupDir string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, backupDir: backupDir}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the on-disk location of the live database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IsDownloaded reports whether assetID has a downloaded row whose checksum
// and destination directory both match exactly. A missing row, a failed or
// skipped row, or any mismatch yields false.
func (s *Store) IsDownloaded(ctx context.Context, assetID, albumID, checksum, destDir string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM downloads
         WHERE asset_id = ? AND album_id = ? AND status = ? AND checksum = ? AND dest_dir = ?`,
		assetID, albumID, StatusDownloaded, checksum, destDir,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query downloaded: %w", err)
	}
	return count > 0, nil
}

// RecordDownloaded upserts a downloaded row for the asset, replacing any
// prior outcome and clearing stored error text.
func (s *Store) RecordDownloaded(ctx context.Context, assetID, albumID, checksum, destDir string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO downloads (asset_id, album_id, status, checksum, dest_dir, error_text, updated_at)
         VALUES (?, ?, ?, ?, ?, '', ?)
         ON CONFLICT(asset_id) DO UPDATE SET
             album_id = excluded.album_id,
             status = excluded.status,
             checksum = excluded.checksum,
             dest_dir = excluded.dest_dir,
             error_text = '',
             updated_at = excluded.updated_at`,
		assetID, albumID, StatusDownloaded, checksum, destDir, timestamp(),
	)
	if err != nil {
		return fmt.Errorf("record downloaded: %w", err)
	}
	return nil
}

// RecordFailed upserts a failed row for the asset with sanitized, truncated
// error text.
func (s *Store) RecordFailed(ctx context.Context, assetID, albumID, errorText string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO downloads (asset_id, album_id, status, checksum, dest_dir, error_text, updated_at)
         VALUES (?, ?, ?, '', '', ?, ?)
         ON CONFLICT(asset_id) DO UPDATE SET
             album_id = excluded.album_id,
             status = excluded.status,
             checksum = '',
             dest_dir = '',
             error_text = excluded.error_text,
             updated_at = excluded.updated_at`,
		assetID, albumID, StatusFailed, sanitizeErrorText(errorText), timestamp(),
	)
	if err != nil {
		return fmt.Errorf("record failed: %w", err)
	}
	return nil
}

// RecordSkipped marks an existing row as skipped. Assets skipped by the size
// ceiling never create a row on their own; only prior outcomes are updated.
func (s *Store) RecordSkipped(ctx context.Context, assetID, albumID string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE downloads SET status = ?, error_text = '', updated_at = ?
         WHERE asset_id = ? AND album_id = ?`,
		StatusSkipped, timestamp(), assetID, albumID,
	)
	if err != nil {
		return fmt.Errorf("record skipped: %w", err)
	}
	return nil
}

// ListFailed returns the asset IDs with a failed row for the album, most
// recently written first.
func (s *Store) ListFailed(ctx context.Context, albumID string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT asset_id FROM downloads
         WHERE album_id = ? AND status = ?
         ORDER BY updated_at DESC, rowid DESC`,
		albumID, StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get fetches the row for an asset, or nil when none exists.
func (s *Store) Get(ctx context.Context, assetID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT asset_id, album_id, status, checksum, dest_dir, error_text, updated_at
         FROM downloads WHERE asset_id = ?`,
		assetID,
	)

	var entry Entry
	var updatedAt string
	err := row.Scan(&entry.AssetID, &entry.AlbumID, &entry.Status, &entry.Checksum, &entry.DestDir, &entry.ErrorText, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		entry.UpdatedAt = ts
	}
	return &entry, nil
}

// timestampLayout is fixed-width so stored timestamps sort lexicographically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

// sanitizeErrorText replaces non-printable runes with spaces and truncates
// the result to maxErrorTextBytes at a rune boundary.
func sanitizeErrorText(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return ' '
	}, text)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) <= maxErrorTextBytes {
		return cleaned
	}
	cut := maxErrorTextBytes
	for cut > 0 && !utf8RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
