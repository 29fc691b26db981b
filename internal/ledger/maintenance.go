package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"photosync/internal/fileutil"
)

const backupTimeLayout = "20060102T150405"

// Stats returns a count of rows grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM downloads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Purge deletes rows older than the retention horizon, optionally
// restricted to failed rows and to one album. The delete runs in a single
// transaction; either every matching row goes or none do. Returns the
// number of rows removed.
func (s *Store) Purge(ctx context.Context, olderThanDays int, onlyFailed bool, albumID string) (int64, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("retention days must not be negative: %d", olderThanDays)
	}
	ctx = ensureContext(ctx)
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timestampLayout)

	query := `DELETE FROM downloads WHERE updated_at < ?`
	args := []any{cutoff}
	if onlyFailed {
		query += ` AND status = ?`
		args = append(args, StatusFailed)
	}
	if albumID != "" {
		query += ` AND album_id = ?`
		args = append(args, albumID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge rows: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return deleted, nil
}

// Backup writes a point-in-time copy of the live database into the backup
// directory and returns its path. The copy is produced with VACUUM INTO so
// it is consistent even while transfers are writing.
func (s *Store) Backup(ctx context.Context) (string, error) {
	if s.backupDir == "" {
		return "", errors.New("backup directory is not configured")
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp := time.Now().UTC().Format(backupTimeLayout)
	name := fmt.Sprintf("ledger-%s.db", stamp)
	target := filepath.Join(s.backupDir, name)
	// Second-granularity stamps can collide with a snapshot taken moments
	// earlier; suffix until the name is free.
	for n := 2; ; n++ {
		if _, statErr := os.Stat(target); errors.Is(statErr, os.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("ledger-%s-%d.db", stamp, n)
		target = filepath.Join(s.backupDir, name)
	}

	if _, err := s.execWithRetry(ctx, `VACUUM INTO ?`, target); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("vacuum into backup: %w", err)
	}
	return target, nil
}

// ListBackups returns the backups on disk, newest first.
func (s *Store) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "ledger-") || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backup := BackupInfo{
			Name: name,
			Path: filepath.Join(s.backupDir, name),
			Size: info.Size(),
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, "ledger-"), ".db")
		if ts, parseErr := time.Parse(backupTimeLayout, stamp); parseErr == nil {
			backup.CreatedAt = ts
		} else {
			backup.CreatedAt = info.ModTime().UTC()
		}
		backups = append(backups, backup)
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Name > backups[j].Name })
	return backups, nil
}

// Restore replaces the live database with the named backup. The current
// database is snapshotted first so a bad restore is recoverable, and the
// store is reopened afterward even when the copy fails partway.
func (s *Store) Restore(ctx context.Context, backupPath string) (err error) {
	if _, statErr := os.Stat(backupPath); statErr != nil {
		return fmt.Errorf("backup unavailable: %w", statErr)
	}

	if _, snapErr := s.Backup(ctx); snapErr != nil {
		return fmt.Errorf("snapshot before restore: %w", snapErr)
	}

	if closeErr := s.db.Close(); closeErr != nil {
		return fmt.Errorf("close before restore: %w", closeErr)
	}

	defer func() {
		reopened, reopenErr := openAt(s.path, s.backupDir)
		if reopenErr != nil {
			if err == nil {
				err = fmt.Errorf("reopen after restore: %w", reopenErr)
			}
			return
		}
		s.db = reopened.db
	}()

	// WAL sidecars from the closed database would shadow the restored file.
	_ = os.Remove(s.path + "-wal")
	_ = os.Remove(s.path + "-shm")

	if copyErr := fileutil.CopyFileVerified(backupPath, s.path); copyErr != nil {
		return fmt.Errorf("restore ledger: %w", copyErr)
	}
	return nil
}
