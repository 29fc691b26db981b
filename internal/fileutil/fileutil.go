// Package fileutil provides filesystem helpers shared by the syncer and the
// ledger: content digests, path containment checks, filename sanitization,
// and verified copies.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DigestFile returns the hex-encoded SHA-256 digest of the file at path.
func DigestFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileMatches reports whether path exists as a regular file with positive
// size and, when checksum is non-empty, a matching SHA-256 digest. Any stat
// or read failure counts as a mismatch.
func FileMatches(path, checksum string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() <= 0 {
		return false
	}
	if checksum == "" {
		return true
	}
	digest, err := DigestFile(path)
	if err != nil {
		return false
	}
	return strings.EqualFold(digest, checksum)
}

// EnsureWithin resolves candidate against root and verifies the result stays
// inside root. It returns the cleaned absolute path or an error describing the
// traversal attempt.
func EnsureWithin(root, candidate string) (string, error) {
	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	resolved := candidate
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(absRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("resolve %q against %q: %w", candidate, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q", candidate, root)
	}
	return resolved, nil
}

// safeNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var safeNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SafeFileName replaces filesystem-unsafe characters in a filename. Slashes,
// backslashes, colons, and asterisks become dashes; other unsafe characters
// are removed. Leading dots are stripped so names cannot hide or traverse.
// Returns fallback when nothing printable remains.
func SafeFileName(name, fallback string) string {
	name = strings.TrimSpace(safeNameReplacer.Replace(strings.TrimSpace(name)))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return fallback
	}
	return name
}

// CopyFileVerified streams src to dst with SHA-256 and size verification.
// Removes dst on mismatch so a failed copy never looks like a success.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !strings.EqualFold(hex.EncodeToString(srcHasher.Sum(nil)), hex.EncodeToString(dstHasher.Sum(nil))) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// FileSize returns the size of path, or 0 when it cannot be measured.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
