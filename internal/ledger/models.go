package ledger

import "time"

// Status describes the recorded terminal outcome for an asset.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Entry is one persisted outcome row, keyed by asset ID.
type Entry struct {
	AssetID   string
	AlbumID   string
	Status    Status
	Checksum  string
	DestDir   string
	ErrorText string
	UpdatedAt time.Time
}

// BackupInfo describes one point-in-time ledger copy on disk.
type BackupInfo struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}
