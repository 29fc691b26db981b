package api

// Album is a named group of assets on the remote server. Maps 1:1 to a
// destination subdirectory during sync.
type Album struct {
	ID         string
	Title      string
	AssetCount int
}

// Asset is one transferable unit belonging to an album. Size may be 0 when
// the server does not declare it; Checksum is a hex-encoded SHA-256 digest or
// empty when unknown. Immutable once listed for a run.
type Asset struct {
	ID       string
	AlbumID  string
	Name     string
	Size     int64
	Checksum string
}
