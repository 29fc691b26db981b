package syncer

import (
	"time"

	"photosync/internal/progress"
)

// maxFailureDetails bounds how many failed assets a report lists
// individually; the remainder is summarized as a count.
const maxFailureDetails = 20

// FailureDetail identifies one failed asset with enough context for a
// resume-only rerun.
type FailureDetail struct {
	AssetID string
	Name    string
	Error   string
}

// Report summarizes one album sync.
type Report struct {
	RunID      string
	AlbumID    string
	AlbumTitle string

	Counts           progress.Counts
	TransferredBytes int64
	TotalBytes       int64

	Failures     []FailureDetail
	MoreFailures int // failures beyond the listed ones

	Cancelled bool
	Duration  time.Duration
}

// addFailure appends a failure detail, summarizing overflow beyond the
// listing bound. Caller holds the report's owning mutex.
func (r *Report) addFailure(detail FailureDetail) {
	if len(r.Failures) >= maxFailureDetails {
		r.MoreFailures++
		return
	}
	r.Failures = append(r.Failures, detail)
}
