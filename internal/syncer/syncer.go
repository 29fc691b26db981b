package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"photosync/internal/api"
	"photosync/internal/cancel"
	"photosync/internal/config"
	"photosync/internal/fileutil"
	"photosync/internal/ledger"
	"photosync/internal/logging"
	"photosync/internal/progress"
	"photosync/internal/ratelimit"
	"photosync/internal/retry"
)

// Syncer coordinates one sync run. A new Syncer carries a fresh run ID; the
// tracker and cancellation token are shared with the caller so signal
// handling and display live outside this package.
type Syncer struct {
	cfg     *config.Config
	client  api.Client
	store   *ledger.Store
	tracker *progress.Tracker
	token   *cancel.Token
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	runID   string

	// sleepOverride replaces backoff sleeps in tests.
	sleepOverride func(ctx context.Context, token *cancel.Token, d time.Duration) error
}

// New constructs a Syncer for one run.
func New(cfg *config.Config, client api.Client, store *ledger.Store, tracker *progress.Tracker, token *cancel.Token, logger *slog.Logger) *Syncer {
	runID := uuid.NewString()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Syncer{
		cfg:     cfg,
		client:  client,
		store:   store,
		tracker: tracker,
		token:   token,
		limiter: ratelimit.New(cfg.Sync.RateLimitRequests, time.Duration(cfg.Sync.RateLimitWindowMS)*time.Millisecond),
		logger: logging.NewComponentLogger(logger, "syncer").With(
			logging.String(logging.FieldRunID, runID)),
		runID: runID,
	}
}

// RunID identifies this sync run in logs and reports.
func (s *Syncer) RunID() string {
	return s.runID
}

// Run syncs every album matching the filter, sequentially. An empty filter
// selects all albums. Matching is by album ID or case-insensitive title.
// Cancellation stops between albums and propagates the reported error.
func (s *Syncer) Run(ctx context.Context, opts Options, albumFilter []string) ([]*Report, error) {
	albums, err := s.client.ListAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	albums = filterAlbums(albums, albumFilter)
	if len(albums) == 0 && len(albumFilter) > 0 {
		return nil, fmt.Errorf("no albums match %q", strings.Join(albumFilter, ", "))
	}

	var reports []*Report
	for _, album := range albums {
		if err := s.token.Check(); err != nil {
			return reports, err
		}
		report, err := s.SyncAlbum(ctx, album, opts)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// SyncAlbum downloads one album into its destination subdirectory. The
// returned report is non-nil whenever work was classified, including on
// cancellation; the error is non-nil for run-level failures and for
// cancellation (wrapping cancel.ErrCancelled).
func (s *Syncer) SyncAlbum(ctx context.Context, album api.Album, opts Options) (*Report, error) {
	opts.normalize()
	started := time.Now()
	logger := s.logger.With(logging.String(logging.FieldAlbumID, album.ID))

	dirName := fileutil.SafeFileName(album.Title, album.ID)
	albumDir, err := fileutil.EnsureWithin(s.cfg.Sync.DestinationDir, dirName)
	if err != nil {
		return nil, fmt.Errorf("album destination: %w", err)
	}
	if !opts.DryRun {
		if err := os.MkdirAll(albumDir, 0o755); err != nil {
			return nil, fmt.Errorf("create album dir: %w", err)
		}
	}

	assets, err := s.client.ListAssets(ctx, album.ID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	report := &Report{
		RunID:      s.runID,
		AlbumID:    album.ID,
		AlbumTitle: album.Title,
	}

	if opts.ResumeFailedOnly {
		failed, err := s.store.ListFailed(ctx, album.ID)
		if err != nil {
			return nil, fmt.Errorf("list failed entries: %w", err)
		}
		assets = filterAssets(assets, failed)
		if len(assets) == 0 {
			logger.Info("no previously failed assets to resume")
			report.Duration = time.Since(started)
			return report, nil
		}
	}

	var totalBytes int64
	for _, asset := range assets {
		totalBytes += asset.Size
	}

	s.tracker.Reset()
	s.tracker.Begin(len(assets), totalBytes)

	logger.Info("album sync started",
		logging.String("album", album.Title),
		logging.Int("assets", len(assets)),
		logging.Int64("declared_bytes", totalBytes),
		logging.Bool("dry_run", opts.DryRun))

	policy := retry.New(
		opts.MaxRetries,
		time.Duration(s.cfg.Server.RequestTimeout)*time.Second,
		opts.SizeLimitBytes,
		s.limiter,
		s.token,
	)
	if s.sleepOverride != nil {
		policy.WithSleeper(s.sleepOverride)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)

	for _, asset := range assets {
		if s.token.IsCancelled() {
			break
		}
		asset := asset
		group.Go(func() error {
			return s.processAsset(groupCtx, policy, album, albumDir, asset, opts, report, &mu, logger)
		})
	}

	runErr := group.Wait()
	s.tracker.Finish()

	snap := s.tracker.Snapshot()
	report.Counts = snap.Counts
	report.TransferredBytes = snap.TransferredBytes
	report.TotalBytes = snap.TotalBytes
	report.Duration = time.Since(started)

	if runErr != nil {
		if errors.Is(runErr, cancel.ErrCancelled) || errors.Is(runErr, context.Canceled) {
			report.Cancelled = true
			logger.Warn("album sync cancelled", logging.String("reason", s.token.Reason()))
			return report, runErr
		}
		return report, runErr
	}

	logger.Info("album sync finished",
		logging.Int("succeeded", report.Counts.Succeeded),
		logging.Int("skipped", report.Counts.Skipped),
		logging.Int("failed", report.Counts.Failed),
		logging.Int64("bytes", report.TransferredBytes),
		logging.Duration("elapsed", report.Duration))
	return report, nil
}

// processAsset runs one asset through its full lifecycle. Per-asset errors
// are converted into classifications; only cancellation is returned.
func (s *Syncer) processAsset(ctx context.Context, policy *retry.Policy, album api.Album, albumDir string, asset api.Asset, opts Options, report *Report, mu *sync.Mutex, logger *slog.Logger) error {
	if err := s.token.Check(); err != nil {
		return err
	}

	name := fileutil.SafeFileName(asset.Name, asset.ID)
	destPath, err := fileutil.EnsureWithin(albumDir, name)
	if err != nil {
		// Path traversal is fatal for the asset, never corrected.
		logger.Error("unsafe asset path rejected",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.Error(err))
		s.recordFailure(ctx, album, asset, report, mu, fmt.Sprintf("unsafe path: %v", err))
		s.tracker.Record(progress.Counts{Attempted: 1, Failed: 1}, 0)
		return nil
	}

	if !opts.Force && fileutil.FileMatches(destPath, asset.Checksum) {
		s.noteExistingFile(ctx, album, asset, albumDir, logger)
		s.tracker.Record(progress.Counts{Attempted: 1, Skipped: 1}, fileutil.FileSize(destPath))
		return nil
	}

	if opts.DryRun {
		logger.Info("dry run, would download",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.String("name", asset.Name))
		s.tracker.Record(progress.Counts{Attempted: 1, Succeeded: 1}, asset.Size)
		return nil
	}

	result, err := policy.Run(ctx, asset, destPath, s.client.Download)
	if err != nil {
		// Cancellation propagates without touching the ledger.
		return err
	}

	// Terminal outcomes record even when the run was cancelled while this
	// transfer was finishing; cancellation must not lose a completed item.
	recordCtx := context.WithoutCancel(ctx)

	switch result.Outcome {
	case retry.Succeeded:
		bytes := fileutil.FileSize(destPath)
		if bytes == 0 {
			bytes = asset.Size
		}
		if err := s.store.RecordDownloaded(recordCtx, asset.ID, album.ID, asset.Checksum, albumDir); err != nil {
			logger.Warn("ledger write failed, outcome not recorded",
				logging.String(logging.FieldAssetID, asset.ID),
				logging.Error(err))
		}
		if opts.Verbose {
			logger.Info("asset downloaded",
				logging.String(logging.FieldAssetID, asset.ID),
				logging.String("name", asset.Name),
				logging.Int64("bytes", bytes),
				logging.Int(logging.FieldAttempt, result.Attempts))
		}
		s.tracker.Record(progress.Counts{Attempted: 1, Succeeded: 1}, bytes)

	case retry.Skipped:
		if err := s.store.RecordSkipped(recordCtx, asset.ID, album.ID); err != nil {
			logger.Warn("ledger write failed, outcome not recorded",
				logging.String(logging.FieldAssetID, asset.ID),
				logging.Error(err))
		}
		logger.Info("asset over size limit, skipped",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.Int64("size", asset.Size))
		s.tracker.Record(progress.Counts{Attempted: 1, Skipped: 1}, asset.Size)

	case retry.Failed:
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}
		logger.Error("asset download failed",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.String("name", asset.Name),
			logging.Int(logging.FieldAttempt, result.Attempts),
			logging.Error(result.Err))
		s.recordFailure(recordCtx, album, asset, report, mu, errText)
		s.tracker.Record(progress.Counts{Attempted: 1, Failed: 1}, 0)
	}
	return nil
}

// noteExistingFile records a matching local file as downloaded when the
// ledger does not already say so. Ledger failures degrade to a warning; the
// asset is still classified as skipped.
func (s *Syncer) noteExistingFile(ctx context.Context, album api.Album, asset api.Asset, albumDir string, logger *slog.Logger) {
	known, err := s.store.IsDownloaded(ctx, asset.ID, album.ID, asset.Checksum, albumDir)
	if err != nil {
		logger.Warn("ledger lookup failed, assuming not recorded",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.Error(err))
	}
	if known {
		return
	}
	if err := s.store.RecordDownloaded(ctx, asset.ID, album.ID, asset.Checksum, albumDir); err != nil {
		logger.Warn("ledger write failed, outcome not recorded",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.Error(err))
	}
}

func (s *Syncer) recordFailure(ctx context.Context, album api.Album, asset api.Asset, report *Report, mu *sync.Mutex, errText string) {
	if err := s.store.RecordFailed(ctx, asset.ID, album.ID, errText); err != nil {
		s.logger.Warn("ledger write failed, outcome not recorded",
			logging.String(logging.FieldAssetID, asset.ID),
			logging.Error(err))
	}
	mu.Lock()
	report.addFailure(FailureDetail{AssetID: asset.ID, Name: asset.Name, Error: truncateError(errText)})
	mu.Unlock()
}

// truncateError bounds failure text in reports; the ledger applies its own
// sanitization independently.
func truncateError(text string) string {
	const maxLen = 200
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func filterAlbums(albums []api.Album, filter []string) []api.Album {
	if len(filter) == 0 {
		return albums
	}
	wanted := make(map[string]struct{}, len(filter))
	for _, f := range filter {
		wanted[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	var selected []api.Album
	for _, album := range albums {
		if _, ok := wanted[strings.ToLower(album.Title)]; ok {
			selected = append(selected, album)
			continue
		}
		if _, ok := wanted[strings.ToLower(album.ID)]; ok {
			selected = append(selected, album)
		}
	}
	return selected
}

func filterAssets(assets []api.Asset, ids []string) []api.Asset {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var selected []api.Asset
	for _, asset := range assets {
		if _, ok := wanted[asset.ID]; ok {
			selected = append(selected, asset)
		}
	}
	return selected
}
