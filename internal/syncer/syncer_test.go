package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"photosync/internal/api"
	"photosync/internal/cancel"
	"photosync/internal/config"
	"photosync/internal/ledger"
	"photosync/internal/logging"
	"photosync/internal/progress"
	"photosync/internal/testsupport"
)

type fakeClient struct {
	mu     sync.Mutex
	albums []api.Album
	assets map[string][]api.Asset

	// scripted errors per asset ID, consumed one per Download call
	failures map[string][]error
	calls    map[string]int

	onDownload func(asset api.Asset)
}

func (f *fakeClient) ListAlbums(context.Context) ([]api.Album, error) {
	return f.albums, nil
}

func (f *fakeClient) ListAssets(_ context.Context, albumID string) ([]api.Asset, error) {
	return f.assets[albumID], nil
}

func (f *fakeClient) Download(_ context.Context, asset api.Asset, destPath string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[asset.ID]++
	var scripted error
	if queue := f.failures[asset.ID]; len(queue) > 0 {
		scripted = queue[0]
		f.failures[asset.ID] = queue[1:]
	}
	hook := f.onDownload
	f.mu.Unlock()

	if hook != nil {
		hook(asset)
	}
	if scripted != nil {
		return scripted
	}
	return os.WriteFile(destPath, assetContent(asset.ID), 0o644)
}

func (f *fakeClient) callCount(assetID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[assetID]
}

func assetContent(assetID string) []byte {
	return []byte("content-" + assetID)
}

func makeAsset(id, albumID, name string, size int64) api.Asset {
	sum := sha256.Sum256(assetContent(id))
	return api.Asset{
		ID:       id,
		AlbumID:  albumID,
		Name:     name,
		Size:     size,
		Checksum: hex.EncodeToString(sum[:]),
	}
}

type fixture struct {
	cfg    *config.Config
	client *fakeClient
	store  *ledger.Store
	token  *cancel.Token
	syncer *Syncer
	album  api.Album
}

func newFixture(t *testing.T, assets []api.Asset) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Sync.DestinationDir, 0o755); err != nil {
		t.Fatalf("mkdir destination: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	album := api.Album{ID: "album-1", Title: "Vacation", AssetCount: len(assets)}
	client := &fakeClient{
		albums:   []api.Album{album},
		assets:   map[string][]api.Asset{album.ID: assets},
		failures: make(map[string][]error),
	}

	token := cancel.New()
	tracker := progress.NewTracker(nil, 0)
	s := New(cfg, client, store, tracker, token, logging.NewNop())
	s.sleepOverride = func(context.Context, *cancel.Token, time.Duration) error { return nil }

	return &fixture{cfg: cfg, client: client, store: store, token: token, syncer: s, album: album}
}

func (f *fixture) albumDir() string {
	return filepath.Join(f.cfg.Sync.DestinationDir, "Vacation")
}

func TestSyncAlbumDownloadsAllAssets(t *testing.T) {
	assets := []api.Asset{
		makeAsset("a1", "album-1", "one.jpg", 11),
		makeAsset("a2", "album-1", "two.jpg", 11),
		makeAsset("a3", "album-1", "three.jpg", 13),
	}
	f := newFixture(t, assets)

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, OptionsFromConfig(f.cfg))
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Succeeded != 3 || report.Counts.Failed != 0 || report.Counts.Skipped != 0 {
		t.Fatalf("unexpected counts: %+v", report.Counts)
	}

	for _, asset := range assets {
		path := filepath.Join(f.albumDir(), asset.Name)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s on disk: %v", asset.Name, err)
		}
		ok, err := f.store.IsDownloaded(context.Background(), asset.ID, "album-1", asset.Checksum, f.albumDir())
		if err != nil {
			t.Fatalf("IsDownloaded failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected ledger row for %s", asset.ID)
		}
	}
}

func TestSecondRunSkipsEverything(t *testing.T) {
	assets := []api.Asset{
		makeAsset("a1", "album-1", "one.jpg", 11),
		makeAsset("a2", "album-1", "two.jpg", 11),
	}
	f := newFixture(t, assets)
	opts := OptionsFromConfig(f.cfg)

	if _, err := f.syncer.SyncAlbum(context.Background(), f.album, opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if report.Counts.Skipped != 2 || report.Counts.Succeeded != 0 {
		t.Fatalf("expected all skipped on second run, got %+v", report.Counts)
	}
	for _, asset := range assets {
		if got := f.client.callCount(asset.ID); got != 1 {
			t.Fatalf("expected no re-download for %s, got %d calls", asset.ID, got)
		}
	}
}

func TestForceRedownloads(t *testing.T) {
	assets := []api.Asset{makeAsset("a1", "album-1", "one.jpg", 11)}
	f := newFixture(t, assets)
	opts := OptionsFromConfig(f.cfg)

	if _, err := f.syncer.SyncAlbum(context.Background(), f.album, opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	opts.Force = true
	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if report.Counts.Succeeded != 1 {
		t.Fatalf("expected forced re-download, got %+v", report.Counts)
	}
	if got := f.client.callCount("a1"); got != 2 {
		t.Fatalf("expected 2 downloads with force, got %d", got)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	assets := []api.Asset{
		makeAsset("a1", "album-1", "one.jpg", 11),
		makeAsset("a2", "album-1", "two.jpg", 11),
	}
	f := newFixture(t, assets)
	opts := OptionsFromConfig(f.cfg)
	opts.DryRun = true

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if report.Counts.Succeeded != 2 {
		t.Fatalf("expected simulated successes, got %+v", report.Counts)
	}
	if f.client.callCount("a1") != 0 || f.client.callCount("a2") != 0 {
		t.Fatal("expected no downloads in dry run")
	}
	if _, err := os.Stat(f.albumDir()); !os.IsNotExist(err) {
		t.Fatal("expected no album directory in dry run")
	}
	stats, err := f.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected empty ledger after dry run, got %v", stats)
	}
}

func TestSizeLimitSkipsWithoutNetworkCall(t *testing.T) {
	const mb = 1 << 20
	assets := []api.Asset{
		makeAsset("small", "album-1", "small.jpg", 1*mb),
		makeAsset("medium", "album-1", "medium.jpg", 2*mb),
		makeAsset("huge", "album-1", "huge.mov", 200*mb),
	}
	f := newFixture(t, assets)
	opts := OptionsFromConfig(f.cfg)
	opts.SizeLimitBytes = 50 * mb

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Succeeded != 2 || report.Counts.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", report.Counts)
	}
	if got := f.client.callCount("huge"); got != 0 {
		t.Fatalf("expected no network call for oversized asset, got %d", got)
	}

	// A size skip without prior history leaves no ledger row.
	entry, err := f.store.Get(context.Background(), "huge")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no ledger row for size skip, got %#v", entry)
	}
}

func TestFailTwiceThenSucceed(t *testing.T) {
	assets := []api.Asset{makeAsset("a1", "album-1", "one.jpg", 11)}
	f := newFixture(t, assets)
	f.client.failures["a1"] = []error{
		&api.StatusError{StatusCode: http.StatusInternalServerError},
		&api.StatusError{StatusCode: http.StatusServiceUnavailable},
	}

	opts := OptionsFromConfig(f.cfg)
	opts.MaxRetries = 3
	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Succeeded != 1 || report.Counts.Failed != 0 {
		t.Fatalf("expected success after retries, got %+v", report.Counts)
	}
	if got := f.client.callCount("a1"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	entry, err := f.store.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil || entry.Status != ledger.StatusDownloaded {
		t.Fatalf("expected downloaded ledger row, got %#v", entry)
	}
}

func TestPermanentFailureRecorded(t *testing.T) {
	assets := []api.Asset{
		makeAsset("a1", "album-1", "one.jpg", 11),
		makeAsset("a2", "album-1", "two.jpg", 11),
	}
	f := newFixture(t, assets)
	f.client.failures["a2"] = []error{&api.StatusError{StatusCode: http.StatusNotFound}}

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, OptionsFromConfig(f.cfg))
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Succeeded != 1 || report.Counts.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", report.Counts)
	}
	if len(report.Failures) != 1 || report.Failures[0].AssetID != "a2" {
		t.Fatalf("expected failure detail for a2, got %+v", report.Failures)
	}
	// 404 is a remote rejection; exactly one attempt.
	if got := f.client.callCount("a2"); got != 1 {
		t.Fatalf("expected single attempt for 404, got %d", got)
	}

	entry, err := f.store.Get(context.Background(), "a2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil || entry.Status != ledger.StatusFailed {
		t.Fatalf("expected failed ledger row, got %#v", entry)
	}
}

func TestResumeFailedOnlyWithNoFailures(t *testing.T) {
	assets := []api.Asset{makeAsset("a1", "album-1", "one.jpg", 11)}
	f := newFixture(t, assets)
	opts := OptionsFromConfig(f.cfg)
	opts.ResumeFailedOnly = true

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Attempted != 0 {
		t.Fatalf("expected empty run, got %+v", report.Counts)
	}
	if got := f.client.callCount("a1"); got != 0 {
		t.Fatalf("expected no downloads, got %d", got)
	}
}

func TestResumeFailedOnlyRetriesOnlyFailedAssets(t *testing.T) {
	assets := []api.Asset{
		makeAsset("good", "album-1", "good.jpg", 11),
		makeAsset("bad", "album-1", "bad.jpg", 11),
	}
	f := newFixture(t, assets)
	f.client.failures["bad"] = []error{&api.StatusError{StatusCode: http.StatusNotFound}}
	opts := OptionsFromConfig(f.cfg)

	if _, err := f.syncer.SyncAlbum(context.Background(), f.album, opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	opts.ResumeFailedOnly = true
	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if err != nil {
		t.Fatalf("resume run failed: %v", err)
	}
	if report.Counts.Attempted != 1 || report.Counts.Succeeded != 1 {
		t.Fatalf("expected only the failed asset retried, got %+v", report.Counts)
	}
	if got := f.client.callCount("bad"); got != 2 {
		t.Fatalf("expected retry of failed asset, got %d calls", got)
	}
	if got := f.client.callCount("good"); got != 1 {
		t.Fatalf("expected succeeded asset untouched, got %d calls", got)
	}
}

func TestCancellationStopsNewTransfers(t *testing.T) {
	var assets []api.Asset
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("a%d", i)
		assets = append(assets, makeAsset(id, "album-1", id+".jpg", 11))
	}
	f := newFixture(t, assets)
	// The first transfer cancels the run mid-flight and then fails; the
	// policy must classify that as cancellation, not an ordinary failure.
	f.client.failures["a0"] = []error{&api.StatusError{StatusCode: http.StatusInternalServerError}}
	f.client.onDownload = func(api.Asset) {
		f.token.Cancel("user interrupt")
	}

	opts := OptionsFromConfig(f.cfg)
	opts.Concurrency = 1
	report, err := f.syncer.SyncAlbum(context.Background(), f.album, opts)
	if !errors.Is(err, cancel.ErrCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	entry, gerr := f.store.Get(context.Background(), "a0")
	if gerr != nil {
		t.Fatalf("Get failed: %v", gerr)
	}
	if entry != nil {
		t.Fatalf("expected no ledger record for cancelled transfer, got %#v", entry)
	}
	if !f.token.IsCancelled() {
		t.Fatal("expected token cancelled")
	}
	if report == nil || !report.Cancelled {
		t.Fatalf("expected cancelled report, got %+v", report)
	}

	total := 0
	for _, asset := range assets {
		total += f.client.callCount(asset.ID)
	}
	if total > 2 {
		t.Fatalf("expected transfers to stop after cancellation, got %d calls", total)
	}
}

func TestCompletedTransferRecordedDespiteCancellation(t *testing.T) {
	f := newFixture(t, []api.Asset{makeAsset("a0", "album-1", "a0.jpg", 11)})

	// Cancellation lands while the transfer is finishing; the completed
	// outcome must still reach the ledger.
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	f.client.onDownload = func(api.Asset) {
		f.token.Cancel("user interrupt")
		cancelRun()
	}

	report, err := f.syncer.SyncAlbum(ctx, f.album, OptionsFromConfig(f.cfg))
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Succeeded != 1 {
		t.Fatalf("expected the finished transfer counted, got %+v", report.Counts)
	}

	entry, gerr := f.store.Get(context.Background(), "a0")
	if gerr != nil {
		t.Fatalf("Get failed: %v", gerr)
	}
	if entry == nil || entry.Status != ledger.StatusDownloaded {
		t.Fatalf("expected downloaded ledger record, got %#v", entry)
	}
}

func TestFailureListBounded(t *testing.T) {
	var assets []api.Asset
	f := newFixture(t, nil)
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("a%d", i)
		assets = append(assets, makeAsset(id, "album-1", id+".jpg", 11))
		f.client.failures[id] = []error{&api.StatusError{StatusCode: http.StatusNotFound}}
	}
	f.client.assets["album-1"] = assets

	report, err := f.syncer.SyncAlbum(context.Background(), f.album, OptionsFromConfig(f.cfg))
	if err != nil {
		t.Fatalf("SyncAlbum failed: %v", err)
	}
	if report.Counts.Failed != 25 {
		t.Fatalf("expected 25 failures, got %+v", report.Counts)
	}
	if len(report.Failures) != maxFailureDetails {
		t.Fatalf("expected %d listed failures, got %d", maxFailureDetails, len(report.Failures))
	}
	if report.MoreFailures != 5 {
		t.Fatalf("expected 5 overflow failures, got %d", report.MoreFailures)
	}
}

func TestRunFiltersAlbums(t *testing.T) {
	f := newFixture(t, []api.Asset{makeAsset("a1", "album-1", "one.jpg", 11)})
	f.client.albums = append(f.client.albums, api.Album{ID: "album-2", Title: "Archive"})
	f.client.assets["album-2"] = []api.Asset{makeAsset("b1", "album-2", "old.jpg", 11)}

	reports, err := f.syncer.Run(context.Background(), OptionsFromConfig(f.cfg), []string{"vacation"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(reports) != 1 || reports[0].AlbumID != "album-1" {
		t.Fatalf("expected only the matching album synced, got %+v", reports)
	}
	if got := f.client.callCount("b1"); got != 0 {
		t.Fatalf("expected filtered album untouched, got %d calls", got)
	}
}

func TestRunUnknownFilterFails(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.syncer.Run(context.Background(), OptionsFromConfig(f.cfg), []string{"nope"}); err == nil {
		t.Fatal("expected error for unknown album filter")
	}
}

func TestAcquireRunLockExcludesSecondHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	release, err := AcquireRunLock(cfg)
	if err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}
	defer release()

	if _, err := AcquireRunLock(cfg); err == nil {
		t.Fatal("expected second lock acquisition to fail")
	}

	release()
	release2, err := AcquireRunLock(cfg)
	if err != nil {
		t.Fatalf("expected lock reacquirable after release: %v", err)
	}
	release2()
}
