// Package progress aggregates transfer counts and bytes for a sync run and
// derives smoothed throughput and ETA figures for display.
package progress

import (
	"sync"
	"time"
)

// speedWindowSize bounds the rolling window of throughput samples used for
// smoothing; oldest samples are evicted first.
const speedWindowSize = 10

// DefaultMinInterval is the minimum spacing between rendered updates. The
// final update always renders.
const DefaultMinInterval = 100 * time.Millisecond

// Counts holds the per-classification totals for a run.
type Counts struct {
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
}

// Snapshot is one rendered progress observation.
type Snapshot struct {
	Counts           Counts
	TotalItems       int
	TransferredBytes int64
	TotalBytes       int64 // effective total: declared, or observed fallback
	TotalKnown       bool  // true when the total was declared up front
	Speed            float64
	ETA              time.Duration
	ETAKnown         bool
	Final            bool
}

// Sink receives rendered snapshots.
type Sink interface {
	Render(Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Snapshot)

func (f SinkFunc) Render(s Snapshot) { f(s) }

// Tracker is the shared progress state for one orchestrated run. Many
// transfer tasks update it concurrently; all state is guarded by a mutex.
type Tracker struct {
	mu sync.Mutex

	counts     Counts
	totalItems int

	transferred   int64
	declaredTotal int64
	observedTotal int64

	samples []float64

	lastRender time.Time
	lastBytes  int64
	lastSample time.Time

	minInterval time.Duration
	sink        Sink
	now         func() time.Time
}

// NewTracker constructs a tracker rendering to sink. A nil sink discards
// output; minInterval <= 0 uses the default.
func NewTracker(sink Sink, minInterval time.Duration) *Tracker {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Tracker{
		minInterval: minInterval,
		sink:        sink,
		now:         time.Now,
	}
}

// Begin seeds the tracker for a run: the number of items and the declared
// byte total (0 when the server does not report sizes).
func (t *Tracker) Begin(totalItems int, declaredBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = Counts{}
	t.totalItems = totalItems
	t.transferred = 0
	t.declaredTotal = declaredBytes
	t.observedTotal = 0
	t.samples = t.samples[:0]
	t.lastRender = time.Time{}
	t.lastBytes = 0
	t.lastSample = t.now()
}

// Record folds one terminal classification into the run state and renders a
// snapshot when the minimum interval has elapsed. bytes is the measured (or
// declared) size of the asset that just reached a terminal state.
func (t *Tracker) Record(counts Counts, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts.Attempted += counts.Attempted
	t.counts.Succeeded += counts.Succeeded
	t.counts.Skipped += counts.Skipped
	t.counts.Failed += counts.Failed
	if bytes > 0 {
		t.transferred += bytes
		// Observed fallback total: only consulted when nothing was declared,
		// so the declared figure never moves mid-run.
		t.observedTotal += bytes
	}

	now := t.now()
	t.sampleLocked(now)

	final := t.terminalCountLocked() >= t.totalItems && t.totalItems > 0
	if !final && !t.lastRender.IsZero() && now.Sub(t.lastRender) < t.minInterval {
		return
	}
	t.renderLocked(now, final)
}

// Finish forces a final render regardless of the rate limit.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renderLocked(t.now(), true)
}

// Reset clears all rolling state so the tracker can be reused for the next
// album.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = Counts{}
	t.totalItems = 0
	t.transferred = 0
	t.declaredTotal = 0
	t.observedTotal = 0
	t.samples = t.samples[:0]
	t.lastRender = time.Time{}
	t.lastBytes = 0
	t.lastSample = time.Time{}
}

// Snapshot returns the current state without rendering.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(false)
}

// sampleLocked appends an instantaneous throughput sample derived from the
// byte delta since the previous sample. Caller holds t.mu.
func (t *Tracker) sampleLocked(now time.Time) {
	if t.lastSample.IsZero() {
		t.lastSample = now
		t.lastBytes = t.transferred
		return
	}
	elapsed := now.Sub(t.lastSample).Seconds()
	if elapsed <= 0 {
		return
	}
	sample := float64(t.transferred-t.lastBytes) / elapsed
	t.lastSample = now
	t.lastBytes = t.transferred

	t.samples = append(t.samples, sample)
	if len(t.samples) > speedWindowSize {
		t.samples = t.samples[len(t.samples)-speedWindowSize:]
	}
}

func (t *Tracker) terminalCountLocked() int {
	return t.counts.Succeeded + t.counts.Skipped + t.counts.Failed
}

func (t *Tracker) snapshotLocked(final bool) Snapshot {
	total := t.declaredTotal
	known := total > 0
	if !known {
		total = t.observedTotal
	}

	transferred := t.transferred
	if total > 0 && transferred > total {
		transferred = total
	}

	var speed float64
	for _, s := range t.samples {
		speed += s
	}
	if len(t.samples) > 0 {
		speed /= float64(len(t.samples))
	}

	snap := Snapshot{
		Counts:           t.counts,
		TotalItems:       t.totalItems,
		TransferredBytes: transferred,
		TotalBytes:       total,
		TotalKnown:       known,
		Speed:            speed,
		Final:            final,
	}
	if known && speed > 0 && total > transferred {
		snap.ETA = time.Duration(float64(total-transferred) / speed * float64(time.Second))
		snap.ETAKnown = true
	}
	return snap
}

func (t *Tracker) renderLocked(now time.Time, final bool) {
	t.lastRender = now
	if t.sink == nil {
		return
	}
	t.sink.Render(t.snapshotLocked(final))
}
