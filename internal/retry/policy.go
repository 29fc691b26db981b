// Package retry wraps a single-asset transfer with bounded retries,
// exponential backoff with jitter, and cancellation-aware sleeps. The policy
// is side-effect free with respect to the resume ledger; the syncer records
// outcomes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"photosync/internal/api"
	"photosync/internal/cancel"
	"photosync/internal/ratelimit"
)

// Defaults and bounds for the per-asset policy.
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultMaxJitter   = 500 * time.Millisecond
	DefaultMaxAttempts = 3
	MaxAttemptsCeiling = 10
)

// Outcome is the terminal classification of one asset transfer.
type Outcome int

const (
	// Succeeded means the transfer completed.
	Succeeded Outcome = iota
	// Skipped means the asset was not attempted (declared size over the limit).
	Skipped
	// Failed means every permitted attempt failed; Result.Err holds the last error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports how a transfer ended.
type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

// FetchFunc transfers one asset's bytes to destPath.
type FetchFunc func(ctx context.Context, asset api.Asset, destPath string) error

// Policy drives retries for individual asset transfers. Sleep and jitter are
// injectable for tests.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxJitter      time.Duration
	AttemptTimeout time.Duration
	SizeLimit      int64 // bytes; 0 means unlimited

	Limiter *ratelimit.Limiter
	Token   *cancel.Token

	sleep  func(ctx context.Context, token *cancel.Token, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// New constructs a policy with defaults filled in and attempts clamped to the
// configured ceiling.
func New(maxAttempts int, attemptTimeout time.Duration, sizeLimit int64, limiter *ratelimit.Limiter, token *cancel.Token) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts > MaxAttemptsCeiling {
		maxAttempts = MaxAttemptsCeiling
	}
	return &Policy{
		MaxAttempts:    maxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		MaxJitter:      DefaultMaxJitter,
		AttemptTimeout: attemptTimeout,
		SizeLimit:      sizeLimit,
		Limiter:        limiter,
		Token:          token,
		sleep:          sleepWithCancel,
		jitter:         randomJitter,
	}
}

// WithSleeper overrides how backoff sleeps are performed (used in tests).
func (p *Policy) WithSleeper(sleep func(ctx context.Context, token *cancel.Token, d time.Duration) error) *Policy {
	p.sleep = sleep
	return p
}

// WithJitter overrides jitter generation (used in tests).
func (p *Policy) WithJitter(jitter func(max time.Duration) time.Duration) *Policy {
	p.jitter = jitter
	return p
}

// Run transfers one asset via fetch. It returns a terminal Result, or an
// error wrapping cancel.ErrCancelled when the run was cancelled before a
// terminal classification; cancellation is never reported as Failed.
func (p *Policy) Run(ctx context.Context, asset api.Asset, destPath string, fetch FetchFunc) (Result, error) {
	if fetch == nil {
		return Result{}, errors.New("retry: nil fetch")
	}
	if p.SizeLimit > 0 && asset.Size > p.SizeLimit {
		return Result{Outcome: Skipped}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := p.checkCancelled(ctx); err != nil {
			return Result{Attempts: attempt - 1}, err
		}
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return Result{Attempts: attempt - 1}, p.cancellationError(err)
			}
		}
		if err := p.checkCancelled(ctx); err != nil {
			return Result{Attempts: attempt - 1}, err
		}

		err := p.attempt(ctx, asset, destPath, fetch)
		if err == nil {
			return Result{Outcome: Succeeded, Attempts: attempt}, nil
		}
		if cancelErr := p.classifyCancellation(ctx, err); cancelErr != nil {
			return Result{Attempts: attempt}, cancelErr
		}
		lastErr = err

		if !api.IsRetryable(err) || attempt == p.MaxAttempts {
			return Result{Outcome: Failed, Attempts: attempt, Err: lastErr}, nil
		}

		delay := p.backoffDelay(attempt)
		if p.jitter != nil && p.MaxJitter > 0 {
			delay += p.jitter(p.MaxJitter)
		}
		if err := p.sleep(ctx, p.Token, delay); err != nil {
			return Result{Attempts: attempt}, p.cancellationError(err)
		}
	}

	// MaxAttempts == 0 after clamping cannot happen; loop always terminates
	// inside. Kept for completeness.
	return Result{Outcome: Failed, Err: lastErr}, nil
}

// attempt runs one fetch under the per-attempt deadline. The token is wired
// into the attempt context so a cancellation request aborts the in-flight
// transfer instead of waiting out the timeout.
func (p *Policy) attempt(ctx context.Context, asset api.Asset, destPath string, fetch FetchFunc) error {
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()
	if p.AttemptTimeout > 0 {
		var cancelFn context.CancelFunc
		attemptCtx, cancelFn = context.WithTimeout(attemptCtx, p.AttemptTimeout)
		defer cancelFn()
	}
	if p.Token != nil {
		unregister := p.Token.OnCancel(func(string) { cancelAttempt() })
		defer unregister()
	}
	return fetch(attemptCtx, asset, destPath)
}

func (p *Policy) checkCancelled(ctx context.Context) error {
	if p.Token != nil {
		if err := p.Token.Check(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", cancel.ErrCancelled, err)
	}
	return nil
}

// classifyCancellation maps fetch errors caused by a cancellation request to
// the distinguished cancellation error. A per-attempt deadline on its own is
// an ordinary retryable failure; it only counts as cancellation when the run
// itself was cancelled.
func (p *Policy) classifyCancellation(ctx context.Context, err error) error {
	if errors.Is(err, cancel.ErrCancelled) {
		return err
	}
	runCancelled := (p.Token != nil && p.Token.IsCancelled()) || ctx.Err() != nil
	if runCancelled && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %v", cancel.ErrCancelled, err)
	}
	if runCancelled {
		if cerr := p.checkCancelled(ctx); cerr != nil {
			return cerr
		}
	}
	return nil
}

func (p *Policy) cancellationError(err error) error {
	if errors.Is(err, cancel.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %v", cancel.ErrCancelled, err)
}

// backoffDelay returns min(base * 2^(attempt-1), cap) without jitter.
func (p *Policy) backoffDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func sleepWithCancel(ctx context.Context, token *cancel.Token, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	var done <-chan struct{}
	if token != nil {
		done = token.Done()
	}
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Check()
	}
}
