// Package cancel implements the cooperative cancellation token shared by a
// sync run. Cancellation is one-way: once requested it stays set for the rest
// of the run, and registered listeners are notified exactly once, in
// registration order.
package cancel

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCancelled marks failures caused by a cancellation request. Callers use
// errors.Is to tell cancellation apart from ordinary transfer failures.
var ErrCancelled = errors.New("operation cancelled")

type listener struct {
	id int
	fn func(reason string)
}

// Token carries the cancellation state for one run. The zero value is not
// usable; construct with New.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	reason    string
	done      chan struct{}
	listeners []listener
	nextID    int
}

// New returns an un-cancelled token.
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag, fixes the reason, and synchronously notifies all
// currently-registered listeners in registration order. Subsequent calls are
// no-ops and do not change the recorded reason.
func (t *Token) Cancel(reason string) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	notify := make([]listener, len(t.listeners))
	copy(notify, t.listeners)
	t.listeners = nil
	close(t.done)
	t.mu.Unlock()

	for _, l := range notify {
		l.fn(reason)
	}
}

// IsCancelled reports whether cancellation has been requested.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the reason recorded by the first Cancel call, or "" when the
// token is not cancelled.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Check returns an error wrapping ErrCancelled when cancellation has been
// requested, and nil otherwise.
func (t *Token) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelled {
		return nil
	}
	if t.reason == "" {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %s", ErrCancelled, t.reason)
}

// Done returns a channel closed when cancellation is requested, for use in
// select-based waits.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to be invoked once when cancellation is requested.
// If the token is already cancelled, fn runs immediately. The returned
// function removes the listener; calling it after notification is a no-op.
func (t *Token) OnCancel(fn func(reason string)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.cancelled {
		reason := t.reason
		t.mu.Unlock()
		fn(reason)
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}
