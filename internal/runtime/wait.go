package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval bounds the time between two checks of a readiness condition
// when no file system event arrives.
var pollInterval = time.Second

// waitFor returns once ready reports true. ready is evaluated on every file
// system event in the directory of path, and at least every pollInterval.
func waitFor(ctx context.Context, path, what string, timeout time.Duration, ready func() bool) error {
	if ready() {
		return nil
	}

	var events <-chan fsnotify.Event
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(path)); err == nil {
			events = w.Events
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if ready() {
				return nil
			}
			return &ReadinessTimeoutError{What: what, Timeout: timeout}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
		case <-ticker.C:
		}
		if ready() {
			return nil
		}
	}
}

// WaitForMarker waits until the file at path contains one of markers.
func WaitForMarker(ctx context.Context, path string, markers []string, timeout time.Duration) error {
	what := fmt.Sprintf("%s (waiting for %q)", path, strings.Join(markers, "|"))
	return waitFor(ctx, path, what, timeout, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		for _, m := range markers {
			if bytes.Contains(data, []byte(m)) {
				return true
			}
		}
		return false
	})
}

// WaitForFile waits until path exists.
func WaitForFile(ctx context.Context, path string, timeout time.Duration) error {
	return waitFor(ctx, path, path, timeout, func() bool {
		_, err := os.Stat(path)
		return err == nil
	})
}

// SignalWaiter catches one signal delivered to the process.
type SignalWaiter struct {
	sig os.Signal
	ch  chan os.Signal
}

// NotifyOnSignal starts catching sig. Call it before starting the process
// that sends sig, then Wait.
func NotifyOnSignal(sig os.Signal) *SignalWaiter {
	w := &SignalWaiter{sig: sig, ch: make(chan os.Signal, 1)}
	signal.Notify(w.ch, sig)
	return w
}

// Wait waits for the signal, then stops catching it.
func (w *SignalWaiter) Wait(ctx context.Context, timeout time.Duration) error {
	defer w.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.ch:
		return nil
	case <-timer.C:
		return &ReadinessTimeoutError{What: "signal " + w.sig.String(), Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops catching the signal.
func (w *SignalWaiter) Stop() { signal.Stop(w.ch) }

// WaitForSignal waits for sig to be delivered to the process.
func WaitForSignal(ctx context.Context, sig os.Signal, timeout time.Duration) error {
	return NotifyOnSignal(sig).Wait(ctx, timeout)
}
