package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestWaitForMarker(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relayd.err")

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(path, []byte("starting\n"), 0o644)
		time.Sleep(100 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		f.WriteString("Listener accepting live viewers connections\n")
		f.Close()
	}()
	if err := WaitForMarker(ctx, path, []string{"never", "Listener accepting live viewers connections"}, 10*time.Second); err != nil {
		t.Fatalf("WaitForMarker: %v", err)
	}

	start := time.Now()
	err := WaitForMarker(ctx, path, []string{"never printed"}, 300*time.Millisecond)
	var timeout *ReadinessTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("WaitForMarker() = %v, want *ReadinessTimeoutError", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := WaitForMarker(cancelled, path, []string{"never printed"}, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForMarker(cancelled) = %v", err)
	}
}

func TestWaitForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ready")
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(path, nil, 0o644)
	}()
	if err := WaitForFile(context.Background(), path, 10*time.Second); err != nil {
		t.Fatalf("WaitForFile: %v", err)
	}

	var timeout *ReadinessTimeoutError
	missing := filepath.Join(t.TempDir(), "absent", "file")
	if err := WaitForFile(context.Background(), missing, 200*time.Millisecond); !errors.As(err, &timeout) {
		t.Errorf("WaitForFile(missing) = %v", err)
	}
}

func TestNotifyOnSignal(t *testing.T) {
	ctx := context.Background()
	wait := NotifyOnSignal(unix.SIGUSR1)
	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	if err := wait.Wait(ctx, 10*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var timeout *ReadinessTimeoutError
	if err := WaitForSignal(ctx, unix.SIGUSR2, 100*time.Millisecond); !errors.As(err, &timeout) {
		t.Errorf("WaitForSignal() = %v, want *ReadinessTimeoutError", err)
	}
}
