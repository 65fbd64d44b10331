package lttng

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lttng/lttng-ivc/internal/runtime"
)

const loop = "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n"

// stubPath installs executable scripts named after the keys of scripts in
// a directory put first in PATH.
func stubPath(t *testing.T, scripts map[string]string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
	dir := t.TempDir()
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func newRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.New(filepath.Join(t.TempDir(), "rt"), runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestSpawnSessiond(t *testing.T) {
	stubPath(t, map[string]string{
		"lttng-sessiond": "echo \"$@\" > \"$LTTNG_HOME/sessiond.args\"\nkill -USR1 $PPID\n" + loop,
	})
	rt := newRuntime(t)

	h, err := SpawnSessiond(context.Background(), rt, "--extra")
	if err != nil {
		t.Fatalf("SpawnSessiond: %v", err)
	}
	args, err := os.ReadFile(filepath.Join(rt.Home(), "sessiond.args"))
	if err != nil {
		t.Fatal(err)
	}
	got := strings.TrimSpace(string(args))
	if !strings.HasPrefix(got, "-vvv --verbose-consumer -S --agent-tcp-port ") || !strings.HasSuffix(got, " --extra") {
		t.Errorf("sessiond args = %q", got)
	}
	if _, err := rt.Terminate(h, 10*time.Second, true); err != nil {
		t.Errorf("Terminate: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSpawnSessiondTimeout(t *testing.T) {
	stubPath(t, map[string]string{"lttng-sessiond": loop})
	old := ReadyTimeout
	ReadyTimeout = 300 * time.Millisecond
	t.Cleanup(func() { ReadyTimeout = old })

	rt := newRuntime(t)
	_, err := SpawnSessiond(context.Background(), rt)
	var timeout *runtime.ReadinessTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("SpawnSessiond() = %v, want *ReadinessTimeoutError", err)
	}
}

func TestSpawnRelayd(t *testing.T) {
	stubPath(t, map[string]string{
		"lttng-relayd": "echo \"$@\" > \"$LTTNG_HOME/relayd.args\"\nsleep 0.2\necho '" + RelaydReadyCue + "' >&2\n" + loop,
	})
	rt := newRuntime(t)

	r, err := SpawnRelayd(context.Background(), rt, "localhost")
	if err != nil {
		t.Fatalf("SpawnRelayd: %v", err)
	}
	if r.Ctrl == r.Data || r.Data == r.Live || r.Ctrl == r.Live {
		t.Errorf("ports are not distinct: %+v", r)
	}
	args, err := os.ReadFile(filepath.Join(rt.Home(), "relayd.args"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-vvv", "-D tcp://localhost:", "-C tcp://localhost:", "-L tcp://localhost:"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("relayd args %q miss %q", args, want)
		}
	}
}

func TestTestModule(t *testing.T) {
	calls := filepath.Join(t.TempDir(), "modprobe.calls")
	stubPath(t, map[string]string{"modprobe": "echo \"$@\" >> '" + calls + "'\n"})
	rt := newRuntime(t)

	if err := LoadTestModule(context.Background(), rt); err != nil {
		t.Fatalf("LoadTestModule: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || lines[0] != "lttng-test" || !strings.HasPrefix(lines[1], "-r --remove-dependencies lttng-test ") {
		t.Errorf("modprobe calls = %q", lines)
	}
}

func TestFreePorts(t *testing.T) {
	ports, err := FreePorts(5)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int]bool)
	for _, p := range ports {
		if p <= 0 || seen[p] {
			t.Errorf("bad port list %v", ports)
		}
		seen[p] = true
	}
}
