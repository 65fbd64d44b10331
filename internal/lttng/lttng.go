// Package lttng starts the LTTng daemons inside a runtime and waits until
// they are ready, and gathers the small file helpers test bodies use.
package lttng

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lttng/lttng-ivc/internal/runtime"
)

// RelaydReadyCue is printed by a verbose relay daemon once it accepts live
// viewers. The relay daemon has no -S option.
const RelaydReadyCue = "Listener accepting live viewers connections"

// ReadyTimeout bounds the wait for a daemon to become ready.
var ReadyTimeout = 60 * time.Second

// testModules are unloaded together with lttng-test.
var testModules = []string{
	"lttng-test",
	"lttng-statedump",
	"lttng_wrapper",
	"lttng_kprobes",
	"lttng_clock",
	"lttng_uprobes",
	"lttng_lib_ring_buffer",
	"lttng_kretprobes",
}

// SpawnSessiond starts a session daemon and waits for the SIGUSR1 it sends
// its parent once ready. extraArgs are appended to the command line.
func SpawnSessiond(ctx context.Context, rt *runtime.Runtime, extraArgs ...string) (runtime.Handle, error) {
	port, err := FreePort()
	if err != nil {
		return "", err
	}
	cmd := fmt.Sprintf("lttng-sessiond -vvv --verbose-consumer -S --agent-tcp-port %d", port)
	if len(extraArgs) > 0 {
		cmd += " " + strings.Join(extraArgs, " ")
	}

	ready := runtime.NotifyOnSignal(unix.SIGUSR1)
	h, err := rt.Spawn(ctx, cmd)
	if err != nil {
		ready.Stop()
		return "", err
	}
	if err := ready.Wait(ctx, ReadyTimeout); err != nil {
		return h, fmt.Errorf("lttng-sessiond: %w", err)
	}
	return h, nil
}

// Relayd is a running relay daemon and the ports it listens on.
type Relayd struct {
	Handle runtime.Handle
	Ctrl   int
	Data   int
	Live   int
}

// SpawnRelayd starts a relay daemon listening on host and waits until it
// accepts live viewers. The process is left to the runtime on failure.
func SpawnRelayd(ctx context.Context, rt *runtime.Runtime, host string) (*Relayd, error) {
	ports, err := FreePorts(3)
	if err != nil {
		return nil, err
	}
	r := &Relayd{Data: ports[0], Ctrl: ports[1], Live: ports[2]}
	cmd := fmt.Sprintf("lttng-relayd -vvv -D tcp://%[1]s:%[2]d -C tcp://%[1]s:%[3]d -L tcp://%[1]s:%[4]d",
		host, r.Data, r.Ctrl, r.Live)
	if r.Handle, err = rt.Spawn(ctx, cmd); err != nil {
		return nil, err
	}
	stderr, err := rt.StderrPath(r.Handle)
	if err != nil {
		return nil, err
	}
	if err := runtime.WaitForMarker(ctx, stderr, []string{RelaydReadyCue}, ReadyTimeout); err != nil {
		return r, fmt.Errorf("lttng-relayd: %w", err)
	}
	return r, nil
}

// LoadTestModule loads the lttng-test kernel module and registers its
// unloading when rt closes.
func LoadTestModule(ctx context.Context, rt *runtime.Runtime) error {
	if _, err := rt.Run(ctx, "modprobe lttng-test"); err != nil {
		return err
	}
	return rt.OnClose(func(ctx context.Context) error {
		return UnloadTestModule(ctx, rt, false)
	})
}

// UnloadTestModule removes the lttng-test module and the modules it pulled.
func UnloadTestModule(ctx context.Context, rt *runtime.Runtime, check bool) error {
	cmd := "modprobe -r --remove-dependencies " + strings.Join(testModules, " ")
	var opts []runtime.CmdOption
	if !check {
		opts = append(opts, runtime.NoCheck())
	}
	_, err := rt.Run(ctx, cmd, opts...)
	return err
}

// FreePort returns a TCP port that was free when checked. Nothing prevents
// another process from taking it before use.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FreePorts returns n distinct free ports.
func FreePorts(n int) ([]int, error) {
	seen := make(map[int]bool, n)
	ports := make([]int, 0, n)
	for len(ports) < n {
		p, err := FreePort()
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return ports, nil
}
