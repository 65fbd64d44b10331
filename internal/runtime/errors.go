package runtime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	qerrors "github.com/qiniu/x/errors"
)

var (
	// ErrClosed is returned by every operation on a closed runtime.
	ErrClosed = errors.New("runtime is closed")

	// ErrHomeTooLong is returned when the temporary home directory is too
	// long to hold the daemons' UNIX sockets. Use a shorter TMPDIR.
	ErrHomeTooLong = errors.New("runtime home directory path is too long")

	// ErrUnknownHandle is returned for a handle that was not spawned by the
	// runtime.
	ErrUnknownHandle = errors.New("unknown process handle")

	// ErrEmptyCommand is returned for a command line without arguments.
	ErrEmptyCommand = errors.New("empty command line")
)

// CommandFailedError reports a command that exited with a nonzero status.
// Stdout and Stderr are the paths of its captured output.
type CommandFailedError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %q exited with status %d (stderr: %s)", strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

// TimeoutError reports a command killed because it outlived its timeout.
type TimeoutError struct {
	Args    []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %v", strings.Join(e.Args, " "), e.Timeout)
}

// ReadinessTimeoutError reports a readiness condition that was not met in
// time.
type ReadinessTimeoutError struct {
	What    string
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("%s not ready after %v", e.What, e.Timeout)
}

// CloseError aggregates every failure met while closing a runtime.
type CloseError struct {
	Errors qerrors.List
}

func (e *CloseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runtime close: %d error(s)", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n\t")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *CloseError) Unwrap() []error { return e.Errors }
