package project

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a descriptor naming a project the
	// harness does not know how to build.
	ErrUnknownKind = errors.New("unknown project kind")

	// ErrImmutable is matched by every ImmutableError.
	ErrImmutable = errors.New("project is immutable")

	// ErrManualSteps is returned by Autobuild when some lifecycle steps were
	// triggered by hand, leaving the project half built.
	ErrManualSteps = errors.New("project steps were manually triggered, can't autobuild")

	// ErrSchemaNotFound is returned when no machine interface schema exists
	// in a control daemon source tree.
	ErrSchemaNotFound = errors.New("machine interface schema not found")
)

// ImmutableError reports an attempt to mutate a cached project.
type ImmutableError struct {
	Label string
	Op    string
}

func (e *ImmutableError) Error() string {
	return fmt.Sprintf("%s: illegal %s: %v", e.Label, e.Op, ErrImmutable)
}

func (e *ImmutableError) Is(target error) bool { return target == ErrImmutable }

// StateError reports a lifecycle step called out of order.
type StateError struct {
	Label string
	Op    string
	State State
	Want  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s requires state %s, project is %s", e.Label, e.Op, e.Want, e.State)
}

// DependencyNotReadyError reports a dependency that is not installed. Either
// configure was attempted too early, an ordering bug, or the dependency is a
// kernel module set skipped on this host.
type DependencyNotReadyError struct {
	Label      string
	Dependency string
	State      State
	Skipped    bool
}

func (e *DependencyNotReadyError) Error() string {
	if e.Skipped {
		return fmt.Sprintf("%s: dependency %s was skipped on this host", e.Label, e.Dependency)
	}
	return fmt.Sprintf("%s: dependency %s is %s, not installed", e.Label, e.Dependency, e.State)
}

// CheckoutError reports a source tree that could not be materialized at the
// requested revision.
type CheckoutError struct {
	Label    string
	Source   string
	Revision string
	Err      error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("%s: checkout %s@%s: %v", e.Label, e.Source, e.Revision, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// BuildStepError reports a failing native build step. Its logs are left in
// LogPath.
type BuildStepError struct {
	Label   string
	Step    string
	LogPath string
	Err     error
}

func (e *BuildStepError) Error() string {
	return fmt.Sprintf("%s: %s failed (see %s): %v", e.Label, e.Step, e.LogPath, e.Err)
}

func (e *BuildStepError) Unwrap() error { return e.Err }

// EnvCollisionError reports two sources defining the same special
// environment variable with different values.
type EnvCollisionError struct {
	Key    string
	Owners [2]string
	Values [2]string
}

func (e *EnvCollisionError) Error() string {
	return fmt.Sprintf("multiple definition of special environment variable %s: %q by %s, %q by %s",
		e.Key, e.Values[0], e.Owners[0], e.Values[1], e.Owners[1])
}
