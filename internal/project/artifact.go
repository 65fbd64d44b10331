package project

import "fmt"

// Kind selects the build behaviour specific to one family of projects.
type Kind int

const (
	KindGeneric Kind = iota
	KindControlDaemon
	KindTracingLibrary
	KindKernelModules
)

// ParseKind maps a descriptor project name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "lttng-tools":
		return KindControlDaemon, nil
	case "lttng-ust":
		return KindTracingLibrary, nil
	case "lttng-modules":
		return KindKernelModules, nil
	case "babeltrace", "babeltrace2", "urcu", "userspace-rcu", "generic":
		return KindGeneric, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindControlDaemon:
		return "control-daemon"
	case KindTracingLibrary:
		return "tracing-library"
	case KindKernelModules:
		return "kernel-module-set"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// State is a step of the build lifecycle. States only ever increase.
type State int

const (
	StateUninitialized State = iota
	StateCheckedOut
	StateBootstrapped
	StateConfigured
	StateBuilt
	StateInstalled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCheckedOut:
		return "checked-out"
	case StateBootstrapped:
		return "bootstrapped"
	case StateConfigured:
		return "configured"
	case StateBuilt:
		return "built"
	case StateInstalled:
		return "installed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Artifact is the immutable description of what to build: a label, where the
// sources live and the exact commit to build.
type Artifact struct {
	Label    string
	Kind     Kind
	Source   string
	Revision string
	Deps     []string
}
