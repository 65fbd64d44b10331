//go:build !linux

package autotools

import "runtime"

// Jobs returns the number of CPUs usable for builds.
func Jobs() int {
	return runtime.NumCPU()
}
