package autotools

import "embed"

// Sources holds the code running the native build steps.
//
//go:embed autotools.go jobs_linux.go jobs_other.go
var Sources embed.FS
