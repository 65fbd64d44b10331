package cache

import (
	"embed"
	"sync"

	"github.com/lttng/lttng-ivc/internal/autotools"
	"github.com/lttng/lttng-ivc/internal/digest"
	"github.com/lttng/lttng-ivc/internal/project"
)

//go:embed record.go
var recordSource embed.FS

// LogicDigest fingerprints the build logic: the project lifecycle, the
// native build steps and the record format. Every binary linking this
// package computes the same value from the same sources.
var LogicDigest = sync.OnceValues(func() (string, error) {
	return digest.FS(project.Sources, autotools.Sources, recordSource)
})
