package project

import "embed"

// Sources holds the code deciding how projects are built. It is part of the
// logic digest of cache records.
//
//go:embed artifact.go env.go errors.go kind.go project.go rpath.go snapshot.go
var Sources embed.FS
