// Package version exposes the build metadata stamped into release binaries.
// Release builds override the defaults with -ldflags; a plain `go build`
// reports a dev binary.
package version

import "runtime"

var (
	// GitRelease is the tag the binary was released under.
	GitRelease = "dev"
	// GitCommit identifies the exact source revision.
	GitCommit = "unknown"
	// GitCommitDate is when that revision was committed.
	GitCommitDate = "unknown"
	// GoInfo records the toolchain that compiled the binary.
	GoInfo = runtime.Version()
)
