// Package version exposes build metadata for the flowmill binary.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns the build metadata as a map, as surfaced by /status.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}

// String returns a one-line human-readable version.
func String() string {
	return fmt.Sprintf("flowmill %s (%s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}
