// Package version holds build information injected at link time.
package version

// Set via -ldflags "-X github.com/kailas-cloud/ragdex/internal/version.Version=... -X ...Commit=...".
var (
	Version = "dev"
	Commit  = "unknown"
)
