// Package version exposes build-time version metadata.
package version

// Set via -ldflags at build time, e.g.
// go build -ldflags "-X github.com/wardflow/tanksentry/internal/version.Version=v0.3.0".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a human-readable version line.
func Info() string {
	return "tanksentry " + Version + " (" + Commit + ", " + Date + ")"
}

// Short returns the bare version string.
func Short() string {
	return Version
}

// Map returns all version fields for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
