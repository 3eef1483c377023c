// Package version holds the build version, overridable via ldflags.
package version

// Version is the application version string.
var Version = "0.3.0-dev"
