//go:build trace && !nolog
// +build trace,!nolog

package build

// LogLevel specifies a trace log level.
var LogLevel = "trace"
