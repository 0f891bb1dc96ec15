// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType is the kind of logging selected by build tags.
type LogType byte

const (
	// LogTypeNone disables logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes all logging directly to stdout.
	LogTypeStdOut

	// LogTypeDefault writes to stdout and the rotating log file.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger returns the logger of a subsystem.
//
// Production builds and development builds using the default log type ask
// genSubLogger for a logger sharing the rotating backend.  Development builds
// tagged stdlog, which is how package tests log, get a private stdout logger
// at the build's LogLevel.  Every other combination, including a nil
// genSubLogger, yields btclog.Disabled.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	shared := IsProdBuild() || LoggingType == LogTypeDefault
	switch {
	case LoggingType == LogTypeNone:
		return btclog.Disabled

	case shared && genSubLogger != nil:
		return genSubLogger(subsystem)

	case IsDevBuild() && LoggingType == LogTypeStdOut:
		return stdoutLogger(subsystem)
	}

	return btclog.Disabled
}

// stdoutLogger creates a logger writing to its own stdout backend.
func stdoutLogger(subsystem string) btclog.Logger {
	logger := btclog.NewBackend(os.Stdout).Logger(subsystem)
	level, _ := btclog.LevelFromString(LogLevel)
	logger.SetLevel(level)
	return logger
}
