// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcjoin/build"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/maker"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
	"github.com/btcsuite/btcjoin/taker"
	"github.com/btcsuite/btclog"
)

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and register it in
// init.
var (
	// logWriter writes to standard output and, once InitLogRotator has
	// been called, to the rotated log file.
	logWriter = build.NewRotatingLogWriter()

	log = build.NewSubLogger("BJND", logWriter.GenSubLogger)
)

func init() {
	logWriter.RegisterSubLogger("BJND", log)

	addSubLogger("CSTR", commitstore.UseLogger)
	addSubLogger("PROT", protocol.UseLogger)
	addSubLogger("RLAY", relay.UseLogger)
	addSubLogger("CHAN", chain.UseLogger, rpcclient.UseLogger)
	addSubLogger("CJTX", coinjoin.UseLogger)
	addSubLogger("MAKR", maker.UseLogger)
	addSubLogger("TAKR", taker.UseLogger)
}

// addSubLogger creates the logger of a subsystem, registers it and hands it
// to every package logging under that subsystem.
func addSubLogger(subsystem string, useLoggers ...func(btclog.Logger)) {
	logger := build.NewSubLogger(subsystem, logWriter.GenSubLogger)
	logWriter.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// logClosure is used to provide a closure over expensive logging operations
// so don't have to be performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so that it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logWriter.SetLogLevel(subsystemID, logLevel)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	logWriter.SetLogLevels(logLevel)
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
