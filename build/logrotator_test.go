// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

// TestRotatingLogWriterLevels checks that subsystem levels are applied only
// to registered loggers.
func TestRotatingLogWriterLevels(t *testing.T) {
	t.Parallel()

	w := NewRotatingLogWriter()
	makr := w.GenSubLogger("MAKR")
	takr := w.GenSubLogger("TAKR")
	w.RegisterSubLogger("MAKR", makr)
	w.RegisterSubLogger("TAKR", takr)

	require.Equal(t, []string{"MAKR", "TAKR"}, w.SupportedSubsystems())

	w.SetLogLevels("debug")
	require.Equal(t, btclog.LevelDebug, makr.Level())
	require.Equal(t, btclog.LevelDebug, takr.Level())

	w.SetLogLevel("TAKR", "trace")
	require.Equal(t, btclog.LevelTrace, takr.Level())

	// Unknown subsystems are ignored.
	w.SetLogLevel("NOPE", "error")
	require.Equal(t, btclog.LevelDebug, makr.Level())
}

// TestInitLogRotator makes sure the rotator creates the log directory.
func TestInitLogRotator(t *testing.T) {
	t.Parallel()

	w := NewRotatingLogWriter()
	logFile := filepath.Join(t.TempDir(), "logs", "btcjoin.log")
	require.NoError(t, w.InitLogRotator(logFile, 10, 3))

	logger := w.GenSubLogger("BJND")
	w.RegisterSubLogger("BJND", logger)
	logger.Infof("rotator ready")

	require.NoError(t, w.Close())
}
