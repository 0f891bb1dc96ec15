// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// LogWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type LogWriter struct {
	RotatorPipe *io.PipeWriter
}

// Write writes the data in b to standard out and the log rotator.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if w.RotatorPipe != nil {
		w.RotatorPipe.Write(b)
	}
	return len(b), nil
}

// RotatingLogWriter is a wrapper around the LogWriter that supports log file
// rotation and keeps track of every registered subsystem logger.
type RotatingLogWriter struct {
	logWriter *LogWriter

	backendLog *btclog.Backend

	logRotator *rotator.Rotator

	mu               sync.Mutex
	subsystemLoggers map[string]btclog.Logger
}

// NewRotatingLogWriter creates a new file rotating log writer.
//
// NOTE: InitLogRotator must be called to set up log rotation after creating
// the writer.
func NewRotatingLogWriter() *RotatingLogWriter {
	logWriter := &LogWriter{}
	return &RotatingLogWriter{
		logWriter:        logWriter,
		backendLog:       btclog.NewBackend(logWriter),
		subsystemLoggers: make(map[string]btclog.Logger),
	}
}

// GenSubLogger creates a new sublogger for the given tag using the shared
// backend.
func (r *RotatingLogWriter) GenSubLogger(tag string) btclog.Logger {
	return r.backendLog.Logger(tag)
}

// RegisterSubLogger registers a new subsystem logger.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string,
	logger btclog.Logger) {

	r.mu.Lock()
	r.subsystemLoggers[subsystem] = logger
	r.mu.Unlock()
}

// InitLogRotator initializes the log file rotator to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxLogFileSize int,
	maxLogFiles int) error {

	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r.logRotator, err = rotator.New(
		logFile, int64(maxLogFileSize*1024), false, maxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	// Run rotator as a goroutine now but make sure we catch any errors
	// that happen in case something with the rotation goes wrong during
	// runtime (like running out of disk space or not being allowed to
	// create a new logfile for whatever reason).
	pr, pw := io.Pipe()
	go func() {
		err := r.logRotator.Run(pr)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
	}()

	r.logWriter.RotatorPipe = pw
	return nil
}

// SetLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func (r *RotatingLogWriter) SetLogLevel(subsystemID string, logLevel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger, ok := r.subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
func (r *RotatingLogWriter) SetLogLevels(logLevel string) {
	for _, subsystemID := range r.SupportedSubsystems() {
		r.SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted string slice of all keys in the
// subsystems map, so we can print them to the user.
func (r *RotatingLogWriter) SupportedSubsystems() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	subsystems := make([]string, 0, len(r.subsystemLoggers))
	for subsysID := range r.subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// Close closes the underlying log rotator if it has already been created.
func (r *RotatingLogWriter) Close() error {
	if r.logRotator != nil {
		return r.logRotator.Close()
	}
	return nil
}
