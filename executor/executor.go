// Package executor invokes the host OS's native printing facilities (C3)
// against a materialized PDF file.
package executor

import (
	"context"
	"time"

	"cleverprint/agent/job"
)

// Logger is the narrow logging interface executor depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(string, ...interface{}) {}
func (nullLogger) Warn(string, ...interface{})  {}
func (nullLogger) Info(string, ...interface{})  {}
func (nullLogger) Debug(string, ...interface{}) {}

// Error reports a print command that ran but failed, carrying whatever
// diagnostic text was available (stderr preferred over the bare launcher
// error per spec.md §4.3).
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Executor runs the platform-appropriate print command and blocks until it
// exits or the 30-second deadline elapses.
type Executor struct {
	logger Logger

	// SumatraPath overrides the configured Windows PDF-printer binary. Empty
	// means fall through the bundled/asset/cwd resolution order.
	SumatraPath string
}

// New constructs an Executor.
func New(logger Logger) *Executor {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Executor{logger: logger}
}

// Print invokes the OS command to print pdfPath with the given options,
// blocking until the process exits or 30 seconds elapse.
func (e *Executor) Print(ctx context.Context, pdfPath string, opts job.Options) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return platformPrint(ctx, e.logger, pdfPath, opts, e.SumatraPath)
}
