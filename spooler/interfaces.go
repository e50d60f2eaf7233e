package spooler

import (
	"context"
	"time"

	"cleverprint/agent/job"
)

// Logger is the narrow logging interface the spooler depends on, matching
// the shape used throughout the agent (config, printer, remote packages)
// so any of those Logger implementations can be passed in directly.
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

// Materializer resolves a payload to a readable on-disk PDF path. owned
// reports whether the spooler must unlink the path once the job leaves the
// active set.
type Materializer interface {
	Materialize(ctx context.Context, p job.Payload) (path string, owned bool, err error)
}

// Executor invokes the host OS print command against a materialized PDF.
type Executor interface {
	Print(ctx context.Context, pdfPath string, opts job.Options) error
}

// HistoryStore is the optional supplemental audit sink (C8). A nil
// HistoryStore is valid; Record is then a no-op.
type HistoryStore interface {
	Record(j *job.Job)
}

// ConfigProvider exposes the subset of the Config Store (C1) the spooler
// reads on every enqueue/dispatch, per spec: config is read on demand, not
// cached across calls.
type ConfigProvider interface {
	MaxRetries() int
	RetryDelay() time.Duration
	MaxQueueSize() int
	DefaultPrinter() string
	SetDefaultPrinter(name string) error
}
