package spooler

import "errors"

// ErrQueueFull is returned by Enqueue when |active| >= maxQueueSize.
var ErrQueueFull = errors.New("spooler: queue full")

// ErrShuttingDown is returned by Enqueue after Shutdown has been called.
var ErrShuttingDown = errors.New("spooler: shutting down")

// ErrNotFound reports that no job matches an ID. Cancel and Retry do not
// return it; they report a miss by returning false.
var ErrNotFound = errors.New("spooler: job not found")
