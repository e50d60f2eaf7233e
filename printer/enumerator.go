// Package printer discovers installed printers (C2). Printing itself is
// done by the executor package (C3).
package printer

import (
	"context"
	"sort"
	"time"
)

// Logger is the narrow logging interface printer depends on.
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

// Info describes one discovered printer, the wire shape required by the
// local HTTP API's GET /api/printers.
type Info struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	IsDefault   bool   `json:"isDefault"`
}

// Enumerator discovers installed printers, absorbing all underlying
// failures: List always returns a (possibly empty) slice.
type Enumerator struct {
	logger Logger

	// EnableNetworkDiscovery turns on the supplemental mDNS/Bonjour browse
	// described in SPEC_FULL §4.2. Defaults to true; tests disable it to
	// keep enumeration hermetic.
	EnableNetworkDiscovery bool
}

// New constructs an Enumerator with network discovery enabled.
func New(logger Logger) *Enumerator {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Enumerator{logger: logger, EnableNetworkDiscovery: true}
}

// List resolves installed printers within a hard 5-second deadline. Any
// underlying error (missing binary, parse failure, timeout) is logged and
// absorbed; the call never fails.
func (e *Enumerator) List(ctx context.Context) []Info {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make(chan []Info, 1)
	go func() {
		results <- platformList(ctx, e.logger)
	}()

	var found []Info
	select {
	case found = <-results:
	case <-ctx.Done():
		e.logger.Warn("printer enumeration deadline exceeded")
		found = nil
	}

	if e.EnableNetworkDiscovery {
		found = append(found, discoverNetworkPrinters(ctx, e.logger)...)
	}

	return dedupe(found)
}

func dedupe(in []Info) []Info {
	seen := make(map[string]bool, len(in))
	out := make([]Info, 0, len(in))
	for _, p := range in {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		if p.DisplayName == "" {
			p.DisplayName = p.Name
		}
		if p.Status == "" {
			p.Status = "ready"
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
