//go:build linux
// +build linux

package printer

import "context"

// listViaSystemProfiler has no Linux equivalent; step 2's system_profiler
// fallback from spec.md §4.2 is macOS-only. Linux enumeration stops after
// the lpstat -a fallback.
func listViaSystemProfiler(ctx context.Context, logger Logger) []Info {
	return nil
}
