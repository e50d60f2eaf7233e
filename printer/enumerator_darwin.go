//go:build darwin
// +build darwin

package printer

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// listViaSystemProfiler is the macOS-only last-resort fallback from
// spec.md §4.2 step 2, used when CUPS itself reports no printers (lpstat
// unavailable or empty) but the OS still knows about configured hardware.
func listViaSystemProfiler(ctx context.Context, logger Logger) []Info {
	out, err := exec.CommandContext(ctx, "system_profiler", "SPPrintersDataType").Output()
	if err != nil {
		logger.Debug("system_profiler failed", "error", err)
		return nil
	}
	var printers []Info
	scanner := bufio.NewScanner(bytes.NewReader(out))
	const marker = "Printer Name:"
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, marker) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, marker))
		if name == "" {
			continue
		}
		printers = append(printers, Info{Name: name, DisplayName: name})
	}
	return printers
}
