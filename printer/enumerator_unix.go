//go:build linux || darwin
// +build linux darwin

package printer

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
)

var (
	lpstatPrinterRegex   = regexp.MustCompile(`^printer\s+(\S+)\s+(.*)$`)
	lpstatAcceptingRegex = regexp.MustCompile(`^(\S+)\s+accepting`)
)

// platformList implements the macOS/Linux resolution order from spec.md
// §4.2: `lpstat -p`, then `lpstat -a`, then (macOS only) a
// system_profiler fallback, grounded on the lpstat-parsing idiom used by
// the CUPS spooler watcher (regexp over bufio.Scanner lines,
// exec.CommandContext for the deadline).
func platformList(ctx context.Context, logger Logger) []Info {
	if printers := listViaLpstatP(ctx, logger); len(printers) > 0 {
		applyDefault(ctx, printers)
		return printers
	}
	if printers := listViaLpstatA(ctx, logger); len(printers) > 0 {
		applyDefault(ctx, printers)
		return printers
	}
	if printers := listViaSystemProfiler(ctx, logger); len(printers) > 0 {
		applyDefault(ctx, printers)
		return printers
	}
	return nil
}

func listViaLpstatP(ctx context.Context, logger Logger) []Info {
	out, err := exec.CommandContext(ctx, "lpstat", "-p").Output()
	if err != nil {
		logger.Debug("lpstat -p failed", "error", err)
		return nil
	}
	var printers []Info
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := lpstatPrinterRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		printers = append(printers, Info{Name: m[1], DisplayName: m[1]})
	}
	return printers
}

func listViaLpstatA(ctx context.Context, logger Logger) []Info {
	out, err := exec.CommandContext(ctx, "lpstat", "-a").Output()
	if err != nil {
		logger.Debug("lpstat -a failed", "error", err)
		return nil
	}
	var printers []Info
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := lpstatAcceptingRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		printers = append(printers, Info{Name: m[1], DisplayName: m[1]})
	}
	return printers
}

func applyDefault(ctx context.Context, printers []Info) {
	out, err := exec.CommandContext(ctx, "lpstat", "-d").Output()
	if err != nil {
		return
	}
	line := strings.TrimSpace(string(out))
	const prefix = "system default destination:"
	idx := strings.Index(strings.ToLower(line), prefix)
	if idx < 0 {
		return
	}
	def := strings.TrimSpace(line[idx+len(prefix):])
	for i := range printers {
		if printers[i].Name == def {
			printers[i].IsDefault = true
		}
	}
}
