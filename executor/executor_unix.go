//go:build linux || darwin
// +build linux darwin

package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"cleverprint/agent/job"
)

// platformPrint invokes CUPS's lp directly, one argument per field — never
// shell-joined — matching spec.md §4.3's escaping requirement.
func platformPrint(ctx context.Context, logger Logger, pdfPath string, opts job.Options, _ string) error {
	args := []string{}
	if opts.PrinterName != "" {
		args = append(args, "-d", opts.PrinterName)
	}
	copies := opts.Copies
	if copies < 1 {
		copies = 1
	}
	args = append(args, "-n", strconv.Itoa(copies), pdfPath)

	cmd := exec.CommandContext(ctx, "lp", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		logger.Warn("lp command failed", "printer", opts.PrinterName, "error", msg)
		return &Error{Reason: fmt.Sprintf("lp failed: %s", msg)}
	}
	return nil
}
