//go:build windows
// +build windows

package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"cleverprint/agent/job"
)

var (
	modshell32        = windows.NewLazySystemDLL("shell32.dll")
	procShellExecuteW = modshell32.NewProc("ShellExecuteW")
)

// sumatraSearchPaths returns the resolution order from spec.md §4.3:
// configured override first, then bundled/asset/cwd locations, in order.
func sumatraSearchPaths(configured string) []string {
	paths := []string{}
	if configured != "" {
		paths = append(paths, configured)
	}
	exeDir, err := os.Executable()
	if err == nil {
		base := filepath.Dir(exeDir)
		paths = append(paths,
			filepath.Join(base, "resources", "sumatra", "SumatraPDF.exe"),
			filepath.Join(base, "assets", "windows", "sumatra", "SumatraPDF.exe"),
		)
	}
	cwd, err := os.Getwd()
	if err == nil {
		paths = append(paths, filepath.Join(cwd, "sumatra", "SumatraPDF.exe"))
	}
	return paths
}

func resolveSumatra(configured string) string {
	for _, p := range sumatraSearchPaths(configured) {
		if p == "" {
			continue
		}
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func platformPrint(ctx context.Context, logger Logger, pdfPath string, opts job.Options, sumatraPath string) error {
	if sumatra := resolveSumatra(sumatraPath); sumatra != "" {
		return printViaSumatra(ctx, logger, sumatra, pdfPath, opts)
	}
	logger.Warn("Sumatra not found, falling back to OS print verb")
	if err := printViaShellVerb(ctx, logger, pdfPath); err == nil {
		return nil
	}
	logger.Warn("OS print verb failed, falling back to browser kiosk printing")
	return printViaBrowserKiosk(ctx, logger, pdfPath)
}

func printViaSumatra(ctx context.Context, logger Logger, sumatra, pdfPath string, opts job.Options) error {
	args := []string{"-silent"}
	if opts.PrinterName != "" {
		args = append(args, "-print-to", opts.PrinterName)
	} else {
		args = append(args, "-print-to-default")
	}
	args = append(args, "-print-settings", "fit,center,paper=auto,bin=auto", pdfPath)

	cmd := exec.CommandContext(ctx, sumatra, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := string(out)
		if msg == "" {
			msg = err.Error()
		}
		logger.Warn("Sumatra print failed", "error", msg)
		return &Error{Reason: fmt.Sprintf("sumatra failed: %s", msg)}
	}
	return nil
}

// printViaShellVerb shells the "print" verb to the file's registered PDF
// handler via ShellExecuteW, the native equivalent of double-clicking the
// file and choosing Print.
func printViaShellVerb(ctx context.Context, logger Logger, pdfPath string) error {
	verb, _ := syscall.UTF16PtrFromString("print")
	file, _ := syscall.UTF16PtrFromString(pdfPath)

	done := make(chan error, 1)
	go func() {
		r, _, _ := procShellExecuteW.Call(
			0,
			uintptr(unsafe.Pointer(verb)),
			uintptr(unsafe.Pointer(file)),
			0, 0,
			uintptr(windows.SW_HIDE),
		)
		// ShellExecuteW returns a value > 32 on success.
		if r <= 32 {
			done <- fmt.Errorf("ShellExecuteW print verb failed: code %d", r)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printViaBrowserKiosk is the last-resort fallback: launch a browser with
// kiosk-printing flags against the PDF, wait up to 5 seconds, then force
// terminate it regardless of outcome (the print dialog has already been
// dispatched to the spooler by then).
func printViaBrowserKiosk(ctx context.Context, logger Logger, pdfPath string) error {
	browser, err := resolveBrowser()
	if err != nil {
		return &Error{Reason: err.Error()}
	}

	kioskCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(kioskCtx, browser,
		"--kiosk-printing",
		"--new-window",
		pdfPath,
	)
	if err := cmd.Start(); err != nil {
		return &Error{Reason: fmt.Sprintf("browser kiosk launch failed: %v", err)}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-kioskCtx.Done():
		logger.Debug("browser kiosk print window elapsed, force-terminating")
		_ = cmd.Process.Kill()
		return nil
	case err := <-waitErr:
		if err != nil {
			logger.Debug("browser kiosk process exited", "error", err)
		}
		return nil
	}
}

func resolveBrowser() (string, error) {
	candidates := []string{"msedge.exe", "chrome.exe"}
	for _, name := range candidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	for _, dir := range []string{
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	} {
		if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no browser found for kiosk-printing fallback")
}
