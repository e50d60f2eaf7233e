//go:build linux || darwin
// +build linux darwin

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cleverprint/agent/job"
)

// fakeBin writes an executable script named "lp" into a fresh directory and
// prepends that directory to PATH for the duration of the test.
func fakeBin(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lp")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake lp: %v", err)
	}
	oldPath := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath)
	t.Cleanup(func() { os.Setenv("PATH", oldPath) })
}

func TestPrint_SucceedsOnZeroExit(t *testing.T) {
	fakeBin(t, "#!/bin/sh\nexit 0\n")

	e := New(nil)
	err := e.Print(context.Background(), "/tmp/doc.pdf", job.Options{Copies: 1})
	if err != nil {
		t.Fatalf("Print: unexpected error: %v", err)
	}
}

func TestPrint_FailureSurfacesStderr(t *testing.T) {
	fakeBin(t, "#!/bin/sh\necho 'printer offline' 1>&2\nexit 1\n")

	e := New(nil)
	err := e.Print(context.Background(), "/tmp/doc.pdf", job.Options{Copies: 1})
	if err == nil {
		t.Fatalf("Print: expected error, got nil")
	}
	var execErr *Error
	if !asExecutorError(err, &execErr) {
		t.Fatalf("Print: expected *executor.Error, got %T", err)
	}
	if execErr.Reason == "" {
		t.Fatalf("Print: expected non-empty failure reason")
	}
}

func asExecutorError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestPlatformPrint_DefaultsCopiesToOne(t *testing.T) {
	fakeBin(t, `#!/bin/sh
for a in "$@"; do
  if [ "$prev" = "-n" ]; then
    if [ "$a" != "1" ]; then
      echo "expected copies=1, got $a" 1>&2
      exit 1
    fi
  fi
  prev="$a"
done
exit 0
`)
	e := New(nil)
	err := e.Print(context.Background(), "/tmp/doc.pdf", job.Options{})
	if err != nil {
		t.Fatalf("Print with zero Copies: %v", err)
	}
}
