package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLog_RespectsLevelFiltering(t *testing.T) {
	l := New(WARN, "", 10)
	l.SetConsoleOutput(false)

	l.Info("should be filtered")
	l.Warn("should appear")

	buf := l.Buffer()
	if len(buf) != 1 {
		t.Fatalf("Buffer: got %d entries, want 1", len(buf))
	}
	if buf[0].Message != "should appear" {
		t.Fatalf("Buffer: got %q", buf[0].Message)
	}
}

func TestLog_RingBufferDropsOldest(t *testing.T) {
	l := New(TRACE, "", 2)
	l.SetConsoleOutput(false)

	l.Info("one")
	l.Info("two")
	l.Info("three")

	buf := l.Buffer()
	if len(buf) != 2 {
		t.Fatalf("Buffer: got %d entries, want 2", len(buf))
	}
	if buf[0].Message != "two" || buf[1].Message != "three" {
		t.Fatalf("Buffer: got %q, %q", buf[0].Message, buf[1].Message)
	}
}

func TestWarnRateLimited_SuppressesWithinInterval(t *testing.T) {
	l := New(TRACE, "", 10)
	l.SetConsoleOutput(false)

	l.WarnRateLimited("poll-failure", time.Hour, "first")
	l.WarnRateLimited("poll-failure", time.Hour, "second")

	buf := l.Buffer()
	if len(buf) != 1 {
		t.Fatalf("Buffer: got %d entries, want 1 (second call should be suppressed)", len(buf))
	}
}

func TestLog_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	l := New(INFO, dir, 10)
	l.SetConsoleOutput(false)

	l.Info("persisted line")
	l.Close()

	path := filepath.Join(dir, "agent.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty log file")
	}
}
