package acquire

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeTool writes an executable shell script standing in for yt-dlp.
func writeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const fakeTool = `
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --version) echo "2025.01.15"; exit 0 ;;
    -o) out="$2"; shift 2 ;;
    --) printf '%s' "$2" > "$out.target"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'fake video bytes' > "$out"
`

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	n, err := lw.Write([]byte(" world of test data"))
	if err != nil || n != 19 {
		t.Errorf("Write() = %d, %v", n, err)
	}
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestSubprocessRunner_Fetch(t *testing.T) {
	tool := writeTool(t, fakeTool)
	r := NewRunner(Config{Path: tool, Logger: testLogger()})

	out := filepath.Join(t.TempDir(), "nested", "clip.mp4")
	title := `Say "Cheese" & $(rm -rf /)`
	result := r.Fetch(context.Background(), "ytsearch1:"+title, out)
	if !result.IsSuccess() {
		t.Fatalf("Fetch() exit = %d, stderr = %q", result.ExitCode, result.StderrTail)
	}

	data, err := os.ReadFile(out)
	if err != nil || string(data) != "fake video bytes" {
		t.Fatalf("output = %q, %v", data, err)
	}
	target, _ := os.ReadFile(out + ".target")
	if string(target) != "ytsearch1:"+title {
		t.Errorf("target passed verbatim = %q", target)
	}
}

func TestSubprocessRunner_FailureCapturesStderr(t *testing.T) {
	tool := writeTool(t, "echo 'WARNING: slow' >&2\necho 'ERROR: no results found' >&2\nexit 1\n")
	r := NewRunner(Config{Path: tool, Logger: testLogger()})

	result := r.Fetch(context.Background(), "ytsearch1:x", filepath.Join(t.TempDir(), "x.mp4"))
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if !strings.Contains(result.StderrTail, "ERROR: no results found") {
		t.Errorf("StderrTail = %q", result.StderrTail)
	}
	if lastLine(result.StderrTail) != "ERROR: no results found" {
		t.Errorf("lastLine = %q", lastLine(result.StderrTail))
	}
}

func TestSubprocessRunner_Timeout(t *testing.T) {
	tool := writeTool(t, "exec sleep 5\n")
	r := NewRunner(Config{Path: tool, Logger: testLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := r.Fetch(ctx, "ytsearch1:x", filepath.Join(t.TempDir(), "x.mp4"))
	if result.IsSuccess() || !result.TimedOut {
		t.Errorf("result = %+v, want timed out failure", result)
	}
	if time.Since(start) > 4*time.Second {
		t.Errorf("timeout not enforced, took %s", time.Since(start))
	}
}

func TestSubprocessRunner_MissingBinary(t *testing.T) {
	r := NewRunner(Config{Path: filepath.Join(t.TempDir(), "does-not-exist"), Logger: testLogger()})
	result := r.Fetch(context.Background(), "x", filepath.Join(t.TempDir(), "x.mp4"))
	if result.ExitCode != -1 || result.StderrTail == "" {
		t.Errorf("result = %+v", result)
	}
	if _, err := r.Version(context.Background()); err == nil {
		t.Error("Version() should fail for a missing binary")
	}
}

func TestSubprocessRunner_Version(t *testing.T) {
	r := NewRunner(Config{Path: writeTool(t, fakeTool), Logger: testLogger()})
	v, err := r.Version(context.Background())
	if err != nil || v != "2025.01.15" {
		t.Errorf("Version() = %q, %v", v, err)
	}
}
