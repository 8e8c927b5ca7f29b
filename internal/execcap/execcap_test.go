package execcap

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "probe.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestRunCapturesStdoutOnSuccess(t *testing.T) {
	path := writeScript(t, `cat >/dev/null; echo -n '{"x":1}'`)

	out := Run(context.Background(), Request{
		AbsPath:     path,
		Disposition: ExecResource,
		Payload: StdinPayload{Envelope{
			Version: 1,
			Device:  DeviceRef{DeviceID: "dev-1"},
		}},
	})
	if out.Err != nil {
		t.Fatalf("unexpected spawn error: %v", out.Err)
	}
	if out.ExitStatus != 0 {
		t.Fatalf("expected exit 0, got %d", out.ExitStatus)
	}
	if string(out.Stdout) != `{"x":1}` {
		t.Fatalf("unexpected stdout: %q", out.Stdout)
	}
}

func TestRunRecordsNonZeroExit(t *testing.T) {
	path := writeScript(t, `cat >/dev/null; echo "boom" 1>&2; exit 7`)

	out := Run(context.Background(), Request{AbsPath: path, Disposition: ExecResource})
	if out.Err != nil {
		t.Fatalf("unexpected spawn error: %v", out.Err)
	}
	if out.ExitStatus != 7 {
		t.Fatalf("expected exit 7, got %d", out.ExitStatus)
	}
	if out.Stderr != "boom\n" {
		t.Fatalf("unexpected stderr: %q", out.Stderr)
	}
}

func TestRunTimesOut(t *testing.T) {
	path := writeScript(t, `cat >/dev/null; sleep 5`)

	out := Run(context.Background(), Request{
		AbsPath:     path,
		Disposition: ExecResource,
		Timeout:     50 * time.Millisecond,
	})
	if !out.TimedOut {
		t.Fatalf("expected a timeout")
	}
}

func TestRunFeedsStdinPayload(t *testing.T) {
	path := writeScript(t, `cat`)

	out := Run(context.Background(), Request{
		AbsPath:     path,
		Disposition: ExecResource,
		Payload: StdinPayload{Envelope{
			Version: 1,
			Device:  DeviceRef{DeviceID: "dev-xyz"},
		}},
	})
	if out.Err != nil {
		t.Fatalf("unexpected spawn error: %v", out.Err)
	}
	if string(out.Stdout) != out.StdinJSON {
		t.Fatalf("expected echoed stdin to match recorded stdin_json")
	}
}
