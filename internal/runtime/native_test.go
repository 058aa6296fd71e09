// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"runtime"
	"strings"
	"testing"
)

func TestNativeRunner_RunCapture(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell semantics")
	}

	r := NewNativeRunner()
	if !r.Available() {
		t.Skip("no shell available")
	}

	result := r.RunCapture("echo out; echo err >&2", ExecOptions{})
	if result.Failed() {
		t.Fatalf("script failed: code=%d err=%v", result.ExitCode, result.Error)
	}
	if result.Output != "out\n" {
		t.Errorf("Output = %q, want %q", result.Output, "out\n")
	}
	if result.ErrOutput != "err\n" {
		t.Errorf("ErrOutput = %q, want %q", result.ErrOutput, "err\n")
	}
}

func TestNativeRunner_ExitCodePropagation(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell semantics")
	}

	r := NewNativeRunner()
	if !r.Available() {
		t.Skip("no shell available")
	}

	result := r.RunCapture("exit 7", ExecOptions{})
	if result.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", result.ExitCode)
	}
	if result.Error != nil {
		t.Errorf("plain non-zero exit should not set Error, got %v", result.Error)
	}
}

func TestNativeRunner_EnvAndArgs(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell semantics")
	}

	r := &NativeRunner{Shell: "/bin/sh"}
	result := r.RunCapture("echo $STEP $1", ExecOptions{
		Env:  map[string]string{"STEP": "build"},
		Args: []string{"fedora"},
	})
	if result.Failed() {
		t.Fatalf("script failed: %v", result.Error)
	}
	if got := strings.TrimSpace(result.Output); got != "build fedora" {
		t.Errorf("output = %q, want %q", got, "build fedora")
	}
}
