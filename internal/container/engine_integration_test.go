// SPDX-License-Identifier: MPL-2.0

// Integration tests for the container engine against a real daemon.
// These tests require Docker to be available and are skipped otherwise.
package container

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// checkTestcontainersAvailable safely checks if testcontainers can be used.
// Returns true if containers are available, false otherwise.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

func TestDockerEngine_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	engine, err := NewEngine()
	if err != nil {
		t.Skipf("skipping container integration tests: %v", err)
	}
	if !engine.Available() {
		t.Skip("skipping container integration tests: engine not available")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping container integration tests: testcontainers provider not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	name := ContainerName(fmt.Sprintf("cibuild-itest-%d", os.Getpid()))
	t.Cleanup(func() {
		_ = engine.Remove(context.Background(), name, true)
	})

	err = engine.Start(ctx, StartOptions{
		Image:   "alpine:3.20",
		Name:    name,
		WorkDir: "/work",
		Env:     map[string]string{"SESSION_MARKER": "itest"},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	running, err := engine.Running(ctx, name)
	if err != nil {
		t.Fatalf("Running() error = %v", err)
	}
	if !running {
		t.Fatal("container not running after Start()")
	}

	var stdout bytes.Buffer
	res, err := engine.Exec(ctx, name, []string{"sh", "-c", "pwd; echo $SESSION_MARKER"}, ExecOptions{
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("Exec() exit code = %d, want 0", res.ExitCode)
	}
	out := stdout.String()
	if !strings.Contains(out, "/work") || !strings.Contains(out, "itest") {
		t.Errorf("Exec() output = %q, want workdir and env marker", out)
	}

	res, err = engine.Exec(ctx, name, []string{"sh", "-c", "exit 42"}, ExecOptions{})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 42 {
		t.Errorf("Exec() exit code = %d, want 42 propagated", res.ExitCode)
	}

	exists, err := engine.ImageExists(ctx, "alpine:3.20")
	if err != nil {
		t.Fatalf("ImageExists() error = %v", err)
	}
	if !exists {
		t.Error("ImageExists() = false for an image that just ran")
	}

	if err := engine.Remove(ctx, name, true); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	running, err = engine.Running(ctx, name)
	if err != nil {
		t.Fatalf("Running() after Remove error = %v", err)
	}
	if running {
		t.Error("container still running after Remove()")
	}
}
