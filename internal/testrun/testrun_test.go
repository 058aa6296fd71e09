// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/runtime"
)

// scriptedRunner returns canned results in call order and records what ran.
type scriptedRunner struct {
	results []*runtime.Result
	scripts []string
	dirs    []string
}

func (s *scriptedRunner) Name() string    { return "scripted" }
func (s *scriptedRunner) Available() bool { return true }

func (s *scriptedRunner) Run(script string, opts runtime.ExecOptions) *runtime.Result {
	s.scripts = append(s.scripts, script)
	s.dirs = append(s.dirs, opts.Dir)
	if len(s.results) == 0 {
		return runtime.NewSuccessResult()
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res
}

func newRunner(t *testing.T, shell *scriptedRunner) *Runner {
	t.Helper()
	r := NewRunner(config.DefaultConfig(), nil)
	r.Tree = t.TempDir()
	r.Shell = shell
	r.FetchPrivate = func(context.Context, config.Job) error { return nil }
	return r
}

func secretJob() config.Job {
	return config.Job{SecretKeyHex: "aa", SecretIVHex: "bb"}
}

func TestRun_ExternalFailureDominates(t *testing.T) {
	t.Parallel()

	shell := &scriptedRunner{results: []*runtime.Result{
		runtime.NewSuccessResult(),
		runtime.NewExitCodeResult(3),
	}}
	r := newRunner(t, shell)

	code, err := r.Run(context.Background(), secretJob())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Errorf("code = %d, want 3", code)
	}
	if len(shell.scripts) != 2 {
		t.Fatalf("ran %d scripts, want 2", len(shell.scripts))
	}
	if !strings.Contains(shell.dirs[1], privateTestsDir) {
		t.Errorf("external tests ran in %q, want the cloned corpus", shell.dirs[1])
	}
}

func TestRun_LocalFailureDeferred(t *testing.T) {
	t.Parallel()

	shell := &scriptedRunner{results: []*runtime.Result{
		runtime.NewExitCodeResult(2),
		runtime.NewSuccessResult(),
	}}
	r := newRunner(t, shell)

	code, err := r.Run(context.Background(), secretJob())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 2 {
		t.Errorf("code = %d, want deferred local status 2", code)
	}
	if len(shell.scripts) != 2 {
		t.Errorf("local failure aborted the sequence: ran %d scripts", len(shell.scripts))
	}
}

func TestRun_PullRequestWithoutSecretsSkips(t *testing.T) {
	t.Parallel()

	shell := &scriptedRunner{results: []*runtime.Result{runtime.NewExitCodeResult(1)}}
	r := newRunner(t, shell)
	fetched := false
	r.FetchPrivate = func(context.Context, config.Job) error {
		fetched = true
		return nil
	}

	code, err := r.Run(context.Background(), config.Job{PullRequest: "42"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 1 {
		t.Errorf("code = %d, want the local status 1", code)
	}
	if fetched {
		t.Error("secrets branch ran on a PR build without material")
	}
	if len(shell.scripts) != 1 {
		t.Errorf("ran %d scripts, want local tests only", len(shell.scripts))
	}
}

func TestRun_MissingSecretsFatalOffPR(t *testing.T) {
	t.Parallel()

	r := newRunner(t, &scriptedRunner{})

	code, err := r.Run(context.Background(), config.Job{PullRequest: "false"})
	if !errors.Is(err, ErrSecretsRequired) {
		t.Fatalf("err = %v, want ErrSecretsRequired", err)
	}
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}

func TestRun_FetchFailureAbortsExternal(t *testing.T) {
	t.Parallel()

	shell := &scriptedRunner{}
	r := newRunner(t, shell)
	r.FetchPrivate = func(context.Context, config.Job) error {
		return errors.New("clone refused")
	}

	code, err := r.Run(context.Background(), secretJob())
	if err == nil {
		t.Fatal("expected fetch failure to surface")
	}
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if len(shell.scripts) != 1 {
		t.Errorf("ran %d scripts, want local tests only", len(shell.scripts))
	}
}

func TestRun_DiagnosticsFilterFailures(t *testing.T) {
	t.Parallel()

	shell := &scriptedRunner{results: []*runtime.Result{
		runtime.NewSuccessResult(),
		runtime.NewExitCodeResult(1),
	}}
	r := newRunner(t, shell)

	logPath := filepath.Join(r.Tree, r.Cfg.Tests.LogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatal(err)
	}
	logBody := strings.Join([]string{
		"PASS dns_resolution",
		"FAIL flow_export",
		"FAIL (SKIP) kernel_probe",
		"SKIP FAIL-adjacent noise",
		"FAIL packet_capture",
	}, "\n")
	if err := os.WriteFile(logPath, []byte(logBody), 0o644); err != nil {
		t.Fatal(err)
	}

	var diag bytes.Buffer
	r.Diagnostics = &diag

	code, err := r.Run(context.Background(), secretJob())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code == 0 {
		t.Error("external failure must produce a non-zero code")
	}

	got := diag.String()
	for _, want := range []string{"FAIL flow_export", "FAIL packet_capture"} {
		if !strings.Contains(got, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "SKIP") {
		t.Errorf("diagnostics include skipped-test noise:\n%s", got)
	}
	if strings.Contains(got, "PASS") {
		t.Errorf("diagnostics include passing lines:\n%s", got)
	}
}

func TestJobsBounds(t *testing.T) {
	t.Parallel()

	r := NewRunner(config.DefaultConfig(), nil)

	r.Cfg.Tests.Jobs = 0
	if got := r.jobs(); got != 1 {
		t.Errorf("jobs() with zero config = %d, want 1", got)
	}

	r.Cfg.Tests.Jobs = 1 << 20
	if got := r.jobs(); got < 1 || got >= 1<<20 {
		t.Errorf("jobs() = %d, want CPU-bounded value", got)
	}
}
