// SPDX-License-Identifier: MPL-2.0

// Package testrun executes the test half of a run step: the local unit-test
// suite, the private external test corpus, and the single rule combining
// their results.
package testrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v4/cpu"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/issue"
	"cibuild-cli/internal/runtime"
	"cibuild-cli/internal/secrets"
)

const (
	// privateTestsDir is where the external test corpus is cloned,
	// relative to the tree root.
	privateTestsDir = "tests/private"

	// failMarker and skipMarker select diagnostic lines from the test log:
	// failing entries are surfaced, skipped-test noise is suppressed.
	failMarker = "FAIL"
	skipMarker = "SKIP"
)

// ErrSecretsRequired indicates key material was absent on a build that is
// entitled to it.
var ErrSecretsRequired = errors.New("encrypted key material not set")

// Runner drives the run step's test sequence.
type Runner struct {
	Cfg  *config.Config
	Tree string

	// Shell executes local test scripts. Defaults to the native runner.
	Shell runtime.Runner

	// FetchPrivate installs the SSH identity and clones the external test
	// corpus. Defaults to the secrets bootstrap; replaceable in tests.
	FetchPrivate func(ctx context.Context, job config.Job) error

	// Diagnostics receives the filtered failure log. Defaults to stderr.
	Diagnostics io.Writer

	Logger *log.Logger
}

// NewRunner builds a Runner wired to the real secrets bootstrap.
func NewRunner(cfg *config.Config, logger *log.Logger) *Runner {
	r := &Runner{
		Cfg:    cfg,
		Shell:  runtime.DefaultRunner(),
		Logger: logger,
	}
	r.FetchPrivate = r.fetchPrivate
	return r
}

// Run executes local tests, the secrets branch, and the external test
// target, and reduces everything to a single exit code.
//
// A local failure is deferred, never fatal mid-sequence: the external tests
// still run, and the deferred status surfaces in the combined result.
func (r *Runner) Run(ctx context.Context, job config.Job) (runtime.ExitCode, error) {
	var outcome runtime.Outcome

	outcome.Local = r.runLocal(ctx)
	if outcome.Local.Failed() {
		r.logger().Warn("local unit tests failed; continuing to external tests",
			"code", int(outcome.Local.ExitCode))
	}

	material := secrets.Material{KeyHex: job.SecretKeyHex, IVHex: job.SecretIVHex}
	switch {
	case material.Present():
		if err := r.FetchPrivate(ctx, job); err != nil {
			return 1, err
		}
		outcome.External = r.runExternal(ctx)
	case job.IsPullRequest():
		// Fork builds never see secrets. Not an error.
		r.logger().Info("no key material on a pull-request build; skipping private tests")
	default:
		return 1, issue.Wrap(ErrSecretsRequired, "access private tests").
			Suggest("define encrypted_" + r.Cfg.Secrets.ID + "_key and _iv in the job settings")
	}

	if outcome.External != nil && outcome.External.Failed() {
		r.dumpDiagnostics()
	}
	return outcome.Combine(), nil
}

// runLocal runs the unit-test suite with a bounded job count.
func (r *Runner) runLocal(ctx context.Context) *runtime.Result {
	jobs := r.jobs()
	r.logger().Info("running local unit tests", "jobs", jobs)
	script := fmt.Sprintf("make -C tests check JOBS=%d", jobs)
	return r.run(ctx, r.tree(), script)
}

// runExternal runs the cloned corpus's test target.
func (r *Runner) runExternal(ctx context.Context) *runtime.Result {
	r.logger().Info("running external tests", "dir", privateTestsDir)
	return r.run(ctx, filepath.Join(r.tree(), privateTestsDir), "make check")
}

// jobs bounds the configured parallelism by the detected CPU count so a
// generous config cannot oversubscribe shared CI hardware.
func (r *Runner) jobs() int {
	jobs := r.Cfg.Tests.Jobs
	if cpus, err := cpu.Counts(true); err == nil && cpus > 0 && cpus < jobs {
		jobs = cpus
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// fetchPrivate is the production secrets branch: bootstrap an SSH identity
// from the encrypted key material, clone the corpus, and let the scoped
// identity clean itself up.
func (r *Runner) fetchPrivate(ctx context.Context, job config.Job) error {
	boot := &secrets.Bootstrap{
		Material: secrets.Material{KeyHex: job.SecretKeyHex, IVHex: job.SecretIVHex},
		KeyURL:   r.Cfg.Secrets.KeyURL,
		Logger:   r.logger(),
	}
	return boot.WithIdentity(ctx, func(identityPath string) error {
		dest := filepath.Join(r.tree(), privateTestsDir)
		return secrets.CloneTests(ctx, r.Cfg.Secrets.TestsRepo, identityPath, dest)
	})
}

// dumpDiagnostics prints failing entries from the test log, suppressing
// skipped-test lines.
func (r *Runner) dumpDiagnostics() {
	logPath := filepath.Join(r.tree(), r.Cfg.Tests.LogFile)
	f, err := os.Open(logPath)
	if err != nil {
		r.logger().Warn("test log not readable", "path", logPath, "err", err)
		return
	}
	defer func() { _ = f.Close() }()

	out := r.Diagnostics
	if out == nil {
		out = os.Stderr
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, failMarker) && !strings.Contains(line, skipMarker) {
			fmt.Fprintln(out, line)
		}
	}
}

func (r *Runner) run(ctx context.Context, dir, script string) *runtime.Result {
	return r.shell().Run(script, runtime.ExecOptions{
		Context: ctx,
		Dir:     dir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
}

func (r *Runner) shell() runtime.Runner {
	if r.Shell != nil {
		return r.Shell
	}
	return runtime.DefaultRunner()
}

func (r *Runner) tree() string {
	if r.Tree != "" {
		return r.Tree
	}
	return "."
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}
