// SPDX-License-Identifier: MPL-2.0

// Package dispatch routes a validated (step, distro) pair to the right
// execution mode: the cron-owned analysis scan, native host execution, or a
// distro session container.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/container"
	"cibuild-cli/internal/issue"
	"cibuild-cli/internal/runtime"
	"cibuild-cli/internal/scan"
	"cibuild-cli/internal/session"
	"cibuild-cli/internal/testrun"
)

const (
	// DistroNative is the sentinel distro meaning "run on the host, no
	// container".
	DistroNative = "native"

	// distroNativeAlias is accepted for compatibility with jobs written
	// against the hosted-CI naming.
	distroNativeAlias = "travis"
)

type (
	// scanPipeline is the analysis-scan surface the dispatcher drives.
	scanPipeline interface {
		Build(ctx context.Context) error
		Upload(ctx context.Context) error
	}

	// testRunner is the run-step test sequence.
	testRunner interface {
		Run(ctx context.Context, job config.Job) (runtime.ExitCode, error)
	}

	// containerSession is one distro session container.
	containerSession interface {
		Setup(ctx context.Context, job config.Job, secretID string) error
		Rerun(ctx context.Context, step config.Step, job config.Job, secretID string) (runtime.ExitCode, error)
	}
)

// Dispatcher selects and drives the execution mode for one job invocation.
// The seam fields default to the production implementations; tests replace
// them.
type Dispatcher struct {
	Cfg    *config.Config
	Tree   string
	Logger *log.Logger

	// Shell executes native build scripts.
	Shell runtime.Runner

	// NewScan builds the analysis pipeline for a scan job.
	NewScan func(job config.Job) (scanPipeline, error)

	// NewTests builds the run-step test sequence.
	NewTests func() testRunner

	// NewSession opens a session for a container distro.
	NewSession func(distro session.Distro) (containerSession, error)
}

// New assembles a production Dispatcher.
func New(cfg *config.Config, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		Cfg:    cfg,
		Logger: logger,
		Shell:  runtime.DefaultRunner(),
	}
	d.NewScan = d.newScan
	d.NewTests = func() testRunner { return testrun.NewRunner(cfg, logger) }
	d.NewSession = d.newSession
	return d
}

// Run validates the job and executes it. Validation failures return exit
// code 1 before any external command runs; delegated exit codes propagate
// unchanged.
func (d *Dispatcher) Run(ctx context.Context, job config.Job) (runtime.ExitCode, error) {
	if err := job.Step.Validate(); err != nil {
		return 1, issue.Wrap(err, "parse arguments").
			Suggest("usage: cibuild <install|build|run> <distro>")
	}
	native, distro, err := resolveDistro(job.Distro)
	if err != nil {
		return 1, issue.Wrap(err, "parse arguments").
			Suggest(fmt.Sprintf("use %q for host execution, or one of: %v",
				DistroNative, session.SupportedDistros()))
	}

	if job.IsCron() {
		return d.runCron(ctx, job)
	}
	if native {
		return d.runNative(ctx, job)
	}
	return d.runSession(ctx, job, distro)
}

// resolveDistro classifies the distro argument: the native sentinel (or its
// alias), or a validated container distro.
func resolveDistro(arg string) (native bool, distro session.Distro, err error) {
	switch arg {
	case DistroNative, distroNativeAlias:
		return true, "", nil
	}
	distro = session.Distro(arg)
	if err := distro.Validate(); err != nil {
		return false, "", err
	}
	return false, distro, nil
}

// runCron handles scheduled builds: exactly one parallel job owns the
// analysis scan, every other job is a deliberate no-op.
func (d *Dispatcher) runCron(ctx context.Context, job config.Job) (runtime.ExitCode, error) {
	if !job.IsScanJob() {
		d.logger().Info("scheduled build on a non-scan job; nothing to do",
			"job", job.JobNumber)
		return 0, nil
	}

	pipeline, err := d.NewScan(job)
	if err != nil {
		return 1, err
	}

	switch job.Step {
	case config.StepBuild:
		if err := pipeline.Build(ctx); err != nil {
			return 1, err
		}
	case config.StepRun:
		if err := pipeline.Upload(ctx); err != nil {
			return 1, err
		}
	default:
		d.logger().Info("scheduled build: step has no scan action", "step", job.Step)
	}
	return 0, nil
}

// runNative executes the step directly on the host.
func (d *Dispatcher) runNative(ctx context.Context, job config.Job) (runtime.ExitCode, error) {
	switch job.Step {
	case config.StepInstall:
		// The host image ships its own toolchain.
		d.logger().Info("native install: nothing to do")
		return 0, nil

	case config.StepBuild:
		d.logger().Info("native build")
		res := d.shell().Run("./configure && make", runtime.ExecOptions{
			Context: ctx,
			Dir:     d.tree(),
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		})
		if res.Error != nil {
			return 1, issue.Wrap(res.Error, "run native build")
		}
		return res.ExitCode, nil

	default: // config.StepRun, already validated
		return d.NewTests().Run(ctx, job)
	}
}

// runSession executes the step inside the distro's session container:
// install creates and provisions it, build and run re-enter it.
func (d *Dispatcher) runSession(ctx context.Context, job config.Job, distro session.Distro) (runtime.ExitCode, error) {
	sess, err := d.NewSession(distro)
	if err != nil {
		return 1, err
	}

	if job.Step == config.StepInstall {
		if err := sess.Setup(ctx, job, d.Cfg.Secrets.ID); err != nil {
			return 1, err
		}
		return 0, nil
	}
	return sess.Rerun(ctx, job.Step, job, d.Cfg.Secrets.ID)
}

// newScan loads the project manifest and builds the production pipeline.
func (d *Dispatcher) newScan(job config.Job) (scanPipeline, error) {
	manifest, err := config.LoadManifest(filepath.Join(d.tree(), config.ManifestFileName))
	if err != nil {
		return nil, err
	}
	pipeline := scan.NewPipeline(d.Cfg, manifest, job.ScanToken, d.logger())
	pipeline.Tree = d.tree()
	return pipeline, nil
}

// newSession discovers a container engine and opens the distro session.
func (d *Dispatcher) newSession(distro session.Distro) (containerSession, error) {
	engine, err := container.NewEngine()
	if err != nil {
		return nil, issue.Wrap(err, "select container engine").
			Suggest("install Docker, or pass \"native\" to run on the host")
	}
	return session.New(engine, distro, d.Cfg, d.logger())
}

func (d *Dispatcher) shell() runtime.Runner {
	if d.Shell != nil {
		return d.Shell
	}
	return runtime.DefaultRunner()
}

func (d *Dispatcher) tree() string {
	if d.Tree != "" {
		return d.Tree
	}
	return "."
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}
