// SPDX-License-Identifier: MPL-2.0

// Package session manages the per-job build container: one named container
// per CI job, created by the install step and reused by the build and run
// steps of the same job.
package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/container"
	"cibuild-cli/internal/issue"
	"cibuild-cli/internal/runtime"

	"github.com/charmbracelet/log"
)

const (
	// containerName is the fixed session container name. The CI provider
	// tears the VM down after the job, so nothing else ever competes for it.
	containerName container.ContainerName = "cibuild-session"

	// workDir is where the working tree is mounted inside the container.
	workDir = "/src"

	// startAttempts and startBackoff bound retries around transient image
	// pull and storage failures.
	startAttempts = 3
	startBackoff  = 2 * time.Second
)

// Session is a handle on the per-job build container.
type Session struct {
	engine container.Engine
	distro Distro
	image  container.ImageRef
	tree   string
	logger *log.Logger
}

// New creates a session for the distro, validating it against the closed
// distro set and applying any image override from the configuration.
func New(engine container.Engine, distro Distro, cfg *config.Config, logger *log.Logger) (*Session, error) {
	if err := distro.Validate(); err != nil {
		return nil, err
	}

	tree, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working tree: %w", err)
	}

	image := distro.Image()
	if override, ok := cfg.Images[string(distro)]; ok {
		image = container.ImageRef(override)
	}

	return &Session{
		engine: engine,
		distro: distro,
		image:  image,
		tree:   tree,
		logger: logger,
	}, nil
}

// Setup starts the detached session container with the working tree bind
// mounted, then installs the distro's build dependencies inside it.
// Container start is retried on transient engine errors; the package
// install is not (its failures are actionable, not racy).
func (s *Session) Setup(ctx context.Context, job config.Job, secretID string) error {
	s.logger.Debug("starting session container", "image", s.image, "distro", s.distro)

	err := container.RetryWithBackoff(ctx, startAttempts, startBackoff,
		func(attempt int) (bool, error) {
			if attempt > 0 {
				s.logger.Warn("retrying container start", "attempt", attempt+1)
				// A half-created container from the failed attempt blocks
				// the name; clear it before retrying.
				_ = s.engine.Remove(ctx, containerName, true)
			}
			startErr := s.engine.Start(ctx, container.StartOptions{
				Image:   s.image,
				Name:    containerName,
				WorkDir: workDir,
				Volumes: []string{s.tree + ":" + workDir},
				Env:     job.ForwardEnv(secretID),
			})
			return container.IsTransientError(startErr), startErr
		})
	if err != nil {
		return issue.Wrap(err, "start session container").
			Suggest("Check that the docker daemon is running",
				"Verify the image "+string(s.image)+" is reachable")
	}

	s.logger.Debug("installing build dependencies", "distro", s.distro)
	result, err := s.engine.Exec(ctx, containerName, s.distro.InstallCommand(), container.ExecOptions{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return issue.Wrap(err, "install build dependencies")
	}
	if result.Error != nil {
		return issue.Wrap(result.Error, "install build dependencies")
	}
	if result.ExitCode != 0 {
		return issue.Wrap(fmt.Errorf("package install exited with status %d", result.ExitCode),
			"install build dependencies")
	}

	return nil
}

// Rerun re-invokes the dispatcher for the given step inside the running
// session container, forwarding the job context env so the inner dispatcher
// sees the same CI flags and secret material. The delegated exit code is
// returned unchanged.
func (s *Session) Rerun(ctx context.Context, step config.Step, job config.Job, secretID string) (runtime.ExitCode, error) {
	running, err := s.engine.Running(ctx, containerName)
	if err != nil {
		return 1, issue.Wrap(err, "query session container")
	}
	if !running {
		return 1, issue.New("reuse session container").
			Suggest("Run 'cibuild install " + string(s.distro) + "' first")
	}

	s.logger.Debug("re-invoking dispatcher in container", "step", step)
	result, err := s.engine.Exec(ctx, containerName,
		[]string{"./cibuild", string(step), string(s.distro)},
		container.ExecOptions{
			WorkDir: workDir,
			Env:     job.ForwardEnv(secretID),
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		})
	if err != nil {
		return 1, issue.Wrap(err, "execute step in session container")
	}
	if result.Error != nil {
		return 1, issue.Wrap(result.Error, "execute step in session container")
	}
	return runtime.ExitCode(result.ExitCode), nil
}

// Name returns the fixed session container name.
func Name() container.ContainerName { return containerName }

// WorkDir returns the in-container mount point of the working tree.
func WorkDir() string { return workDir }
