// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DockerEngine implements the Engine interface using the Docker CLI.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	path, _ := exec.LookPath("docker")
	return &DockerEngine{
		BaseCLIEngine: NewBaseCLIEngine("docker", path, opts...),
	}
}

// Available checks if Docker is available and the daemon responds.
func (e *DockerEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Server.Version}}")
	return cmd.Run() == nil
}

// Version returns the Docker server version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Start launches a detached session container.
// It validates StartOptions before executing to catch invalid fields early.
func (e *DockerEngine) Start(ctx context.Context, opts StartOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, e.StartArgs(opts)...)
}

// Exec runs a command in a running container. A non-zero exit code is
// captured in ExecResult.ExitCode, not returned as an error.
func (e *DockerEngine) Exec(ctx context.Context, name ContainerName, command []string, opts ExecOptions) (*ExecResult, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}

	args := e.ExecArgs(name, command, opts)

	cmd := e.CreateCommand(ctx, args...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	err := cmd.Run()

	result := &ExecResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = err
		}
	}

	return result, nil
}

// Running reports whether a container with the given name is running.
func (e *DockerEngine) Running(ctx context.Context, name ContainerName) (bool, error) {
	if err := name.Validate(); err != nil {
		return false, err
	}
	out, err := e.RunCommandWithOutput(ctx,
		"ps", "--filter", "name=^"+string(name)+"$", "--format", "{{.Names}}")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == string(name), nil
}

// Remove removes a container.
func (e *DockerEngine) Remove(ctx context.Context, name ContainerName, force bool) error {
	if err := name.Validate(); err != nil {
		return err
	}
	return e.RunCommandStatus(ctx, e.RemoveArgs(name, force)...)
}

// ImageExists checks if an image is present locally.
func (e *DockerEngine) ImageExists(ctx context.Context, image ImageRef) (bool, error) {
	if err := image.Validate(); err != nil {
		return false, err
	}
	err := e.RunCommandStatus(ctx, "image", "inspect", string(image))
	return err == nil, nil
}
