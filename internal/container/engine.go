// SPDX-License-Identifier: MPL-2.0

// Package container drives a container engine through its CLI to host
// per-job build sessions.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidContainerName is the sentinel error wrapped by InvalidContainerNameError.
	ErrInvalidContainerName = errors.New("invalid container name")

	// ErrInvalidImageRef is the sentinel error wrapped by InvalidImageRefError.
	ErrInvalidImageRef = errors.New("invalid image reference")
)

type (
	// Engine defines the container operations the session manager needs.
	Engine interface {
		// Name returns the engine name.
		Name() string
		// Available checks if the engine is usable on this system.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Start launches a detached, long-lived container.
		Start(ctx context.Context, opts StartOptions) error
		// Exec runs a command inside a running container.
		Exec(ctx context.Context, name ContainerName, command []string, opts ExecOptions) (*ExecResult, error)
		// Running reports whether a container with the given name is running.
		Running(ctx context.Context, name ContainerName) (bool, error)
		// Remove removes a container.
		Remove(ctx context.Context, name ContainerName, force bool) error
		// ImageExists checks if an image is present locally.
		ImageExists(ctx context.Context, image ImageRef) (bool, error)
	}

	// ContainerName is the name of a session container.
	ContainerName string

	// InvalidContainerNameError is returned when a ContainerName is empty or whitespace-only.
	InvalidContainerNameError struct {
		Value ContainerName
	}

	// ImageRef is a container image reference (e.g. "fedora:41").
	ImageRef string

	// InvalidImageRefError is returned when an ImageRef is empty or whitespace-only.
	InvalidImageRefError struct {
		Value ImageRef
	}

	// StartOptions configures a detached session container.
	StartOptions struct {
		// Image is the image to run.
		Image ImageRef
		// Name is the container name.
		Name ContainerName
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Volumes are bind mounts in "host:container" form.
		Volumes []string
		// Env contains environment variables set at container creation.
		Env map[string]string
		// KeepAlive is the command keeping the container alive. Empty means
		// "tail -f /dev/null".
		KeepAlive []string
	}

	// ExecOptions configures a command run inside a running container.
	ExecOptions struct {
		// WorkDir is the working directory for the command.
		WorkDir string
		// Env contains environment variables forwarded to the command.
		Env map[string]string
		// Stdin is the standard input (may be nil).
		Stdin io.Reader
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
	}

	// ExecResult contains the outcome of an exec'd command. A non-zero exit
	// lands in ExitCode; Error is reserved for infrastructure failures.
	ExecResult struct {
		ExitCode int
		Error    error
	}

	// ErrEngineNotAvailable is returned when a container engine is not available.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Error implements the error interface.
func (e *InvalidContainerNameError) Error() string {
	return fmt.Sprintf("invalid container name %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidContainerName for errors.Is() compatibility.
func (e *InvalidContainerNameError) Unwrap() error { return ErrInvalidContainerName }

// String returns the string representation of the ContainerName.
func (n ContainerName) String() string { return string(n) }

// Validate returns an error if the ContainerName is empty or whitespace-only.
func (n ContainerName) Validate() error {
	if strings.TrimSpace(string(n)) == "" {
		return &InvalidContainerNameError{Value: n}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidImageRefError) Error() string {
	return fmt.Sprintf("invalid image reference %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidImageRef for errors.Is() compatibility.
func (e *InvalidImageRefError) Unwrap() error { return ErrInvalidImageRef }

// String returns the string representation of the ImageRef.
func (r ImageRef) String() string { return string(r) }

// Validate returns an error if the ImageRef is empty or whitespace-only.
func (r ImageRef) Validate() error {
	if strings.TrimSpace(string(r)) == "" {
		return &InvalidImageRefError{Value: r}
	}
	return nil
}

// Validate returns an error if any typed field of the StartOptions is invalid.
func (o StartOptions) Validate() error {
	var errs []error
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Name.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// NewEngine returns the docker engine, or an error when docker is not usable.
func NewEngine() (Engine, error) {
	docker := NewDockerEngine()
	if docker.Available() {
		return docker, nil
	}
	return nil, &ErrEngineNotAvailable{
		Engine: "docker",
		Reason: "docker is not installed or the daemon is not accessible",
	}
}
