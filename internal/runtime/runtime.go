// SPDX-License-Identifier: MPL-2.0

// Package runtime provides shell script execution on the host, either through
// the system shell or through a built-in POSIX interpreter, and the result
// types shared by every execution path.
package runtime

import (
	"context"
	"io"
)

// execContext returns the options' context, defaulting to context.Background.
func (o ExecOptions) execContext() context.Context {
	if o.Context != nil {
		return o.Context
	}
	return context.Background()
}

type (
	// Runner executes a shell script and reports its outcome.
	Runner interface {
		// Name returns the runner name (native or virtual).
		Name() string
		// Available reports whether this runner can execute scripts on this host.
		Available() bool
		// Run executes the script and returns its result. Infrastructure
		// failures are reported via Result.Error; a plain non-zero exit from
		// the script is not an error.
		Run(script string, opts ExecOptions) *Result
	}

	// ExecOptions contains everything a Runner needs besides the script itself.
	ExecOptions struct {
		// Context cancels the execution. Nil means context.Background().
		Context context.Context
		// Dir is the working directory. Empty means the current directory.
		Dir string
		// Env contains extra environment variables layered over the host env.
		Env map[string]string
		// Args are positional parameters exposed to the script as $1, $2, ...
		Args []string
		// Stdin is the standard input (may be nil).
		Stdin io.Reader
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
	}

	// Result contains the outcome of a single script execution.
	Result struct {
		// ExitCode is the process exit status.
		ExitCode ExitCode
		// Output is the captured standard output (capture mode only).
		Output string
		// ErrOutput is the captured standard error (capture mode only).
		ErrOutput string
		// Error is set for infrastructure failures (shell missing, spawn
		// failure), never for a plain non-zero script exit.
		Error error
	}
)

// DefaultRunner returns the system-shell runner when a shell exists on this
// host, falling back to the built-in interpreter on shell-less images.
func DefaultRunner() Runner {
	native := &NativeRunner{}
	if native.Available() {
		return native
	}
	return NewVirtualRunner()
}

// EnvToSlice converts an env map to KEY=VALUE form for exec.Cmd.
func EnvToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
