// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// StepInstall installs build dependencies (host no-op, container setup).
	StepInstall Step = "install"
	// StepBuild configures and compiles the project.
	StepBuild Step = "build"
	// StepRun executes the test suites.
	StepRun Step = "run"

	// EventCron is the CI event type for scheduled (cron) builds.
	EventCron = "cron"

	// scanJobIndex is the parallel job index that owns the analysis scan.
	// All other indices skip cron builds so the scan runs exactly once.
	scanJobIndex = "1"
)

// ErrInvalidStep is the sentinel error wrapped by InvalidStepError.
var ErrInvalidStep = errors.New("invalid step")

type (
	// Step identifies a CI pipeline step.
	Step string

	// InvalidStepError is returned when a Step is not one of install, build, run.
	InvalidStepError struct {
		Value Step
	}

	// Job is an immutable snapshot of the CI job context, built once at
	// process start from the CLI arguments and the environment. Components
	// receive it by value and never re-read ambient environment state.
	Job struct {
		// Step is the pipeline step to execute.
		Step Step
		// Distro is the raw distro argument (a container distro or the
		// "native" sentinel).
		Distro string

		// CI reports whether a CI provider environment was detected.
		CI bool
		// EventType is the CI event that triggered the job (push, cron, ...).
		EventType string
		// JobNumber is the raw dot-delimited job number (e.g. "1481.2").
		JobNumber string
		// PullRequest is the PR number, or "false" outside pull requests.
		PullRequest string

		// ScanToken authorizes uploads to the static-analysis service.
		ScanToken string
		// SecretKeyHex and SecretIVHex decrypt the private test-suite key.
		SecretKeyHex string
		SecretIVHex  string
	}
)

// Error implements the error interface.
func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("invalid step %q (valid: install, build, run)", e.Value)
}

// Unwrap returns ErrInvalidStep so callers can use errors.Is for programmatic detection.
func (e *InvalidStepError) Unwrap() error { return ErrInvalidStep }

// Validate returns an error if the Step is not one of the defined steps.
func (s Step) Validate() error {
	switch s {
	case StepInstall, StepBuild, StepRun:
		return nil
	default:
		return &InvalidStepError{Value: s}
	}
}

// String returns the string representation of the Step.
func (s Step) String() string { return string(s) }

// NewJob builds the Job context from the CLI arguments, the process
// environment, and the loaded tool configuration.
func NewJob(step, distro string, cfg *Config) Job {
	secretID := cfg.Secrets.ID
	return Job{
		Step:         Step(step),
		Distro:       distro,
		CI:           os.Getenv("CI") == "true" || os.Getenv("TRAVIS") == "true",
		EventType:    os.Getenv("TRAVIS_EVENT_TYPE"),
		JobNumber:    os.Getenv("TRAVIS_JOB_NUMBER"),
		PullRequest:  os.Getenv("TRAVIS_PULL_REQUEST"),
		ScanToken:    os.Getenv("COVERITY_SCAN_TOKEN"),
		SecretKeyHex: os.Getenv("encrypted_" + secretID + "_key"),
		SecretIVHex:  os.Getenv("encrypted_" + secretID + "_iv"),
	}
}

// IsCron reports whether the job was triggered by a scheduled build.
func (j Job) IsCron() bool {
	return j.EventType == EventCron
}

// JobIndex returns the parallel job index: the second component of the
// dot-delimited job number. Empty when no job number is set.
func (j Job) JobIndex() string {
	_, idx, found := strings.Cut(j.JobNumber, ".")
	if !found {
		return ""
	}
	return idx
}

// IsScanJob reports whether this parallel job owns the analysis scan.
func (j Job) IsScanJob() bool {
	return j.JobIndex() == scanJobIndex
}

// IsPullRequest reports whether the job builds a pull request.
// CI providers set the variable to the literal "false" on branch builds.
func (j Job) IsPullRequest() bool {
	return j.PullRequest != "" && j.PullRequest != "false"
}

// HasSecret reports whether decryption key material is present.
// Fork pull requests never receive it.
func (j Job) HasSecret() bool {
	return j.SecretKeyHex != "" && j.SecretIVHex != ""
}

// ForwardEnv returns the environment variables that must survive the hop
// into a session container so the re-invoked dispatcher sees the same
// context: provider flags, PR flag, and the secret key/IV pair.
func (j Job) ForwardEnv(secretID string) map[string]string {
	env := map[string]string{
		"TRAVIS":              "true",
		"CI":                  "true",
		"TRAVIS_EVENT_TYPE":   j.EventType,
		"TRAVIS_JOB_NUMBER":   j.JobNumber,
		"TRAVIS_PULL_REQUEST": j.PullRequest,
	}
	if j.HasSecret() {
		env["encrypted_"+secretID+"_key"] = j.SecretKeyHex
		env["encrypted_"+secretID+"_iv"] = j.SecretIVHex
	}
	return env
}
