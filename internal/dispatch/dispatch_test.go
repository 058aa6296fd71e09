// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"testing"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/runtime"
	"cibuild-cli/internal/session"
)

type fakeScan struct {
	builds  int
	uploads int
	err     error
}

func (f *fakeScan) Build(context.Context) error  { f.builds++; return f.err }
func (f *fakeScan) Upload(context.Context) error { f.uploads++; return f.err }

type fakeTests struct {
	runs int
	code runtime.ExitCode
	err  error
}

func (f *fakeTests) Run(context.Context, config.Job) (runtime.ExitCode, error) {
	f.runs++
	return f.code, f.err
}

type fakeSession struct {
	setups int
	reruns int
	step   config.Step
	code   runtime.ExitCode
	err    error
}

func (f *fakeSession) Setup(context.Context, config.Job, string) error {
	f.setups++
	return f.err
}

func (f *fakeSession) Rerun(_ context.Context, step config.Step, _ config.Job, _ string) (runtime.ExitCode, error) {
	f.reruns++
	f.step = step
	return f.code, f.err
}

type recordingShell struct {
	scripts []string
	result  *runtime.Result
}

func (r *recordingShell) Name() string    { return "recording" }
func (r *recordingShell) Available() bool { return true }

func (r *recordingShell) Run(script string, _ runtime.ExecOptions) *runtime.Result {
	r.scripts = append(r.scripts, script)
	if r.result != nil {
		return r.result
	}
	return runtime.NewSuccessResult()
}

// harness wires a Dispatcher whose every seam records instead of executing.
type harness struct {
	d     *Dispatcher
	scan  *fakeScan
	tests *fakeTests
	sess  *fakeSession
	shell *recordingShell
}

func newHarness() *harness {
	h := &harness{
		scan:  &fakeScan{},
		tests: &fakeTests{},
		sess:  &fakeSession{},
		shell: &recordingShell{},
	}
	h.d = New(config.DefaultConfig(), nil)
	h.d.Shell = h.shell
	h.d.NewScan = func(config.Job) (scanPipeline, error) { return h.scan, nil }
	h.d.NewTests = func() testRunner { return h.tests }
	h.d.NewSession = func(session.Distro) (containerSession, error) { return h.sess, nil }
	return h
}

// touched reports whether any seam performed work.
func (h *harness) touched() bool {
	return h.scan.builds+h.scan.uploads+h.tests.runs+h.sess.setups+h.sess.reruns+len(h.shell.scripts) > 0
}

func TestRun_UsageErrorsBeforeAnyCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		step   string
		distro string
	}{
		{"bad step", "deploy", "ubuntu"},
		{"bad distro", "install", "windows"},
		{"bad both", "deploy", "windows"},
		{"empty step", "", "ubuntu"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness()
			job := config.Job{Step: config.Step(tc.step), Distro: tc.distro}

			code, err := h.d.Run(context.Background(), job)
			if err == nil {
				t.Fatal("expected a usage error")
			}
			if code != 1 {
				t.Errorf("code = %d, want 1", code)
			}
			if h.touched() {
				t.Error("usage error must precede any external command")
			}
		})
	}
}

func TestRun_CronNonScanJobIsNoOp(t *testing.T) {
	t.Parallel()

	h := newHarness()
	job := config.Job{
		Step:      config.StepBuild,
		Distro:    "ubuntu",
		EventType: config.EventCron,
		JobNumber: "1481.3",
	}

	code, err := h.d.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
	if h.touched() {
		t.Error("non-scan cron job must not invoke anything")
	}
}

func TestRun_CronScanJobRoutes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		step        config.Step
		wantBuilds  int
		wantUploads int
	}{
		{config.StepBuild, 1, 0},
		{config.StepRun, 0, 1},
		{config.StepInstall, 0, 0},
	}
	for _, tc := range cases {
		t.Run(string(tc.step), func(t *testing.T) {
			t.Parallel()

			h := newHarness()
			job := config.Job{
				Step:      tc.step,
				Distro:    DistroNative,
				EventType: config.EventCron,
				JobNumber: "1481.1",
			}

			code, err := h.d.Run(context.Background(), job)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if code != 0 {
				t.Errorf("code = %d, want 0", code)
			}
			if h.scan.builds != tc.wantBuilds || h.scan.uploads != tc.wantUploads {
				t.Errorf("builds=%d uploads=%d, want %d/%d",
					h.scan.builds, h.scan.uploads, tc.wantBuilds, tc.wantUploads)
			}
			if h.tests.runs+h.sess.setups+h.sess.reruns+len(h.shell.scripts) > 0 {
				t.Error("scan job must take no other path")
			}
		})
	}
}

func TestRun_NativeSentinel(t *testing.T) {
	t.Parallel()

	for _, distro := range []string{DistroNative, distroNativeAlias} {
		t.Run(distro, func(t *testing.T) {
			t.Parallel()

			h := newHarness()

			code, err := h.d.Run(context.Background(), config.Job{Step: config.StepInstall, Distro: distro})
			if err != nil || code != 0 {
				t.Errorf("install: code=%d err=%v, want 0/nil", code, err)
			}
			if len(h.shell.scripts) != 0 {
				t.Error("native install must be a no-op")
			}

			if _, err := h.d.Run(context.Background(), config.Job{Step: config.StepBuild, Distro: distro}); err != nil {
				t.Fatalf("build: %v", err)
			}
			if len(h.shell.scripts) != 1 || h.shell.scripts[0] != "./configure && make" {
				t.Errorf("build scripts = %v", h.shell.scripts)
			}

			h.tests.code = 5
			code, err = h.d.Run(context.Background(), config.Job{Step: config.StepRun, Distro: distro})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if h.tests.runs != 1 || code != 5 {
				t.Errorf("run: runs=%d code=%d, want 1/5", h.tests.runs, code)
			}
			if h.sess.setups+h.sess.reruns > 0 {
				t.Error("native sentinel must not touch containers")
			}
		})
	}
}

func TestRun_SessionModes(t *testing.T) {
	t.Parallel()

	h := newHarness()

	code, err := h.d.Run(context.Background(), config.Job{Step: config.StepInstall, Distro: "debian"})
	if err != nil || code != 0 {
		t.Fatalf("install: code=%d err=%v", code, err)
	}
	if h.sess.setups != 1 {
		t.Errorf("setups = %d, want 1", h.sess.setups)
	}

	h.sess.code = 7
	code, err = h.d.Run(context.Background(), config.Job{Step: config.StepRun, Distro: "debian"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 7 {
		t.Errorf("delegated code = %d, want 7 unchanged", code)
	}
	if h.sess.reruns != 1 || h.sess.step != config.StepRun {
		t.Errorf("reruns=%d step=%q", h.sess.reruns, h.sess.step)
	}
}

func TestRun_SessionSetupFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.sess.err = errors.New("image pull timed out")

	code, err := h.d.Run(context.Background(), config.Job{Step: config.StepInstall, Distro: "fedora"})
	if err == nil {
		t.Fatal("expected setup failure to surface")
	}
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}

func TestResolveDistro(t *testing.T) {
	t.Parallel()

	if native, _, err := resolveDistro("travis"); err != nil || !native {
		t.Errorf("travis: native=%v err=%v", native, err)
	}
	if native, distro, err := resolveDistro("alpine"); err != nil || native || distro != session.DistroAlpine {
		t.Errorf("alpine: native=%v distro=%q err=%v", native, distro, err)
	}
	if _, _, err := resolveDistro("gentoo"); !errors.Is(err, session.ErrInvalidDistro) {
		t.Errorf("gentoo: err = %v, want ErrInvalidDistro", err)
	}
}
