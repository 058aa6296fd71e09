// SPDX-License-Identifier: MPL-2.0

// Package scan drives the static-analysis pipeline: fetching the analysis
// toolchain, producing an instrumented build, and submitting the results to
// the scan service.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/issue"
	"cibuild-cli/internal/runtime"
)

const (
	// resultsDirName is where the instrumented build collects its output.
	resultsDirName = "cov-int"

	// toolchainDirName is where the downloaded toolchain is unpacked.
	toolchainDirName = "cov-analysis"

	downloadTimeout = 10 * time.Minute
	uploadTimeout   = 10 * time.Minute
)

var errNoToken = errors.New("no scan token configured")

// Pipeline runs the two halves of a static-analysis job: Build produces the
// instrumented results directory, Upload submits it.
type Pipeline struct {
	// Token authenticates against the scan service. Required.
	Token string

	// ToolchainURL is the endpoint serving the analysis toolchain tarball.
	ToolchainURL string

	// UploadURL is the endpoint accepting result submissions.
	UploadURL string

	// Email is the contact address attached to submissions.
	Email string

	// Project names the scan project (the manifest's slug).
	Project string

	// Version labels the submitted build (the manifest's version).
	Version string

	// Tree is the source tree root. Defaults to the working directory.
	Tree string

	// Runner executes the configure and build scripts.
	Runner *runtime.NativeRunner

	// Client performs HTTP calls. Defaults to a timeout-bounded client.
	Client *http.Client

	Logger *log.Logger
}

// NewPipeline assembles a Pipeline from configuration and the project
// manifest.
func NewPipeline(cfg *config.Config, manifest *config.Manifest, token string, logger *log.Logger) *Pipeline {
	return &Pipeline{
		Token:        token,
		ToolchainURL: cfg.Scan.ToolchainURL,
		UploadURL:    cfg.Scan.UploadURL,
		Email:        cfg.Scan.Email,
		Project:      manifest.Project.ScanSlug,
		Version:      manifest.Project.Version,
		Runner:       &runtime.NativeRunner{},
		Logger:       logger,
	}
}

func (p *Pipeline) tree() string {
	if p.Tree != "" {
		return p.Tree
	}
	return "."
}

func (p *Pipeline) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: downloadTimeout}
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// Build fetches the analysis toolchain and produces an instrumented build
// under cov-int. It fails fast when no scan token is configured.
func (p *Pipeline) Build(ctx context.Context) error {
	if p.Token == "" {
		return issue.Wrap(errNoToken, "start analysis build").
			Suggest("set COVERITY_SCAN_TOKEN in the job environment",
				"scan jobs run only on the designated cron job")
	}

	toolchain := filepath.Join(p.tree(), toolchainDirName)
	if err := p.fetchToolchain(ctx, toolchain); err != nil {
		return err
	}

	p.logger().Info("configuring debug build")
	if res := p.run(ctx, "./configure --enable-debug"); res.Failed() {
		return issue.Wrap(res.Err(), "configure analysis build").
			Suggest("check config.log for the failing probe")
	}

	wrapper := filepath.Join(toolchain, "bin", "cov-build")
	p.logger().Info("running instrumented build", "wrapper", wrapper)
	script := fmt.Sprintf("%q --dir %q make", wrapper, resultsDirName)
	if res := p.run(ctx, script); res.Failed() {
		return issue.Wrap(res.Err(), "run instrumented build").
			Suggest("inspect " + filepath.Join(resultsDirName, "build-log.txt"))
	}
	return nil
}

// Upload packages the results directory and submits it to the scan service.
func (p *Pipeline) Upload(ctx context.Context) error {
	if p.Token == "" {
		return issue.Wrap(errNoToken, "upload analysis results").
			Suggest("set COVERITY_SCAN_TOKEN in the job environment")
	}

	results := filepath.Join(p.tree(), resultsDirName)
	if _, err := os.Stat(results); err != nil {
		return issue.WrapResource(err, "upload analysis results", results).
			Suggest("run the analysis build step before uploading")
	}

	archive, err := os.CreateTemp("", "cibuild-scan-*.tgz")
	if err != nil {
		return issue.Wrap(err, "create results archive")
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	p.logger().Info("packaging analysis results", "dir", results)
	if err := packTarGz(results, archive); err != nil {
		return issue.WrapResource(err, "package analysis results", results)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return issue.Wrap(err, "rewind results archive")
	}

	description := p.revision(ctx)

	p.logger().Info("uploading analysis results",
		"project", p.Project, "version", p.Version, "revision", description)
	return p.submit(ctx, archive, description)
}

// fetchToolchain downloads and unpacks the analysis toolchain, skipping the
// download when a previous run already unpacked it.
func (p *Pipeline) fetchToolchain(ctx context.Context, dest string) error {
	if _, err := os.Stat(filepath.Join(dest, "bin")); err == nil {
		p.logger().Debug("analysis toolchain already present", "dir", dest)
		return nil
	}

	reqURL, err := url.Parse(p.ToolchainURL)
	if err != nil {
		return issue.WrapResource(err, "download analysis toolchain", p.ToolchainURL)
	}
	q := reqURL.Query()
	q.Set("token", p.Token)
	q.Set("project", p.Project)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return issue.Wrap(err, "download analysis toolchain")
	}

	p.logger().Info("downloading analysis toolchain", "url", p.ToolchainURL)
	resp, err := p.client().Do(req)
	if err != nil {
		return issue.WrapResource(err, "download analysis toolchain", p.ToolchainURL).
			Suggest("check network access to the scan service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return issue.WrapResource(fmt.Errorf("unexpected status %s", resp.Status),
			"download analysis toolchain", p.ToolchainURL).
			Suggest("verify the scan token and project name")
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return issue.WrapResource(err, "unpack analysis toolchain", dest)
	}
	if err := extractTarGz(resp.Body, dest); err != nil {
		return issue.WrapResource(err, "unpack analysis toolchain", dest)
	}

	// The tarball unpacks into a single versioned directory; flatten it so
	// bin/cov-build sits directly under the toolchain root.
	return p.flatten(dest)
}

// flatten lifts a single top-level directory's contents up one level.
func (p *Pipeline) flatten(dest string) error {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}
	inner := filepath.Join(dest, entries[0].Name())
	children, err := os.ReadDir(inner)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := os.Rename(filepath.Join(inner, child.Name()), filepath.Join(dest, child.Name())); err != nil {
			return err
		}
	}
	return os.Remove(inner)
}

// submit POSTs the results archive as a multipart form.
func (p *Pipeline) submit(ctx context.Context, archive *os.File, description string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"token":       p.Token,
		"email":       p.Email,
		"project":     p.Project,
		"version":     p.Version,
		"description": description,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return issue.Wrap(err, "encode upload form")
		}
	}

	part, err := mw.CreateFormFile("file", filepath.Base(archive.Name()))
	if err != nil {
		return issue.Wrap(err, "encode upload form")
	}
	if _, err := io.Copy(part, archive); err != nil {
		return issue.Wrap(err, "encode upload form")
	}
	if err := mw.Close(); err != nil {
		return issue.Wrap(err, "encode upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.UploadURL, &body)
	if err != nil {
		return issue.Wrap(err, "upload analysis results")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: uploadTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return issue.WrapResource(err, "upload analysis results", p.UploadURL).
			Suggest("check network access to the scan service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return issue.WrapResource(
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(msg))),
			"upload analysis results", p.UploadURL)
	}
	return nil
}

// revision returns the current git commit hash, or "unknown" when the tree
// has no usable git metadata.
func (p *Pipeline) revision(ctx context.Context) string {
	res := p.runner().RunCapture("git rev-parse HEAD", runtime.ExecOptions{
		Context: ctx,
		Dir:     p.tree(),
	})
	if res.Failed() {
		return "unknown"
	}
	return strings.TrimSpace(res.Output)
}

func (p *Pipeline) run(ctx context.Context, script string) *runtime.Result {
	return p.runner().Run(script, runtime.ExecOptions{
		Context: ctx,
		Dir:     p.tree(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
}

func (p *Pipeline) runner() *runtime.NativeRunner {
	if p.Runner != nil {
		return p.Runner
	}
	return &runtime.NativeRunner{}
}
