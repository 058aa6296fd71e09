// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"strings"

	"cibuild-cli/internal/issue"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the project manifest at the working-tree root.
const ManifestFileName = "project.toml"

type (
	// Manifest describes the project under CI: its name, the released
	// version the scan upload reports, and the scan-service project slug.
	Manifest struct {
		Project ProjectInfo `toml:"project"`
	}

	// ProjectInfo is the [project] table of the manifest.
	ProjectInfo struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		// ScanSlug is the project identifier registered with the scan
		// service (defaults to Name when empty).
		ScanSlug string `toml:"scan_slug"`
	}
)

// LoadManifest reads and validates the project manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, issue.WrapResource(err, "read project manifest", path).
			Suggest("Run cibuild from the project root",
				"Create a project.toml with [project] name and version")
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, issue.WrapResource(err, "parse project manifest", path)
	}

	if strings.TrimSpace(m.Project.Name) == "" {
		return nil, issue.WrapResource(
			fmt.Errorf("missing project.name"), "validate project manifest", path)
	}
	if strings.TrimSpace(m.Project.Version) == "" {
		return nil, issue.WrapResource(
			fmt.Errorf("missing project.version"), "validate project manifest", path)
	}
	if m.Project.ScanSlug == "" {
		m.Project.ScanSlug = m.Project.Name
	}

	return &m, nil
}
