// SPDX-License-Identifier: MPL-2.0

// Package config loads the cibuild tool configuration and snapshots the CI
// job context from the environment.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"cibuild-cli/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "cibuild"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// maxConfigFileSize bounds config reads; a config file larger than this
	// is certainly not a config file.
	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

type (
	// Config is the cibuild tool configuration. Every field has a working
	// default; a config file only overrides.
	Config struct {
		// Images maps a distro identifier to the container image to use,
		// overriding the built-in defaults.
		Images map[string]string `mapstructure:"images"`

		// Scan configures the static-analysis pipeline.
		Scan ScanConfig `mapstructure:"scan"`

		// Secrets configures the encrypted-credential bootstrap.
		Secrets SecretsConfig `mapstructure:"secrets"`

		// Tests configures the test runner.
		Tests TestsConfig `mapstructure:"tests"`

		// Verbose enables verbose output.
		Verbose bool `mapstructure:"verbose"`
	}

	// ScanConfig holds static-analysis service endpoints.
	ScanConfig struct {
		// ToolchainURL is where the analysis toolchain tarball is downloaded from.
		ToolchainURL string `mapstructure:"toolchain_url"`
		// UploadURL receives the packaged analysis results.
		UploadURL string `mapstructure:"upload_url"`
		// Email is the notification address sent with the upload.
		Email string `mapstructure:"email"`
	}

	// SecretsConfig holds the encrypted test-suite credential parameters.
	SecretsConfig struct {
		// ID is the CI-provider hash naming the encrypted_<id>_key/_iv pair.
		ID string `mapstructure:"id"`
		// KeyURL is where the encrypted SSH key blob is fetched from.
		KeyURL string `mapstructure:"key_url"`
		// TestsRepo is the SSH clone URL of the private test corpus.
		TestsRepo string `mapstructure:"tests_repo"`
	}

	// TestsConfig holds test runner parameters.
	TestsConfig struct {
		// Jobs bounds test parallelism on shared CI hardware.
		Jobs int `mapstructure:"jobs"`
		// LogFile is the diagnostic log written by the external test target,
		// relative to the working tree.
		LogFile string `mapstructure:"log_file"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			ToolchainURL: "https://scan.coverity.com/download/linux64",
			UploadURL:    "https://scan.coverity.com/builds",
			Email:        "builds@ntopaz.io",
		},
		Secrets: SecretsConfig{
			ID:        "a1b2c3d4e5f6",
			KeyURL:    "https://builds.ntopaz.io/ci/test_key.enc",
			TestsRepo: "git@github.com:ntopaz/private-tests.git",
		},
		Tests: TestsConfig{
			Jobs:    4,
			LogFile: "tests/test-suite.log",
		},
	}
}

// ConfigDir returns the cibuild configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// Load reads the configuration. Explicit path first, then the platform
// config dir, then the current directory; absent files fall back to
// defaults without error.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("scan.toolchain_url", defaults.Scan.ToolchainURL)
	v.SetDefault("scan.upload_url", defaults.Scan.UploadURL)
	v.SetDefault("scan.email", defaults.Scan.Email)
	v.SetDefault("secrets.id", defaults.Secrets.ID)
	v.SetDefault("secrets.key_url", defaults.Secrets.KeyURL)
	v.SetDefault("secrets.tests_repo", defaults.Secrets.TestsRepo)
	v.SetDefault("tests.jobs", defaults.Tests.Jobs)
	v.SetDefault("tests.log_file", defaults.Tests.LogFile)
	v.SetDefault("verbose", false)

	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, issue.WrapResource(err, "load configuration", path).
				Suggest("Check that the file contains valid CUE syntax",
					"Verify the configuration values match the expected schema")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Tests.Jobs < 1 {
		return nil, issue.New("validate configuration").
			Suggest("tests.jobs must be at least 1")
	}

	return &cfg, nil
}

// resolveConfigPath finds the config file to load, if any. An explicit
// path that does not exist is an error; missing default locations are not.
func resolveConfigPath(explicitPath string) (string, error) {
	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return "", issue.WrapResource(
				fmt.Errorf("config file not found"), "load configuration", explicitPath).
				Suggest("Verify the file path is correct")
		}
		return explicitPath, nil
	}

	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(cuePath) {
		return cuePath, nil
	}

	localPath := ConfigFileName + "." + ConfigFileExt
	if fileExists(localPath) {
		return localPath, nil
	}

	return "", nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config
// schema, and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return fmt.Errorf("invalid CUE in %s: %w", path, userValue.Err())
	}

	// Unify with the schema; Concrete(false) because all fields are optional.
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("config %s does not match schema: %w", path, err)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
