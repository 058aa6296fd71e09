// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"cibuild-cli/internal/config"

	"github.com/spf13/cobra"
)

// configCmd is the `cibuild config` command tree.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage cibuild configuration",
	Long: `Manage cibuild configuration.

Configuration is stored in:
  - Linux: ~/.config/cibuild/config.cue
  - macOS: ~/Library/Application Support/cibuild/config.cue
  - Windows: %APPDATA%\cibuild\config.cue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig()
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath()
		},
	})
}

func showConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	keyStyle := CmdStyle
	valueStyle := SuccessStyle

	fmt.Println(TitleStyle.Render("Current Configuration"))
	fmt.Println()

	if path, pathErr := configFilePath(); pathErr == nil && fileExistsCheck(path) {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Println()

	fmt.Printf("%s: %s\n", keyStyle.Render("scan.toolchain_url"), valueStyle.Render(cfg.Scan.ToolchainURL))
	fmt.Printf("%s: %s\n", keyStyle.Render("scan.upload_url"), valueStyle.Render(cfg.Scan.UploadURL))
	fmt.Printf("%s: %s\n", keyStyle.Render("scan.email"), valueStyle.Render(cfg.Scan.Email))
	fmt.Printf("%s: %s\n", keyStyle.Render("secrets.id"), valueStyle.Render(cfg.Secrets.ID))
	fmt.Printf("%s: %s\n", keyStyle.Render("secrets.key_url"), valueStyle.Render(cfg.Secrets.KeyURL))
	fmt.Printf("%s: %s\n", keyStyle.Render("secrets.tests_repo"), valueStyle.Render(cfg.Secrets.TestsRepo))
	fmt.Printf("%s: %s\n", keyStyle.Render("tests.jobs"), valueStyle.Render(fmt.Sprint(cfg.Tests.Jobs)))
	fmt.Printf("%s: %s\n", keyStyle.Render("tests.log_file"), valueStyle.Render(cfg.Tests.LogFile))
	fmt.Printf("%s: %s\n", keyStyle.Render("verbose"), valueStyle.Render(fmt.Sprint(cfg.Verbose)))

	if len(cfg.Images) > 0 {
		fmt.Println()
		fmt.Println(TitleStyle.Render("Image overrides"))
		for distro, image := range cfg.Images {
			fmt.Printf("%s: %s\n", keyStyle.Render(distro), valueStyle.Render(image))
		}
	}
	return nil
}

func showConfigPath() error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	if !fileExistsCheck(path) {
		fmt.Println(SubtitleStyle.Render("(file does not exist yet; built-in defaults apply)"))
	}
	return nil
}

// configFilePath resolves the effective config file location, honoring --config.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.cue"), nil
}

func fileExistsCheck(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
