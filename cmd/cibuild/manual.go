// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	_ "embed"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

//go:embed manual.md
var manualText string

// manualCmd renders the embedded manual in the terminal.
var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Show the cibuild manual",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			// No styled renderer (odd TERM, no TTY): fall back to plain text.
			fmt.Print(manualText)
			return nil
		}
		out, err := renderer.Render(manualText)
		if err != nil {
			fmt.Print(manualText)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}
