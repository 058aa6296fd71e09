// SPDX-License-Identifier: MPL-2.0

package main

import cmd "cibuild-cli/cmd/cibuild"

func main() {
	cmd.Execute()
}
