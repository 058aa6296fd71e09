// SPDX-License-Identifier: MPL-2.0

package runtime

type (
	// Outcome aggregates the results of the local unit-test suite and the
	// external test corpus. The local result is captured first and deferred:
	// a local failure must not prevent the external tests from running, but
	// it must still fail the job afterwards.
	Outcome struct {
		// Local is the local unit-test result (nil if the suite never ran).
		Local *Result
		// External is the external test-target result (nil if skipped).
		External *Result
	}
)

// Combine reduces the outcome to a single exit code with one deterministic
// rule: non-zero if either side failed, with an external failure dominating
// the reported code.
func (o Outcome) Combine() ExitCode {
	if o.External != nil && o.External.Failed() {
		if o.External.ExitCode != 0 {
			return o.External.ExitCode
		}
		return 1
	}
	if o.Local != nil && o.Local.Failed() {
		if o.Local.ExitCode != 0 {
			return o.Local.ExitCode
		}
		return 1
	}
	return 0
}
