// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"testing"
)

func TestOutcome_Combine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome Outcome
		want    ExitCode
	}{
		{
			name:    "both passed",
			outcome: Outcome{Local: NewSuccessResult(), External: NewSuccessResult()},
			want:    0,
		},
		{
			name:    "external failure dominates local success",
			outcome: Outcome{Local: NewSuccessResult(), External: NewExitCodeResult(2)},
			want:    2,
		},
		{
			name:    "external failure dominates local failure",
			outcome: Outcome{Local: NewExitCodeResult(1), External: NewExitCodeResult(3)},
			want:    3,
		},
		{
			name:    "deferred local failure surfaces after external success",
			outcome: Outcome{Local: NewExitCodeResult(1), External: NewSuccessResult()},
			want:    1,
		},
		{
			name:    "local failure with external skipped",
			outcome: Outcome{Local: NewExitCodeResult(4)},
			want:    4,
		},
		{
			name:    "infrastructure error without exit code maps to 1",
			outcome: Outcome{Local: NewSuccessResult(), External: NewErrorResult(0, errors.New("spawn failed"))},
			want:    1,
		},
		{
			name:    "nothing ran",
			outcome: Outcome{},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.outcome.Combine(); got != tt.want {
				t.Errorf("Combine() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResult_Failed(t *testing.T) {
	t.Parallel()

	if NewSuccessResult().Failed() {
		t.Error("success result should not be failed")
	}
	if !NewExitCodeResult(1).Failed() {
		t.Error("non-zero exit should be failed")
	}
	if !NewErrorResult(0, errors.New("boom")).Failed() {
		t.Error("infrastructure error should be failed")
	}
}
