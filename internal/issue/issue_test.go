// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  New("decrypt test key"),
			want: "failed to decrypt test key",
		},
		{
			name: "operation and resource",
			err:  WrapResource(errors.New("permission denied"), "install ssh identity", "/root/.ssh/id_rsa"),
			want: "failed to install ssh identity: /root/.ssh/id_rsa: permission denied",
		},
		{
			name: "wrapped cause",
			err:  Wrap(errors.New("connection refused"), "download scan toolchain"),
			want: "failed to download scan toolchain: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("no such file")
	err := Wrap(cause, "read project manifest")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestWrap_NilError(t *testing.T) {
	t.Parallel()

	if Wrap(nil, "anything") != nil {
		t.Error("Wrap(nil, ...) should return nil")
	}
	if WrapResource(nil, "anything", "res") != nil {
		t.Error("WrapResource(nil, ...) should return nil")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("exit status 125")
	err := Wrap(inner, "start session container").
		Suggest("Check that the docker daemon is running")

	short := err.Format(false)
	if !strings.Contains(short, "• Check that the docker daemon is running") {
		t.Errorf("Format(false) missing suggestion:\n%s", short)
	}
	if strings.Contains(short, "Error chain") {
		t.Errorf("Format(false) should not include the error chain:\n%s", short)
	}

	long := err.Format(true)
	if !strings.Contains(long, "Error chain:") || !strings.Contains(long, "1. exit status 125") {
		t.Errorf("Format(true) missing error chain:\n%s", long)
	}
}
