// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"testing"
)

func TestContainerName_Validate(t *testing.T) {
	t.Parallel()

	if err := ContainerName("ci-session").Validate(); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	for _, bad := range []ContainerName{"", "   "} {
		err := bad.Validate()
		if err == nil {
			t.Errorf("name %q should be invalid", bad)
			continue
		}
		if !errors.Is(err, ErrInvalidContainerName) {
			t.Errorf("error should wrap ErrInvalidContainerName, got %v", err)
		}
	}
}

func TestImageRef_Validate(t *testing.T) {
	t.Parallel()

	if err := ImageRef("fedora:41").Validate(); err != nil {
		t.Errorf("valid image rejected: %v", err)
	}
	if err := ImageRef("").Validate(); !errors.Is(err, ErrInvalidImageRef) {
		t.Errorf("empty image should wrap ErrInvalidImageRef, got %v", err)
	}
}

func TestStartOptions_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    StartOptions
		wantErr bool
	}{
		{name: "valid", opts: StartOptions{Image: "alpine:3.20", Name: "ci"}},
		{name: "missing image", opts: StartOptions{Name: "ci"}, wantErr: true},
		{name: "missing name", opts: StartOptions{Image: "alpine:3.20"}, wantErr: true},
		{name: "both missing", opts: StartOptions{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.opts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
