// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"cibuild-cli/internal/container"
)

const (
	// DistroUbuntu targets the current Ubuntu LTS image.
	DistroUbuntu Distro = "ubuntu"
	// DistroDebian targets Debian stable.
	DistroDebian Distro = "debian"
	// DistroFedora targets the current Fedora release.
	DistroFedora Distro = "fedora"
	// DistroCentOS targets CentOS Stream.
	DistroCentOS Distro = "centos"
	// DistroAlpine targets Alpine (musl builds).
	DistroAlpine Distro = "alpine"
)

// ErrInvalidDistro is the sentinel error wrapped by InvalidDistroError.
var ErrInvalidDistro = errors.New("invalid distro")

type (
	// Distro identifies a supported container build distro. The set is
	// closed: anything outside the table below is rejected before a
	// container engine is ever invoked.
	Distro string

	// InvalidDistroError is returned when a Distro is not in the supported set.
	InvalidDistroError struct {
		Value Distro
	}

	// distroSpec couples a distro to its default image and the package
	// manager command line installing the build dependencies inside it.
	distroSpec struct {
		image      container.ImageRef
		installCmd []string
	}
)

// distroTable is the closed distro-to-install-command lookup. One entry per
// supported distro; validation rejects everything else.
var distroTable = map[Distro]distroSpec{
	DistroUbuntu: {
		image: "ubuntu:22.04",
		installCmd: []string{"sh", "-c",
			"apt-get update && DEBIAN_FRONTEND=noninteractive apt-get -y install " +
				"build-essential autoconf automake libtool pkg-config libpcap-dev git curl"},
	},
	DistroDebian: {
		image: "debian:stable-slim",
		installCmd: []string{"sh", "-c",
			"apt-get update && DEBIAN_FRONTEND=noninteractive apt-get -y install " +
				"build-essential autoconf automake libtool pkg-config libpcap-dev git curl"},
	},
	DistroFedora: {
		image: "fedora:41",
		installCmd: []string{"sh", "-c",
			"dnf -y install gcc gcc-c++ make autoconf automake libtool pkgconf-pkg-config libpcap-devel git curl"},
	},
	DistroCentOS: {
		image: "quay.io/centos/centos:stream9",
		installCmd: []string{"sh", "-c",
			"dnf -y install gcc gcc-c++ make autoconf automake libtool pkgconf-pkg-config libpcap-devel git curl"},
	},
	DistroAlpine: {
		image: "alpine:3.20",
		installCmd: []string{"sh", "-c",
			"apk add --no-cache build-base autoconf automake libtool pkgconf libpcap-dev bash git curl"},
	},
}

// Error implements the error interface.
func (e *InvalidDistroError) Error() string {
	return fmt.Sprintf("invalid distro %q (valid: %s)", e.Value, supportedDistroList())
}

// Unwrap returns ErrInvalidDistro so callers can use errors.Is for programmatic detection.
func (e *InvalidDistroError) Unwrap() error { return ErrInvalidDistro }

// Validate returns an error if the Distro is not in the supported set.
func (d Distro) Validate() error {
	if _, ok := distroTable[d]; !ok {
		return &InvalidDistroError{Value: d}
	}
	return nil
}

// String returns the string representation of the Distro.
func (d Distro) String() string { return string(d) }

// Image returns the default container image for the distro.
func (d Distro) Image() container.ImageRef {
	return distroTable[d].image
}

// InstallCommand returns the package-manager command line that installs the
// build dependencies for the distro.
func (d Distro) InstallCommand() []string {
	return distroTable[d].installCmd
}

// SupportedDistros returns the supported distro identifiers, sorted.
func SupportedDistros() []Distro {
	distros := maps.Keys(distroTable)
	slices.Sort(distros)
	return distros
}

func supportedDistroList() string {
	out := ""
	for i, d := range SupportedDistros() {
		if i > 0 {
			out += ", "
		}
		out += string(d)
	}
	return out
}
