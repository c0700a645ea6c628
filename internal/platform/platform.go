// Package platform maps the host machine architecture to the artifact
// tags used by Piper release archives.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Arch is the vendor artifact tag for a CPU architecture.
type Arch string

const (
	ArchAMD64       Arch = "amd64"
	ArchARM64       Arch = "arm64"
	ArchARMv7       Arch = "armv7"
	ArchUnsupported Arch = "unsupported"
)

// Platform is the resolved host architecture. Derived once per run and
// immutable afterwards.
type Platform struct {
	Machine string
	Arch    Arch
}

// UnsupportedError reports a machine string with no known artifact tag.
type UnsupportedError struct {
	Machine string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported architecture %q", e.Machine)
}

// Resolve maps a reported machine type string to a Platform. It accepts
// both Go architecture names and uname -m style names, since the two
// appear interchangeably in release artifact names.
func Resolve(machine string) Platform {
	switch strings.ToLower(strings.TrimSpace(machine)) {
	case "x86_64", "amd64":
		return Platform{Machine: machine, Arch: ArchAMD64}
	case "aarch64", "arm64":
		return Platform{Machine: machine, Arch: ArchARM64}
	case "armv7l", "armv7", "arm":
		return Platform{Machine: machine, Arch: ArchARMv7}
	default:
		return Platform{Machine: machine, Arch: ArchUnsupported}
	}
}

// Detect resolves the platform of the running process.
func Detect() Platform {
	return Resolve(runtime.GOARCH)
}

// Supported reports whether the platform has a known artifact tag.
func (p Platform) Supported() bool {
	return p.Arch != ArchUnsupported
}

// Tag returns the artifact tag used by current release archive names.
func (p Platform) Tag() string {
	return string(p.Arch)
}

// UnameTag returns the uname -m style alias used by older release
// archive names (piper_linux_x86_64.tar.gz and friends).
func (p Platform) UnameTag() string {
	switch p.Arch {
	case ArchAMD64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchARMv7:
		return "armv7l"
	default:
		return string(p.Arch)
	}
}

// WithArch returns a copy of p forced to the given tag. Used when an
// unsupported machine falls back to a configured default tag; the
// caller owns logging that decision.
func (p Platform) WithArch(tag string) (Platform, error) {
	forced := Resolve(tag)
	if !forced.Supported() {
		return p, &UnsupportedError{Machine: tag}
	}
	return Platform{Machine: p.Machine, Arch: forced.Arch}, nil
}
