package kipath

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform captures everything Resolve needs to know about the host.
// Callers normally obtain one from Current, but tests and remote
// tooling can construct arbitrary platforms by hand.
type Platform struct {
	// OS is a GOOS-style identifier such as "linux", "darwin" or "windows".
	OS string

	// Home is the user's home directory (the profile directory on Windows).
	Home string

	// DataHome is the XDG data directory on Unix-like systems. Empty means
	// the XDG default of Home/.local/share. Ignored on other platforms.
	DataHome string
}

// Current describes the running host.
func Current() Platform {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return Platform{
		OS:       runtime.GOOS,
		Home:     home,
		DataHome: os.Getenv("XDG_DATA_HOME"),
	}
}

// UnsupportedPlatformError reports that system-mode resolution has no
// path template for the host operating system.
type UnsupportedPlatformError struct {
	OS string
}

func (e *UnsupportedPlatformError) Error() string {
	return "no system library location known for platform " + e.OS
}

// platformFamily groups operating systems that share a third-party
// directory layout.
type platformFamily int

const (
	familyUnix platformFamily = iota
	familyDarwin
	familyWindows
)

// families maps GOOS values onto the three supported layouts. Anything
// absent from this table is an unsupported platform for system mode.
var families = map[string]platformFamily{
	"linux":     familyUnix,
	"freebsd":   familyUnix,
	"openbsd":   familyUnix,
	"netbsd":    familyUnix,
	"dragonfly": familyUnix,
	"solaris":   familyUnix,
	"illumos":   familyUnix,
	"darwin":    familyDarwin,
	"windows":   familyWindows,
}

// systemRoots holds the per-family template for the version-scoped
// third-party root. Adding a platform means adding one table row.
var systemRoots = map[platformFamily]func(p Platform, version string) string{
	familyUnix: func(p Platform, version string) string {
		return filepath.Join(dataHome(p), "kicad", version, "3rdparty")
	},
	familyDarwin: func(p Platform, version string) string {
		return filepath.Join(p.Home, "Documents", "KiCad", version, "3rdparty")
	},
	familyWindows: func(p Platform, version string) string {
		return filepath.Join(p.Home, "Documents", "KiCad", version, "3rdparty")
	},
}

func dataHome(p Platform) string {
	if p.DataHome != "" {
		return p.DataHome
	}
	return filepath.Join(p.Home, ".local", "share")
}

// SystemRoot returns the version-scoped third-party root for p, before
// any environment override is applied.
func SystemRoot(p Platform, toolVersion string) (string, error) {
	fam, ok := families[p.OS]
	if !ok {
		return "", &UnsupportedPlatformError{OS: p.OS}
	}
	return systemRoots[fam](p, toolVersion), nil
}
