package kipath

import (
	"fmt"
	"strings"
)

// StorageMode selects where generated libraries are placed: inside the
// current project, or in the shared per-user KiCad third-party area.
type StorageMode string

const (
	// ModeProject stores libraries under the project's library folder.
	ModeProject StorageMode = "project"

	// ModeSystem stores libraries in the user-wide, tool-version-scoped
	// third-party directory.
	ModeSystem StorageMode = "system"
)

// ParseStorageMode converts a user-supplied string to a StorageMode.
func ParseStorageMode(s string) (StorageMode, error) {
	switch StorageMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProject:
		return ModeProject, nil
	case ModeSystem:
		return ModeSystem, nil
	case "":
		return ModeProject, nil
	default:
		return "", fmt.Errorf("unknown storage mode %q (want %q or %q)", s, ModeProject, ModeSystem)
	}
}

// String returns the mode's canonical name.
func (m StorageMode) String() string { return string(m) }

// Valid reports whether m is one of the defined modes.
func (m StorageMode) Valid() bool { return m == ModeProject || m == ModeSystem }
