// Package kipath computes the on-disk directories and the
// variable-relative URIs that KiCad expects for symbol, footprint and
// 3D model libraries.
//
// Resolution is a pure function of its inputs: the same storage mode,
// platform description, tool version and options always yield the same
// paths. Nothing here touches the filesystem, so every layout decision
// can be exercised in tests from any platform.
package kipath

import (
	"errors"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Subdirectory names shared by both storage modes.
const (
	SymbolsDir    = "symbols"
	FootprintsDir = "footprints"
	Models3DDir   = "3dmodels"
)

// KiCad naming conventions for the three artifact kinds. A symbol
// library is a single file; footprint and 3D model libraries are
// directories.
const (
	SymbolLibExt    = ".kicad_sym"
	FootprintLibExt = ".pretty"
	ModelLibExt     = ".3dshapes"
)

// Defaults applied when an Options field is left empty.
const (
	DefaultToolVersion = "9.0"
	DefaultLibFolder   = "library"
	DefaultNamespace   = "com_github_partkit_dev_partkit"
)

// ProjectVar is the KiCad path variable expanding to the directory of
// the currently open project.
const ProjectVar = "KIPRJMOD"

// ErrInvalidToolVersion is returned when a tool version does not start
// with a numeric major component.
var ErrInvalidToolVersion = errors.New("tool version must start with a major version number")

// Location pairs a writable filesystem directory with the
// variable-relative URI KiCad resolves it from.
type Location struct {
	// Dir is the directory artifacts are written to. Absolute when the
	// caller supplied an absolute base, relative otherwise.
	Dir string

	// URI is the portable form stored in library tables and model
	// references, always forward-slash separated.
	URI string
}

// LibraryPaths is the full set of locations one import works against.
type LibraryPaths struct {
	Symbols    Location
	Footprints Location
	Models3D   Location
}

// LibraryLocations narrows LibraryPaths to one named library: the
// symbol file and the two library directories belonging to that name.
type LibraryLocations struct {
	SymbolFile   Location
	FootprintDir Location
	ModelsDir    Location
}

// Lib returns the locations of the named library inside the resolved
// paths, applying the KiCad file and directory naming conventions.
func (p LibraryPaths) Lib(name string) LibraryLocations {
	return LibraryLocations{
		SymbolFile:   p.Symbols.join(name + SymbolLibExt),
		FootprintDir: p.Footprints.join(name + FootprintLibExt),
		ModelsDir:    p.Models3D.join(name + ModelLibExt),
	}
}

func (l Location) join(elem string) Location {
	return Location{
		Dir: filepath.Join(l.Dir, elem),
		URI: l.URI + "/" + elem,
	}
}

// Options refines resolution beyond mode and platform.
type Options struct {
	// ProjectDir is the project root for ModeProject. When empty, Dir
	// fields come back relative to the project root.
	ProjectDir string

	// LibFolder is the library folder name inside the project,
	// DefaultLibFolder when empty. ModeProject only.
	LibFolder string

	// Namespace isolates this tool's libraries inside the shared
	// third-party tree, DefaultNamespace when empty. ModeSystem only.
	Namespace string

	// ThirdPartyRoot overrides the platform's computed third-party root,
	// typically from the KICAD<major>_3RD_PARTY environment variable.
	// ModeSystem only.
	ThirdPartyRoot string
}

// Resolve computes the three library locations for a storage mode.
//
// Project mode depends on neither platform nor tool version and never
// fails. System mode returns *UnsupportedPlatformError when the
// platform has no known third-party layout, unless Options carries an
// explicit ThirdPartyRoot.
func Resolve(mode StorageMode, p Platform, toolVersion string, opts Options) (LibraryPaths, error) {
	switch mode {
	case ModeProject:
		return resolveProject(opts), nil
	case ModeSystem:
		return resolveSystem(p, toolVersion, opts)
	default:
		return LibraryPaths{}, errors.New("unknown storage mode " + string(mode))
	}
}

func resolveProject(opts Options) LibraryPaths {
	folder := opts.LibFolder
	if folder == "" {
		folder = DefaultLibFolder
	}
	loc := func(sub string) Location {
		return Location{
			Dir: filepath.Join(opts.ProjectDir, folder, sub),
			URI: "${" + ProjectVar + "}/" + path.Join(folder, sub),
		}
	}
	return LibraryPaths{
		Symbols:    loc(SymbolsDir),
		Footprints: loc(FootprintsDir),
		Models3D:   loc(Models3DDir),
	}
}

func resolveSystem(p Platform, toolVersion string, opts Options) (LibraryPaths, error) {
	if toolVersion == "" {
		toolVersion = DefaultToolVersion
	}
	envVar, err := ThirdPartyVar(toolVersion)
	if err != nil {
		return LibraryPaths{}, err
	}
	root := opts.ThirdPartyRoot
	if root == "" {
		root, err = SystemRoot(p, toolVersion)
		if err != nil {
			return LibraryPaths{}, err
		}
	}
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	loc := func(sub string) Location {
		return Location{
			Dir: filepath.Join(root, sub, ns),
			URI: "${" + envVar + "}/" + path.Join(sub, ns),
		}
	}
	return LibraryPaths{
		Symbols:    loc(SymbolsDir),
		Footprints: loc(FootprintsDir),
		Models3D:   loc(Models3DDir),
	}, nil
}

// ThirdPartyVar returns the name of the environment variable KiCad uses
// for its third-party root, e.g. "KICAD9_3RD_PARTY" for version "9.0".
func ThirdPartyVar(toolVersion string) (string, error) {
	major, err := MajorVersion(toolVersion)
	if err != nil {
		return "", err
	}
	return "KICAD" + major + "_3RD_PARTY", nil
}

// MajorVersion extracts the leading numeric component of a tool
// version, so "9.0" and "9.0.4" both yield "9".
func MajorVersion(toolVersion string) (string, error) {
	i := 0
	for i < len(toolVersion) && toolVersion[i] >= '0' && toolVersion[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", ErrInvalidToolVersion
	}
	return toolVersion[:i], nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName collapses every run of characters outside [A-Za-z0-9._-]
// into a single underscore, producing a name usable as a file or
// library identifier on all supported platforms.
func SafeName(s string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
}
