// Package generate produces staged library artifacts for catalog parts.
//
// Two backends are provided: Exec shells out to the easyeda2kicad
// converter, S3 downloads pre-converted artifacts from a shared team
// bucket. Both stage their output in a caller-owned directory and
// return an artifact.Set pointing into it; only the recognized artifact
// kinds are collected, so stray converter output is never installed.
package generate

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/partkit-dev/partkit/pkg/artifact"
	"github.com/partkit-dev/partkit/pkg/kipath"
)

// Backend names, used in logs and metric labels.
const (
	BackendExec = "exec"
	BackendS3   = "s3"
)

// Request identifies one part to generate artifacts for.
type Request struct {
	// Part is the catalog identifier, e.g. "C12345".
	Part string

	// Lib is the library name the artifacts will install under.
	Lib string

	// StagingDir is an existing directory the backend may fill. The
	// caller owns it and removes it after the returned set has been
	// installed.
	StagingDir string

	// OnProgress, when set, receives one line of backend output at a
	// time as the run proceeds.
	OnProgress func(line string)
}

// ErrNoArtifacts is wrapped by GenerationError when a run finishes
// without producing any recognized artifact file.
var ErrNoArtifacts = errors.New("no artifacts produced")

// ErrNotCached is wrapped by the S3 backend when the bucket holds
// nothing for the requested part.
var ErrNotCached = errors.New("part not present in artifact cache")

// GenerationError reports a failed backend run. The wrapped error is
// surfaced verbatim; retries are the backend's concern, never partkit's.
type GenerationError struct {
	Backend string
	Part    string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s via %s: %v", e.Part, e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func genErr(backend, part string, err error) error {
	return &GenerationError{Backend: backend, Part: part, Err: err}
}

var modelExts = map[string]bool{
	".step": true,
	".stp":  true,
	".wrl":  true,
}

// collect classifies the files under dir into an artifact set for lib.
// The first symbol library and the first footprint win (the converter
// emits one of each); every recognized 3D model file is included.
// Unrecognized files are ignored.
func collect(dir, lib string) (artifact.Set, error) {
	set := artifact.Set{Lib: lib}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(path, kipath.SymbolLibExt):
			if set.SymbolFile == "" {
				set.SymbolFile = path
			}
		case strings.HasSuffix(path, ".kicad_mod"):
			if set.FootprintFile == "" {
				set.FootprintFile = path
			}
		case modelExts[strings.ToLower(filepath.Ext(path))]:
			set.ModelFiles = append(set.ModelFiles, path)
		}
		return nil
	})
	return set, err
}
