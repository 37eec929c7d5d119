// Package artifact installs generated library files at their resolved
// locations.
//
// The writer is idempotent: re-running an import replaces the previous
// files at the same paths instead of accumulating copies. Every file is
// placed with a temp-write and atomic rename so an interrupted run never
// leaves a half-written artifact where a library table could point at it.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/partkit-dev/partkit/internal/fsutil"
	"github.com/partkit-dev/partkit/pkg/kipath"
)

// Set is the output of one generator run for a single part: the staged
// files waiting to be installed. SymbolFile and FootprintFile may be
// empty when the generator produced nothing for that kind.
type Set struct {
	// Lib is the library name the artifacts install under,
	// e.g. "LCSC_C12345".
	Lib string

	// SymbolFile is the staged .kicad_sym path.
	SymbolFile string

	// FootprintFile is the staged .kicad_mod path.
	FootprintFile string

	// ModelFiles are the staged 3D model paths (.step, .wrl).
	ModelFiles []string
}

// Empty reports whether the set contains no files at all.
func (s Set) Empty() bool {
	return s.SymbolFile == "" && s.FootprintFile == "" && len(s.ModelFiles) == 0
}

// Written records where Write installed each artifact.
type Written struct {
	SymbolFile    string
	FootprintDir  string
	FootprintFile string
	ModelsDir     string
	ModelFiles    []string
}

// ErrCollision marks a destination occupied by the wrong kind of
// filesystem object: a directory where a file must go, or a regular
// file where a library directory must go. The writer never removes
// such objects.
var ErrCollision = errors.New("existing path blocks artifact placement")

// WriteError reports a failed artifact placement.
type WriteError struct {
	// Path is the destination that could not be written.
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write artifact %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer installs artifact sets. The zero value is ready to use.
type Writer struct{}

// Write places every file in the set under the resolved target paths:
// the symbol file as <lib>.kicad_sym, the footprint inside
// <lib>.pretty/ and the models inside <lib>.3dshapes/, keeping staged
// basenames for the latter two. It returns the installed paths, or a
// *WriteError describing the first placement that failed. Nothing that
// was already placed is rolled back.
func (w Writer) Write(ctx context.Context, set Set, targets kipath.LibraryPaths) (*Written, error) {
	if set.Lib == "" {
		return nil, &WriteError{Err: errors.New("artifact set has no library name")}
	}
	locs := targets.Lib(set.Lib)
	out := &Written{}

	if set.SymbolFile != "" {
		if err := ensureDir(targets.Symbols.Dir); err != nil {
			return nil, err
		}
		if err := place(ctx, set.SymbolFile, locs.SymbolFile.Dir); err != nil {
			return nil, err
		}
		out.SymbolFile = locs.SymbolFile.Dir
	}

	if set.FootprintFile != "" {
		if err := ensureDir(locs.FootprintDir.Dir); err != nil {
			return nil, err
		}
		dst := filepath.Join(locs.FootprintDir.Dir, filepath.Base(set.FootprintFile))
		if err := place(ctx, set.FootprintFile, dst); err != nil {
			return nil, err
		}
		out.FootprintDir = locs.FootprintDir.Dir
		out.FootprintFile = dst
	}

	if len(set.ModelFiles) > 0 {
		if err := ensureDir(locs.ModelsDir.Dir); err != nil {
			return nil, err
		}
		out.ModelsDir = locs.ModelsDir.Dir
		for _, src := range set.ModelFiles {
			dst := filepath.Join(locs.ModelsDir.Dir, filepath.Base(src))
			if err := place(ctx, src, dst); err != nil {
				return nil, err
			}
			out.ModelFiles = append(out.ModelFiles, dst)
		}
	}

	return out, nil
}

// ensureDir creates dir and its parents, refusing to replace an
// existing non-directory.
func ensureDir(dir string) error {
	if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
		return &WriteError{Path: dir, Err: ErrCollision}
	}
	if err := os.MkdirAll(dir, fsutil.DefaultDirPerm); err != nil {
		return &WriteError{Path: dir, Err: err}
	}
	return nil
}

func place(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
		return &WriteError{Path: dst, Err: ErrCollision}
	}
	if err := fsutil.CopyFileAtomic(src, dst, fsutil.DefaultFilePerm); err != nil {
		return &WriteError{Path: dst, Err: err}
	}
	return nil
}
