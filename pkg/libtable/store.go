package libtable

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/partkit-dev/partkit/internal/fsutil"
)

// Store owns the sym-lib-table/fp-lib-table pair of one project and
// serializes every read-modify-write against them. The decode, upsert
// and encode sequence is not safe to interleave, so all mutation goes
// through Update while the store's lock is held.
type Store struct {
	mu      sync.Mutex
	symPath string
	fpPath  string
}

// NewStore returns a store for the table files inside dir.
func NewStore(dir string) *Store {
	return &Store{
		symPath: filepath.Join(dir, KindSymbols.FileName()),
		fpPath:  filepath.Join(dir, KindFootprints.FileName()),
	}
}

// SymbolPath returns the symbol table file path.
func (s *Store) SymbolPath() string { return s.symPath }

// FootprintPath returns the footprint table file path.
func (s *Store) FootprintPath() string { return s.fpPath }

// Load reads both tables without taking the write path. Missing files
// come back as empty tables.
func (s *Store) Load() (sym, fp *Table, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (sym, fp *Table, err error) {
	sym, err = DecodeFile(KindSymbols, s.symPath)
	if err != nil {
		return nil, nil, err
	}
	fp, err = DecodeFile(KindFootprints, s.fpPath)
	if err != nil {
		return nil, nil, err
	}
	return sym, fp, nil
}

// Update runs fn against freshly loaded copies of both tables and, if
// fn succeeds, persists them. Nothing is written until both in-memory
// tables carry their final state: fn failing, or ctx being cancelled
// after fn, leaves both files exactly as they were. Each file is then
// replaced atomically.
func (s *Store) Update(ctx context.Context, fn func(sym, fp *Table) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sym, fp, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(sym, fp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	symData := sym.Encode()
	fpData := fp.Encode()

	if len(symData) > 0 {
		if err := fsutil.WriteFileAtomic(s.symPath, symData, fsutil.DefaultFilePerm); err != nil {
			return fmt.Errorf("failed to write %s: %w", s.symPath, err)
		}
	}
	if len(fpData) > 0 {
		if err := fsutil.WriteFileAtomic(s.fpPath, fpData, fsutil.DefaultFilePerm); err != nil {
			return fmt.Errorf("failed to write %s: %w", s.fpPath, err)
		}
	}
	return nil
}
