// Package fsutil provides crash-safe file placement helpers shared by the
// artifact writer and the library-table store.
//
// All writes follow the same discipline: the content is written to a
// temporary file in the destination directory, flushed, and then moved over
// the destination with an atomic (or best-effort atomic on Windows)
// replacement. Readers never observe a half-written file.
package fsutil

import (
	"io"
	"os"
	"path/filepath"
)

// DefaultFilePerm is the permission used for files created by partkit.
const DefaultFilePerm os.FileMode = 0o644

// DefaultDirPerm is the permission used for directories created by partkit.
const DefaultDirPerm os.FileMode = 0o755

// WriteFileAtomic writes data to path via a same-directory temporary file and
// an atomic replace. The destination directory must already exist. On error
// the destination is left exactly as it was.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".partkit-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	// CreateTemp uses 0600; widen to the requested mode before the rename
	// so the destination never briefly tightens permissions.
	_ = os.Chmod(tmpPath, perm)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := replaceFile(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// CopyFileAtomic copies the regular file at src to dst with the same
// temp-then-replace discipline as WriteFileAtomic.
func CopyFileAtomic(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".partkit-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, perm)

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := replaceFile(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}
