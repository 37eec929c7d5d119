// Package footprint edits KiCad footprint files (.kicad_mod) without
// re-serializing them. The only field it understands is the 3D model
// reference; everything else passes through untouched, so user edits to
// pads, courtyards or attributes survive a rewrite.
package footprint

import (
	"bytes"
	"regexp"
	"strings"
)

// modelRe matches the opening of a 3D model block and captures the
// quoted path reference.
var modelRe = regexp.MustCompile(`\(model\s+"([^"]+)"`)

// RewriteModelPaths points every 3D model reference under target,
// keeping the referenced file name. The target is a variable-relative
// URI base such as
//
//	${KIPRJMOD}/library/3dmodels/LCSC_C2040.3dshapes
//
// so the footprint stays valid when the project moves between machines
// or the libraries live in the shared third-party tree.
//
// Only the quoted reference changes; offsets, scale, rotation and all
// other footprint content are preserved byte for byte. References that
// already point at target are left alone, which makes the rewrite
// idempotent. A footprint with no model blocks passes through
// unchanged. Returns the updated contents and the number of references
// rewritten.
func RewriteModelPaths(contents []byte, target string) ([]byte, int) {
	changed := 0
	out := modelRe.ReplaceAllFunc(contents, func(m []byte) []byte {
		sub := modelRe.FindSubmatch(m)
		ref := string(sub[1])
		next := target + "/" + baseName(ref)
		if next == ref {
			return m
		}
		changed++
		return bytes.Replace(m, []byte(`"`+ref+`"`), []byte(`"`+next+`"`), 1)
	})
	if changed == 0 {
		return contents, 0
	}
	return out, changed
}

// baseName returns the final path segment of a reference, tolerating
// both separator styles since generators on Windows emit backslashes.
func baseName(ref string) string {
	ref = strings.ReplaceAll(ref, "\\", "/")
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
