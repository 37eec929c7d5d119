// Package symbol patches generated KiCad symbol files (.kicad_sym).
//
// Edits are scoped to one symbol block and performed as targeted text
// operations, never a parse-and-reserialize of the whole file: the
// design tool's own formatting, sub-unit symbols and drawing primitives
// pass through byte for byte.
package symbol

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/partkit-dev/partkit/internal/fsutil"
)

// hiddenEffects is the display block attached to properties this tool
// adds. Metadata should be carried by the symbol, not drawn on the
// schematic.
const hiddenEffects = `(effects (font (size 1.27 1.27)) (hide yes))`

// Patcher edits a single symbol block inside a .kicad_sym file.
type Patcher struct {
	path  string
	text  string
	start int
	end   int
	block string
	dirty bool
}

// Open loads the symbol file and locates the block for symbolID. When
// the file holds exactly one top-level symbol, an empty or unmatched
// symbolID falls back to that block; otherwise the block must exist.
func Open(path, symbolID string) (*Patcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)

	blocks := findBlocks(text)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no symbol blocks in %s", path)
	}

	p := &Patcher{path: path, text: text, start: -1}
	if symbolID != "" {
		idRe := regexp.MustCompile(`^\(symbol\s+"` + regexp.QuoteMeta(symbolID) + `"`)
		for _, b := range blocks {
			if idRe.MatchString(text[b[0]:b[1]]) {
				p.start, p.end = b[0], b[1]
				break
			}
		}
	}
	if p.start == -1 {
		if len(blocks) != 1 && symbolID != "" {
			return nil, fmt.Errorf("symbol block %q not found in %s", symbolID, path)
		}
		p.start, p.end = blocks[0][0], blocks[0][1]
	}
	p.block = text[p.start:p.end]
	return p, nil
}

// findBlocks returns the spans of all top-level symbol blocks. The
// scan is quote-aware so parentheses inside property values do not
// unbalance it; sub-unit symbols nested in a block are skipped because
// the scan resumes after each block's close.
func findBlocks(src string) [][2]int {
	var blocks [][2]int
	idx := 0
	for {
		start := strings.Index(src[idx:], "(symbol ")
		if start == -1 {
			return blocks
		}
		start += idx

		depth := 0
		inString := false
		end := -1
	scan:
		for i := start; i < len(src); i++ {
			c := src[i]
			switch {
			case inString:
				if c == '\\' {
					i++
				} else if c == '"' {
					inString = false
				}
			case c == '"':
				inString = true
			case c == '(':
				depth++
			case c == ')':
				depth--
				if depth == 0 {
					end = i + 1
					break scan
				}
			}
		}
		if end == -1 {
			return blocks
		}
		blocks = append(blocks, [2]int{start, end})
		idx = end
	}
}

// Changed reports whether any edit actually modified the block.
func (p *Patcher) Changed() bool { return p.dirty }

// ApplyProperties upserts metadata properties into the symbol block.
//
// Existing properties are only filled in when currently empty, so
// values a user typed into the symbol editor survive a re-import.
// Missing properties are appended as hidden. The Footprint and Value
// properties are never touched here, and values that merely repeat the
// symbol's Value are skipped as noise. Returns the number of
// properties changed.
func (p *Patcher) ApplyProperties(props map[string]string) int {
	currentValue := strings.TrimSpace(p.propValue("Value"))

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	changes := 0
	for _, name := range names {
		trimmedName := strings.TrimSpace(name)
		if trimmedName == "" || trimmedName == "Footprint" || trimmedName == "Value" {
			continue
		}
		val := props[name]
		if strings.TrimSpace(val) == currentValue {
			continue
		}
		if p.hasProp(name) {
			if strings.TrimSpace(p.propValue(name)) != "" {
				continue
			}
			if p.setProp(name, val) {
				changes++
			}
			continue
		}
		p.appendProp(name, val)
		changes++
	}
	return changes
}

// SetFootprintLib rewrites the library nickname of the symbol's
// Footprint reference so it resolves through the table entry this tool
// manages. A bare footprint name gains the nickname; a stale nickname
// is replaced. Returns the number of references changed.
func (p *Patcher) SetFootprintLib(nickname string) int {
	changes := 0
	next := footprintRefRe.ReplaceAllStringFunc(p.block, func(m string) string {
		sub := footprintRefRe.FindStringSubmatch(m)
		ref := sub[2]
		if ref == "" {
			return m
		}
		fpName := ref
		if i := strings.IndexByte(ref, ':'); i >= 0 {
			fpName = ref[i+1:]
		}
		want := nickname + ":" + fpName
		if want == ref {
			return m
		}
		changes++
		return sub[1] + want + sub[3]
	})
	if changes > 0 {
		p.block = next
		p.dirty = true
	}
	return changes
}

// Save splices the edited block back and atomically replaces the file.
// A patcher with no effective changes leaves the file untouched.
func (p *Patcher) Save() error {
	if !p.dirty {
		return nil
	}
	next := p.text[:p.start] + p.block + p.text[p.end:]
	if next == p.text {
		return nil
	}
	if err := fsutil.WriteFileAtomic(p.path, []byte(next), fsutil.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save %s: %w", p.path, err)
	}
	p.text = next
	p.end = p.start + len(p.block)
	return nil
}

var footprintRefRe = regexp.MustCompile(`(\(property\s*(?:\n\s*)?"Footprint"\s*(?:\n\s*)?")([^"]*)(")`)

func propRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(\(property\s*"` + regexp.QuoteMeta(name) + `"\s*")([^"]*)(")`)
}

func (p *Patcher) hasProp(name string) bool {
	return propRe(name).MatchString(p.block)
}

func (p *Patcher) propValue(name string) string {
	m := propRe(name).FindStringSubmatch(p.block)
	if m == nil {
		return ""
	}
	return m[2]
}

func (p *Patcher) setProp(name, value string) bool {
	m := propRe(name).FindStringSubmatchIndex(p.block)
	if m == nil {
		return false
	}
	if p.block[m[4]:m[5]] == value {
		return false
	}
	safe := strings.ReplaceAll(value, `"`, "'")
	p.block = p.block[:m[4]] + safe + p.block[m[5]:]
	p.dirty = true
	return true
}

var atRe = regexp.MustCompile(`\(at[^)]*\)`)

// appendProp inserts a new hidden property just before the block's
// closing parenthesis, reusing the indentation and position of an
// existing property so the file keeps its shape.
func (p *Patcher) appendProp(name, value string) {
	indent := "  "
	for _, ln := range strings.Split(p.block, "\n") {
		if strings.HasPrefix(strings.TrimSpace(ln), "(property ") {
			indent = ln[:len(ln)-len(strings.TrimLeft(ln, " \t"))]
			break
		}
	}
	at := ""
	if m := atRe.FindString(p.templateProp()); m != "" {
		at = " " + m
	}

	safeName := strings.ReplaceAll(name, `"`, "'")
	safeVal := strings.ReplaceAll(value, `"`, "'")
	line := indent + `(property "` + safeName + `" "` + safeVal + `"` + at + " " + hiddenEffects + ")\n"

	closeAt := strings.LastIndexByte(p.block, ')')
	if closeAt == -1 {
		return
	}
	// Insert at the start of the closing line when the parenthesis
	// stands alone; otherwise splice directly before it so nothing
	// lands inside a nested block.
	insertAt := closeAt
	if nl := strings.LastIndexByte(p.block[:closeAt], '\n'); nl != -1 && strings.TrimSpace(p.block[nl+1:closeAt]) == "" {
		insertAt = nl + 1
	}
	p.block = p.block[:insertAt] + line + p.block[insertAt:]
	p.dirty = true
}

// templateProp returns the region of the Footprint property, falling
// back to Value, used as the layout template for new properties.
func (p *Patcher) templateProp() string {
	for _, name := range []string{"Footprint", "Value"} {
		if m := propRe(name).FindStringIndex(p.block); m != nil {
			end := m[1] + 120
			if end > len(p.block) {
				end = len(p.block)
			}
			return p.block[m[0]:end]
		}
	}
	return ""
}
