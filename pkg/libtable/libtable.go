// Package libtable reads, edits and writes KiCad library tables
// (sym-lib-table and fp-lib-table).
//
// The decoder keeps every line of the original file, so encoding a
// table reproduces untouched content byte for byte: unknown fields on
// an entry, user formatting, blank lines and CRLF endings all survive a
// round trip. Only entries replaced through Upsert are re-rendered.
//
// Malformed input fails loudly with a *ParseError instead of being
// partially understood. These files are hand-edited by users; guessing
// risks silently dropping their libraries.
package libtable

import (
	"fmt"
	"strings"
)

// Kind identifies which of the two library tables a file holds. Its
// value is the s-expression header token of the format.
type Kind string

const (
	KindSymbols    Kind = "sym_lib_table"
	KindFootprints Kind = "fp_lib_table"
)

// FileName returns the file name KiCad uses for this table kind.
func (k Kind) FileName() string {
	if k == KindFootprints {
		return "fp-lib-table"
	}
	return "sym-lib-table"
}

func (k Kind) header() string { return "(" + string(k) }

// DefaultVersion is the table format version written to new files.
const DefaultVersion = 7

// TypeKiCad is the library type tag for native-format libraries.
// Legacy-format libraries carry TypeLegacy instead.
const (
	TypeKiCad  = "KiCad"
	TypeLegacy = "Legacy"
)

// Field is a single (key "value") group on an entry that the table
// model does not interpret. Flag fields have no value, e.g. (disabled).
type Field struct {
	Key   string
	Value string
	Flag  bool
}

// Entry is one (lib ...) record.
//
// The five named fields are the ones KiCad always writes. Anything
// else found on the record lands in Extra, in file order, so inspection
// tools see the whole entry even when this package does not understand
// every field.
type Entry struct {
	Name    string
	Type    string
	URI     string
	Options string
	Descr   string
	Extra   []Field

	// raw is the original line content for decoded entries, emitted
	// verbatim on encode. Empty for constructed or replaced entries,
	// which are rendered canonically instead.
	raw string

	// term is the line terminator the entry carried in the source file.
	term string
}

// ParseError reports a line the decoder could not understand. The
// whole decode fails; no entries from the file are used.
type ParseError struct {
	File   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// segment is one line of the backing file. Entry lines point into the
// table's entry slice; every other line keeps its raw bytes.
type segment struct {
	raw   string // full line including terminator; unused for entry lines
	entry int    // index into Table.entries, or -1
}

// Table is an ordered library table bound to the line structure of the
// file it was decoded from. Lookup is by entry name; file position is
// preserved for everything an operation does not touch.
type Table struct {
	Kind    Kind
	Version int

	entries []Entry
	lines   []segment
	// closerIdx is the line holding the table's closing parenthesis,
	// -1 when the table was synthesized rather than decoded.
	closerIdx int
	eol       string
}

// New returns an empty table that encodes to a fresh file skeleton
// once it has entries.
func New(kind Kind) *Table {
	return &Table{Kind: kind, closerIdx: -1, eol: "\n"}
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup finds an entry by name.
func (t *Table) Lookup(name string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Has reports whether an entry with this name exists.
func (t *Table) Has(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Upsert inserts e or replaces the entry sharing its name. A replaced
// entry keeps its position in the table; a new entry is appended at
// the end. Every other entry is left untouched, byte for byte.
//
// Replacement is whole-entry: all fields of the previous entry,
// including manual edits to description or options, are superseded.
// It reports whether an existing entry was replaced.
func (t *Table) Upsert(e Entry) bool {
	e.raw = ""
	if e.Type == "" {
		e.Type = TypeKiCad
	}
	for i := range t.entries {
		if t.entries[i].Name == e.Name {
			e.term = t.entries[i].term
			t.entries[i] = e
			return true
		}
	}
	e.term = ""
	t.entries = append(t.entries, e)
	return false
}

// render produces the canonical single-line form of an entry.
func render(e Entry) string {
	var b strings.Builder
	b.WriteString(`  (lib (name "`)
	b.WriteString(quote(e.Name))
	b.WriteString(`")(type "`)
	b.WriteString(quote(e.Type))
	b.WriteString(`")(uri "`)
	b.WriteString(quote(e.URI))
	b.WriteString(`")(options "`)
	b.WriteString(quote(e.Options))
	b.WriteString(`")(descr "`)
	b.WriteString(quote(e.Descr))
	b.WriteString(`")`)
	for _, f := range e.Extra {
		if f.Flag {
			b.WriteString("(" + f.Key + ")")
		} else {
			b.WriteString("(" + f.Key + ` "` + quote(f.Value) + `")`)
		}
	}
	b.WriteString(")")
	return b.String()
}

// quote makes a value safe to embed in a quoted field. KiCad table
// values never contain double quotes; swapping them for single quotes
// mirrors how the upstream editors sanitize user text.
func quote(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
