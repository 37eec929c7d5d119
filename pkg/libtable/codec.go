package libtable

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Decode parses raw table bytes. Empty or whitespace-only input yields
// an empty table of the requested kind: a fresh project has no table
// file yet, and that is not an error.
func Decode(kind Kind, data []byte) (*Table, error) {
	t := New(kind)
	if len(bytes.TrimSpace(data)) == 0 {
		return t, nil
	}

	const (
		stateHeader = iota
		stateBody
		stateClosed
	)
	state := stateHeader

	rawLines := splitLines(data)
	t.eol = terminator(rawLines[0])
	if t.eol == "" {
		t.eol = "\n"
	}

	for i, raw := range rawLines {
		lineNo := i + 1
		content := strings.TrimRight(raw, "\r\n")
		trimmed := strings.TrimSpace(content)

		if trimmed == "" {
			t.lines = append(t.lines, segment{raw: raw, entry: -1})
			continue
		}

		switch state {
		case stateHeader:
			switch trimmed {
			case kind.header():
				state = stateBody
			case kind.header() + ")":
				t.closerIdx = len(t.lines)
				state = stateClosed
			default:
				return nil, &ParseError{Line: lineNo, Reason: "expected " + kind.header() + " header, found " + preview(trimmed)}
			}
			t.lines = append(t.lines, segment{raw: raw, entry: -1})

		case stateBody:
			switch {
			case strings.HasPrefix(trimmed, "(lib") && isRecordStart(trimmed):
				e, err := parseEntry(content)
				if err != nil {
					return nil, &ParseError{Line: lineNo, Reason: err.Error()}
				}
				e.term = terminator(raw)
				t.lines = append(t.lines, segment{entry: len(t.entries)})
				t.entries = append(t.entries, e)

			case strings.HasPrefix(trimmed, "(version"):
				version, closed, err := parseVersion(trimmed)
				if err != nil {
					return nil, &ParseError{Line: lineNo, Reason: err.Error()}
				}
				t.Version = version
				if closed {
					t.closerIdx = len(t.lines)
					state = stateClosed
				}
				t.lines = append(t.lines, segment{raw: raw, entry: -1})

			case trimmed == ")":
				t.closerIdx = len(t.lines)
				state = stateClosed
				t.lines = append(t.lines, segment{raw: raw, entry: -1})

			default:
				return nil, &ParseError{Line: lineNo, Reason: "unrecognized line " + preview(trimmed)}
			}

		case stateClosed:
			return nil, &ParseError{Line: lineNo, Reason: "content after table close"}
		}
	}

	if state == stateBody {
		return nil, &ParseError{Line: len(rawLines), Reason: "missing closing parenthesis"}
	}
	return t, nil
}

// DecodeFile reads and parses the table at path. A missing file is an
// empty table. Parse failures carry the file name and line number.
func DecodeFile(kind Kind, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(kind), nil
	}
	if err != nil {
		return nil, err
	}
	t, err := Decode(kind, data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	return t, nil
}

// Encode serializes the table. Lines from the source file are emitted
// verbatim; replaced entries are re-rendered in place and appended
// entries are inserted just before the closing parenthesis.
func (t *Table) Encode() []byte {
	if t.closerIdx == -1 {
		return t.encodeFresh()
	}

	// Entries backed by a source line come first in the slice, in file
	// order; anything past them was appended by Upsert.
	backed := 0
	for _, seg := range t.lines {
		if seg.entry >= 0 {
			backed++
		}
	}
	appended := t.entries[backed:]

	var b bytes.Buffer
	for idx, seg := range t.lines {
		if idx == t.closerIdx && len(appended) > 0 {
			t.writeCloser(&b, seg, appended)
			continue
		}
		if seg.entry >= 0 {
			e := t.entries[seg.entry]
			if e.raw != "" {
				b.WriteString(e.raw)
			} else {
				b.WriteString(render(e))
			}
			b.WriteString(e.term)
			continue
		}
		b.WriteString(seg.raw)
	}
	return b.Bytes()
}

// encodeFresh builds a complete file for a table with no backing
// structure. With no entries there is nothing to persist yet.
func (t *Table) encodeFresh() []byte {
	if len(t.entries) == 0 {
		return nil
	}
	version := t.Version
	if version == 0 {
		version = DefaultVersion
	}
	var b bytes.Buffer
	b.WriteString(t.Kind.header())
	b.WriteString(t.eol)
	b.WriteString("  (version " + strconv.Itoa(version) + ")")
	b.WriteString(t.eol)
	for _, e := range t.entries {
		b.WriteString(render(e))
		b.WriteString(t.eol)
	}
	b.WriteString(")")
	b.WriteString(t.eol)
	return b.Bytes()
}

// writeCloser emits the closing line of the table with the appended
// entries inserted before the final parenthesis. When the closer
// shares a line with other content (a fresh-file "(version 7))"), the
// line is split so every record ends up on its own line.
func (t *Table) writeCloser(b *bytes.Buffer, seg segment, appended []Entry) {
	content := strings.TrimRight(seg.raw, "\r\n")
	term := seg.raw[len(content):]
	writeEntries := func() {
		for _, e := range appended {
			b.WriteString(render(e))
			b.WriteString(t.eol)
		}
	}
	if strings.TrimSpace(content) == ")" {
		writeEntries()
		b.WriteString(seg.raw)
		return
	}
	cut := strings.LastIndexByte(content, ')')
	b.WriteString(content[:cut])
	b.WriteString(t.eol)
	writeEntries()
	b.WriteString(")")
	b.WriteString(content[cut+1:])
	b.WriteString(term)
}

// isRecordStart checks that "(lib" is the whole token, not a prefix of
// something like "(library".
func isRecordStart(trimmed string) bool {
	if len(trimmed) == 4 {
		return false
	}
	c := trimmed[4]
	return c == ' ' || c == '\t' || c == '('
}

var versionRe = regexp.MustCompile(`^\(version\s+(\d+)\)(\))?$`)

func parseVersion(trimmed string) (version int, closed bool, err error) {
	m := versionRe.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, false, errors.New("malformed version line")
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, errors.New("malformed version number")
	}
	return v, m[2] != "", nil
}

// parseEntry parses one (lib ...) record occupying the whole line.
// The record must be self-contained: the table's closing parenthesis
// is never accepted on an entry line.
func parseEntry(content string) (Entry, error) {
	var e Entry
	i, n := 0, len(content)
	skipSpace := func() {
		for i < n && (content[i] == ' ' || content[i] == '\t') {
			i++
		}
	}

	skipSpace()
	if !strings.HasPrefix(content[i:], "(lib") {
		return e, errors.New("not a library record")
	}
	i += len("(lib")

	for {
		skipSpace()
		if i >= n {
			return e, errors.New("unterminated record")
		}
		if content[i] == ')' {
			i++
			break
		}
		if content[i] != '(' {
			return e, errors.New("unexpected character " + strconv.Quote(string(content[i])))
		}
		i++

		keyStart := i
		for i < n && !isKeyEnd(content[i]) {
			i++
		}
		key := content[keyStart:i]
		if key == "" {
			return e, errors.New("empty field name")
		}
		skipSpace()
		if i >= n {
			return e, errors.New("unterminated field " + strconv.Quote(key))
		}

		var value string
		flag := false
		switch content[i] {
		case ')':
			flag = true
		case '"':
			i++
			valStart := i
			for i < n && content[i] != '"' {
				if content[i] == '\\' && i+1 < n {
					i++
				}
				i++
			}
			if i >= n {
				return e, errors.New("unterminated quoted string in field " + strconv.Quote(key))
			}
			value = content[valStart:i]
			i++
			skipSpace()
		default:
			valStart := i
			for i < n && content[i] != ')' && content[i] != ' ' && content[i] != '\t' {
				i++
			}
			value = content[valStart:i]
			skipSpace()
		}
		if i >= n || content[i] != ')' {
			return e, errors.New("malformed field " + strconv.Quote(key))
		}
		i++

		switch key {
		case "name":
			e.Name = value
		case "type":
			e.Type = value
		case "uri":
			e.URI = value
		case "options":
			e.Options = value
		case "descr":
			e.Descr = value
		default:
			e.Extra = append(e.Extra, Field{Key: key, Value: value, Flag: flag})
		}
	}

	if strings.TrimSpace(content[i:]) != "" {
		return e, errors.New("trailing content after record")
	}
	if e.Name == "" {
		return e, errors.New("record missing name field")
	}
	e.raw = content
	return e, nil
}

func isKeyEnd(c byte) bool {
	switch c {
	case ' ', '\t', '(', ')', '"':
		return true
	}
	return false
}

// splitLines splits data into lines, each keeping its terminator.
func splitLines(data []byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			out = append(out, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, string(data[start:]))
	}
	return out
}

func terminator(line string) string {
	if strings.HasSuffix(line, "\r\n") {
		return "\r\n"
	}
	if strings.HasSuffix(line, "\n") {
		return "\n"
	}
	return ""
}

func preview(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return strconv.Quote(s)
}
