package errors

import (
	"bufio"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryResolve  Category = "resolve"
	CategoryGenerate Category = "generate"
	CategoryWrite    Category = "write"
	CategoryTable    Category = "table"
	CategoryConfig   Category = "config"
	CategoryServe    Category = "serve"
	CategoryCLI      Category = "cli"
)

// Location represents a position in a file, typically a library table
// line that failed to parse.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// PartkitError is a structured error with file location, suggestions, and documentation.
type PartkitError struct {
	// Code is a unique error identifier (e.g., "PK060").
	Code string

	// Category is the error type (resolve, generate, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains surrounding file lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example is a snippet showing the correct form.
	Example string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *PartkitError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *PartkitError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file location to the error and pulls in the
// surrounding lines for display.
func (e *PartkitError) WithLocation(file string, line, column int) *PartkitError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *PartkitError) WithSuggestion(s string) *PartkitError {
	e.Suggestion = s
	return e
}

// WithExample adds a snippet to the error.
func (e *PartkitError) WithExample(ex string) *PartkitError {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *PartkitError) WithDetail(d string) *PartkitError {
	e.Detail = d
	return e
}

// WithContext adds custom context lines to the error.
func (e *PartkitError) WithContext(lines []string) *PartkitError {
	e.Context = lines
	return e
}

// Wrap wraps another error.
func (e *PartkitError) Wrap(err error) *PartkitError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a PartkitError from a registered error code.
func New(code string) *PartkitError {
	template, ok := registry[code]
	if !ok {
		return &PartkitError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &PartkitError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new PartkitError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *PartkitError {
	return &PartkitError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a PartkitError.
func FromError(err error, code string) *PartkitError {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*PartkitError); ok {
		return pe
	}
	return New(code).Wrap(err)
}
