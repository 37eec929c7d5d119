// Package errors provides structured, actionable error messages for partkit.
//
// The errors package implements an error system that:
//   - Shows exact file locations (library table file, line)
//   - Explains what went wrong in plain language
//   - Suggests how to fix issues
//   - Links to documentation for deeper understanding
//
// # Error Categories
//
// Errors are organized into categories:
//   - resolve: path resolution errors (unsupported platform, bad version)
//   - generate: converter errors (missing tool, upstream failures)
//   - write: artifact placement errors
//   - table: library table parse and persist errors
//   - config: partkit.json errors
//   - serve: HTTP service errors
//   - cli: command-line usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "PK060") that maps to:
//   - A short message describing the error
//   - A detailed explanation
//   - A documentation URL
//
// # Usage
//
//	err := errors.New("PK060").
//	    WithLocation("sym-lib-table", 4, 0).
//	    WithSuggestion("Restore the file from version control, or delete it to start fresh")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR PK060: Library table parse failed
//	//
//	//   sym-lib-table:4
//	//
//	//      2 │   (version 7)
//	//      3 │   (lib (name "Audio")(type "KiCad")(uri "${KIPRJMOD}/audio.kicad_sym")(options "")(descr ""))
//	//   →  4 │   (lib (name "Broken"
//	//      5 │ )
//	//
//	//   Hint: Restore the file from version control, or delete it to start fresh
//	//
//	//   Learn more: https://partkit.dev/docs/errors/PK060
package errors
