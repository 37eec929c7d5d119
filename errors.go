package partkit

import "fmt"

// Pipeline step names carried by ImportError and the step-error metric.
// StepRewrite covers both post-install artifact edits: 3D reference
// retargeting in the footprint and metadata patching in the symbol.
const (
	StepResolve  = "resolve"
	StepGenerate = "generate"
	StepWrite    = "write"
	StepRewrite  = "rewrite"
	StepTables   = "tables"
)

// ImportError wraps the first failure of an import pipeline with the
// step that produced it. The wrapped error is one of the step-level
// types (kipath.UnsupportedPlatformError, generate.GenerationError,
// artifact.WriteError, libtable.ParseError, ...) and stays reachable
// through errors.Is and errors.As.
type ImportError struct {
	// Step is the pipeline step that failed, one of the Step constants.
	Step string

	// Part is the catalog part the import was running for.
	Part string

	// Err is the step's own error.
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %s: %v", e.Part, e.Step, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }
