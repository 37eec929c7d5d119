// Package partkit imports parts from the LCSC catalog into KiCad
// libraries.
//
// One Importer serves one KiCad project. Each import runs the full
// provisioning pipeline: resolve the target locations for the storage
// mode, generate artifacts through the configured backend, install them
// with atomic writes, retarget the footprint's 3D model references and
// the symbol's metadata, and register both libraries in the project's
// sym-lib-table and fp-lib-table. The first failing step aborts the
// pipeline, and the tables are only touched after every artifact is in
// place.
//
// Create an Importer with partkit.New():
//
//	im, err := partkit.New(partkit.Options{
//	    ProjectDir: ".",
//	    Generator:  &generate.Exec{},
//	})
//	if err != nil {
//	    return err
//	}
//	summary, err := im.ImportPart(ctx, "C12345")
package partkit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/partkit-dev/partkit/pkg/artifact"
	"github.com/partkit-dev/partkit/pkg/generate"
	"github.com/partkit-dev/partkit/pkg/kipath"
	"github.com/partkit-dev/partkit/pkg/libtable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPrefix is prepended to sanitized part numbers to form library
// names when Options.Prefix is empty.
const DefaultPrefix = "LCSC_"

// tracerName identifies this module's spans in the global tracer
// provider.
const tracerName = "partkit"

// =============================================================================
// Public API Types
// =============================================================================

// Generator produces staged library artifacts for one part. Both
// backends in pkg/generate satisfy it; tests substitute their own.
type Generator interface {
	// Name identifies the backend in logs and metric labels.
	Name() string

	// Generate stages artifacts for the request and reports what it
	// produced. The staging directory in the request belongs to the
	// caller, which removes it after installing the set.
	Generate(ctx context.Context, req generate.Request) (artifact.Set, error)
}

// Metadata is optional catalog data attached to an import. It feeds the
// symbol's hidden properties and the table entry descriptions.
type Metadata struct {
	Manufacturer string            `json:"manufacturer,omitempty"`
	MPN          string            `json:"mpn,omitempty"`
	Description  string            `json:"description,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// ImportRequest describes one part to import.
type ImportRequest struct {
	// Part is the catalog part number, e.g. "C12345".
	Part string

	// Mode overrides the importer's default storage mode when set.
	Mode kipath.StorageMode

	// Metadata is optional catalog data for this part.
	Metadata Metadata

	// OnProgress, when set, receives generator output lines as the run
	// proceeds.
	OnProgress func(line string)
}

// ImportSummary reports what one successful import did.
type ImportSummary struct {
	Part    string             `json:"part"`
	Lib     string             `json:"lib"`
	Mode    kipath.StorageMode `json:"mode"`
	Backend string             `json:"backend"`

	// Installed artifact locations. Empty fields mean the generator
	// produced nothing of that kind.
	SymbolFile   string `json:"symbolFile,omitempty"`
	FootprintDir string `json:"footprintDir,omitempty"`
	ModelsDir    string `json:"modelsDir,omitempty"`
	Models       int    `json:"models"`

	// RewrittenModelRefs counts 3D references retargeted in the
	// footprint; PatchedProperties counts symbol fields added or filled.
	RewrittenModelRefs int `json:"rewrittenModelRefs"`
	PatchedProperties  int `json:"patchedProperties"`

	// Replaced reports a re-import: at least one table already carried
	// an entry for this library and it was overwritten in place.
	Replaced bool `json:"replaced"`

	Elapsed time.Duration `json:"elapsed"`
}

// =============================================================================
// Importer
// =============================================================================

// Options configures an Importer.
type Options struct {
	// ProjectDir is the KiCad project root. The library tables live
	// there, and in project mode the artifacts do too. Empty means the
	// current directory.
	ProjectDir string

	// Mode is the storage mode used when a request does not set one.
	// Default kipath.ModeProject.
	Mode kipath.StorageMode

	// Prefix is prepended to sanitized part numbers to form library
	// names. Default DefaultPrefix.
	Prefix string

	// LibFolder is the project library folder name. Default
	// kipath.DefaultLibFolder. Project mode only.
	LibFolder string

	// Namespace isolates this tool's libraries inside the shared
	// third-party tree. Default kipath.DefaultNamespace. System mode
	// only.
	Namespace string

	// ToolVersion is the KiCad version the paths target. Default
	// kipath.DefaultToolVersion.
	ToolVersion string

	// Platform describes the host. The zero value means the running
	// host.
	Platform kipath.Platform

	// Generator produces the staged artifacts. Required.
	Generator Generator

	// Logger receives structured import logs.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Importer runs imports against one project. Imports for the same
// project serialize their table updates on the project's Store;
// artifact writes for different parts may overlap.
type Importer struct {
	opts   Options
	store  *libtable.Store
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Importer for one project.
func New(opts Options) (*Importer, error) {
	if opts.Generator == nil {
		return nil, fmt.Errorf("partkit: Options.Generator is required")
	}
	if opts.Mode == "" {
		opts.Mode = kipath.ModeProject
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("partkit: unknown storage mode %q", opts.Mode)
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if kipath.SafeName(opts.Prefix) != opts.Prefix {
		return nil, fmt.Errorf("partkit: unsafe library prefix %q", opts.Prefix)
	}
	if opts.LibFolder != "" && kipath.SafeName(opts.LibFolder) != opts.LibFolder {
		return nil, fmt.Errorf("partkit: unsafe library folder %q", opts.LibFolder)
	}
	if opts.Namespace != "" && kipath.SafeName(opts.Namespace) != opts.Namespace {
		return nil, fmt.Errorf("partkit: unsafe namespace %q", opts.Namespace)
	}
	if opts.ToolVersion == "" {
		opts.ToolVersion = kipath.DefaultToolVersion
	}
	if _, err := kipath.MajorVersion(opts.ToolVersion); err != nil {
		return nil, fmt.Errorf("partkit: tool version %q: %w", opts.ToolVersion, err)
	}
	if opts.Platform.OS == "" {
		opts.Platform = kipath.Current()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Importer{
		opts:   opts,
		store:  libtable.NewStore(opts.ProjectDir),
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Store returns the library table store this importer mutates. Callers
// can read the registered entries through it; all writes stay inside
// the import pipeline.
func (im *Importer) Store() *libtable.Store { return im.store }

// Targets resolves the three library locations the way an import does:
// defaults applied, and the KICAD<major>_3RD_PARTY environment variable
// honored as the system-mode root override.
func Targets(mode kipath.StorageMode, p kipath.Platform, toolVersion string, opts kipath.Options) (kipath.LibraryPaths, error) {
	if toolVersion == "" {
		toolVersion = kipath.DefaultToolVersion
	}
	if mode == kipath.ModeSystem && opts.ThirdPartyRoot == "" {
		if envVar, err := kipath.ThirdPartyVar(toolVersion); err == nil {
			opts.ThirdPartyRoot = os.Getenv(envVar)
		}
	}
	return kipath.Resolve(mode, p, toolVersion, opts)
}
