package partkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/partkit-dev/partkit/internal/fsutil"
	"github.com/partkit-dev/partkit/internal/metrics"
	"github.com/partkit-dev/partkit/pkg/artifact"
	"github.com/partkit-dev/partkit/pkg/footprint"
	"github.com/partkit-dev/partkit/pkg/generate"
	"github.com/partkit-dev/partkit/pkg/kipath"
	"github.com/partkit-dev/partkit/pkg/libtable"
	"github.com/partkit-dev/partkit/pkg/symbol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ImportPart imports one part with the importer's default storage mode
// and no catalog metadata.
func (im *Importer) ImportPart(ctx context.Context, part string) (*ImportSummary, error) {
	return im.Import(ctx, ImportRequest{Part: part})
}

// Import runs the provisioning pipeline for one part: resolve,
// generate, write, rewrite, tables. The first failing step aborts the
// run and comes back wrapped in an *ImportError naming that step.
// Artifacts written before a later step failed stay on disk; the
// library tables are never left partially updated.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	if req.Part == "" {
		return nil, &ImportError{Step: StepResolve, Part: req.Part, Err: errors.New("empty part identifier")}
	}
	mode := req.Mode
	if mode == "" {
		mode = im.opts.Mode
	}
	if !mode.Valid() {
		return nil, &ImportError{Step: StepResolve, Part: req.Part, Err: fmt.Errorf("unknown storage mode %q", mode)}
	}

	lib := im.opts.Prefix + kipath.SafeName(req.Part)
	backend := im.opts.Generator.Name()
	start := time.Now()

	ctx, span := im.tracer.Start(ctx, "partkit.import", trace.WithAttributes(
		attribute.String("partkit.part", req.Part),
		attribute.String("partkit.lib", lib),
		attribute.String("partkit.mode", mode.String()),
		attribute.String("partkit.backend", backend),
	))
	defer span.End()

	im.logger.Info("import started", "part", req.Part, "lib", lib, "mode", mode, "backend", backend)

	summary, err := im.run(ctx, span, req, mode, lib)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordImport(mode.String(), metrics.StatusError, elapsed)
		var ie *ImportError
		if errors.As(err, &ie) {
			metrics.RecordStepError(ie.Step)
		}
		im.logger.Error("import failed", "part", req.Part, "error", err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	summary.Elapsed = elapsed
	metrics.RecordImport(mode.String(), metrics.StatusSuccess, elapsed)
	im.logger.Info("import complete", "part", req.Part, "lib", lib, "elapsed", elapsed, "replaced", summary.Replaced)
	return summary, nil
}

// run executes the pipeline steps in order. Every failure comes back as
// an *ImportError carrying the step name.
func (im *Importer) run(ctx context.Context, span trace.Span, req ImportRequest, mode kipath.StorageMode, lib string) (*ImportSummary, error) {
	fail := func(step string, err error) error {
		return &ImportError{Step: step, Part: req.Part, Err: err}
	}

	// Resolve the target locations for this storage mode.
	targets, err := Targets(mode, im.opts.Platform, im.opts.ToolVersion, kipath.Options{
		ProjectDir: im.opts.ProjectDir,
		LibFolder:  im.opts.LibFolder,
		Namespace:  im.opts.Namespace,
	})
	if err != nil {
		return nil, fail(StepResolve, err)
	}
	locs := targets.Lib(lib)
	span.AddEvent(StepResolve)

	// Generate artifacts into a staging directory. Only the recognized
	// artifact files leave it; the directory and any stray converter
	// output are discarded with it.
	staging, err := os.MkdirTemp("", "partkit-"+lib+"-*")
	if err != nil {
		return nil, fail(StepGenerate, err)
	}
	defer os.RemoveAll(staging)

	set, err := im.opts.Generator.Generate(ctx, generate.Request{
		Part:       req.Part,
		Lib:        lib,
		StagingDir: staging,
		OnProgress: req.OnProgress,
	})
	genStatus := metrics.StatusSuccess
	if err != nil {
		genStatus = metrics.StatusError
	}
	metrics.RecordGeneratorRun(im.opts.Generator.Name(), genStatus)
	if err != nil {
		return nil, fail(StepGenerate, err)
	}
	if set.Empty() {
		return nil, fail(StepGenerate, generate.ErrNoArtifacts)
	}
	// The importer owns library naming; a backend cannot rename the
	// install target.
	set.Lib = lib
	span.AddEvent(StepGenerate)

	// Install the set. The whole set is in place before any table is
	// touched, so a write failure leaves both tables as they were.
	written, err := artifact.Writer{}.Write(ctx, set, targets)
	if err != nil {
		return nil, fail(StepWrite, err)
	}
	span.AddEvent(StepWrite)

	// Post-install edits on the installed copies: 3D references point
	// at the models directory URI, the symbol gains catalog metadata
	// and a footprint reference that resolves through the table entry
	// registered below.
	refs, err := im.rewriteModels(written, locs)
	if err != nil {
		return nil, fail(StepRewrite, err)
	}
	patched, err := im.patchSymbol(written.SymbolFile, req.Metadata, lib)
	if err != nil {
		return nil, fail(StepRewrite, err)
	}
	span.AddEvent(StepRewrite)

	// Register both libraries. The store loads, updates and persists
	// the table pair under its lock; nothing reaches disk unless both
	// in-memory updates succeeded.
	replaced := false
	descr := entryDescr(req.Part, req.Metadata)
	err = im.store.Update(ctx, func(sym, fp *libtable.Table) error {
		if written.SymbolFile != "" {
			if sym.Upsert(libtable.Entry{Name: lib, URI: locs.SymbolFile.URI, Descr: descr}) {
				replaced = true
			}
		}
		if written.FootprintDir != "" {
			if fp.Upsert(libtable.Entry{Name: lib, URI: locs.FootprintDir.URI, Descr: descr}) {
				replaced = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fail(StepTables, err)
	}
	span.AddEvent(StepTables)

	return &ImportSummary{
		Part:               req.Part,
		Lib:                lib,
		Mode:               mode,
		Backend:            im.opts.Generator.Name(),
		SymbolFile:         written.SymbolFile,
		FootprintDir:       written.FootprintDir,
		ModelsDir:          written.ModelsDir,
		Models:             len(written.ModelFiles),
		RewrittenModelRefs: refs,
		PatchedProperties:  patched,
		Replaced:           replaced,
	}, nil
}

// rewriteModels retargets the installed footprint's 3D references at
// the models directory URI so they stay valid wherever the project
// lives. A footprint without model references passes through untouched.
func (im *Importer) rewriteModels(written *artifact.Written, locs kipath.LibraryLocations) (int, error) {
	if written.FootprintFile == "" {
		return 0, nil
	}
	data, err := os.ReadFile(written.FootprintFile)
	if err != nil {
		return 0, err
	}
	next, n := footprint.RewriteModelPaths(data, locs.ModelsDir.URI)
	if n == 0 {
		return 0, nil
	}
	if err := fsutil.WriteFileAtomic(written.FootprintFile, next, fsutil.DefaultFilePerm); err != nil {
		return 0, err
	}
	return n, nil
}

// patchSymbol upserts catalog metadata into the installed symbol as
// hidden properties and rewrites its Footprint reference to the library
// nickname this import registers. Generated symbols reference the
// converter's own output name; stale nicknames also show up in cached
// artifact sets, so the rewrite runs on every import and is a no-op
// when the reference already matches.
func (im *Importer) patchSymbol(path string, md Metadata, lib string) (int, error) {
	if path == "" {
		return 0, nil
	}
	p, err := symbol.Open(path, md.MPN)
	if err != nil {
		return 0, err
	}

	changes := p.SetFootprintLib(lib)

	props := make(map[string]string, len(md.Attributes)+3)
	for k, v := range md.Attributes {
		props[k] = v
	}
	if md.Manufacturer != "" {
		props["Manufacturer"] = md.Manufacturer
	}
	if md.MPN != "" {
		props["Manufacturer Part"] = md.MPN
	}
	if md.Description != "" {
		props["Description"] = md.Description
	}
	changes += p.ApplyProperties(props)

	if err := p.Save(); err != nil {
		return 0, err
	}
	return changes, nil
}

// entryDescr composes the table entry description from catalog
// metadata, falling back to the bare part number.
func entryDescr(part string, md Metadata) string {
	switch {
	case md.Description != "":
		return md.Description
	case md.Manufacturer != "" && md.MPN != "":
		return md.Manufacturer + " " + md.MPN
	case md.MPN != "":
		return md.MPN
	}
	return "LCSC " + part
}
