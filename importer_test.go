package partkit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/partkit-dev/partkit/pkg/artifact"
	"github.com/partkit-dev/partkit/pkg/generate"
	"github.com/partkit-dev/partkit/pkg/kipath"
	"github.com/partkit-dev/partkit/pkg/libtable"
	"golang.org/x/sync/errgroup"
)

const testSymbol = `(kicad_symbol_lib (version 20231120) (generator "easyeda2kicad")
  (symbol "LMV321IDBVR" (in_bom yes) (on_board yes)
    (property "Reference" "U" (at 0 7.62 0) (effects (font (size 1.27 1.27))))
    (property "Value" "LMV321IDBVR" (at 0 5.08 0) (effects (font (size 1.27 1.27))))
    (property "Footprint" "easyeda2kicad:SOT-23-5" (at 0 -5.08 0) (effects (font (size 1.27 1.27)) (hide yes)))
    (property "Datasheet" "" (at 0 -7.62 0) (effects (font (size 1.27 1.27)) (hide yes)))
    (symbol "LMV321IDBVR_0_1"
      (rectangle (start -5.08 5.08) (end 5.08 -5.08)
        (stroke (width 0.254) (type default))
        (fill (type background))
      )
    )
  )
)
`

const testFootprint = `(footprint "SOT-23-5"
  (version 20240108)
  (generator "easyeda2kicad")
  (layer "F.Cu")
  (attr smd)
  (pad "1" smd roundrect (at -0.95 1.3) (size 0.6 1.1) (layers "F.Cu" "F.Paste" "F.Mask"))
  (model "/staging/LCSC_C12345.3dshapes/C12345.step"
    (offset (xyz 0 0 0))
    (scale (xyz 1 1 1))
    (rotate (xyz 0 0 0))
  )
)
`

// stubGenerator stages fixture artifacts the way a converter run would.
type stubGenerator struct {
	name      string
	symbol    string
	footprint string
	model     string
	err       error

	mu    sync.Mutex
	calls int
}

func fullStub() *stubGenerator {
	return &stubGenerator{symbol: testSymbol, footprint: testFootprint, model: "solid cube\n"}
}

func (g *stubGenerator) Name() string {
	if g.name != "" {
		return g.name
	}
	return "stub"
}

func (g *stubGenerator) Generate(ctx context.Context, req generate.Request) (artifact.Set, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return artifact.Set{}, err
	}
	if g.err != nil {
		return artifact.Set{}, g.err
	}
	if req.OnProgress != nil {
		req.OnProgress("converting " + req.Part)
		req.OnProgress("done " + req.Part)
	}

	set := artifact.Set{Lib: req.Lib}
	if g.symbol != "" {
		p := filepath.Join(req.StagingDir, req.Lib+".kicad_sym")
		if err := os.WriteFile(p, []byte(g.symbol), 0o644); err != nil {
			return artifact.Set{}, err
		}
		set.SymbolFile = p
	}
	if g.footprint != "" {
		dir := filepath.Join(req.StagingDir, req.Lib+".pretty")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return artifact.Set{}, err
		}
		p := filepath.Join(dir, "SOT-23-5.kicad_mod")
		if err := os.WriteFile(p, []byte(g.footprint), 0o644); err != nil {
			return artifact.Set{}, err
		}
		set.FootprintFile = p
	}
	if g.model != "" {
		dir := filepath.Join(req.StagingDir, req.Lib+".3dshapes")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return artifact.Set{}, err
		}
		p := filepath.Join(dir, req.Part+".step")
		if err := os.WriteFile(p, []byte(g.model), 0o644); err != nil {
			return artifact.Set{}, err
		}
		set.ModelFiles = []string{p}
	}
	return set, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportProjectScenario(t *testing.T) {
	dir := t.TempDir()
	im, err := New(Options{ProjectDir: dir, Generator: fullStub(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	sum, err := im.Import(context.Background(), ImportRequest{
		Part: "C12345",
		Metadata: Metadata{
			Manufacturer: "Texas Instruments",
			MPN:          "LMV321IDBVR",
			Description:  "Op amp",
			Attributes:   map[string]string{"Package": "SOT-23-5"},
		},
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	if sum.Lib != "LCSC_C12345" {
		t.Errorf("Lib = %q, want LCSC_C12345", sum.Lib)
	}
	wantSymbol := filepath.Join(dir, "library", "symbols", "LCSC_C12345.kicad_sym")
	if sum.SymbolFile != wantSymbol {
		t.Errorf("SymbolFile = %q, want %q", sum.SymbolFile, wantSymbol)
	}
	wantPretty := filepath.Join(dir, "library", "footprints", "LCSC_C12345.pretty")
	if sum.FootprintDir != wantPretty {
		t.Errorf("FootprintDir = %q, want %q", sum.FootprintDir, wantPretty)
	}
	wantShapes := filepath.Join(dir, "library", "3dmodels", "LCSC_C12345.3dshapes")
	if sum.ModelsDir != wantShapes {
		t.Errorf("ModelsDir = %q, want %q", sum.ModelsDir, wantShapes)
	}
	if sum.Models != 1 || sum.Replaced || sum.Backend != "stub" {
		t.Errorf("summary = %+v, want one model, no replacement, stub backend", sum)
	}

	// The installed footprint references its model through the project
	// variable.
	fp := readFile(t, filepath.Join(wantPretty, "SOT-23-5.kicad_mod"))
	wantRef := `(model "${KIPRJMOD}/library/3dmodels/LCSC_C12345.3dshapes/C12345.step"`
	if !strings.Contains(fp, wantRef) {
		t.Errorf("footprint missing rewritten model reference %q:\n%s", wantRef, fp)
	}
	if sum.RewrittenModelRefs != 1 {
		t.Errorf("RewrittenModelRefs = %d, want 1", sum.RewrittenModelRefs)
	}

	// The installed symbol carries the metadata and resolves its
	// footprint through the managed table entry.
	sym := readFile(t, wantSymbol)
	for _, want := range []string{
		`(property "Footprint" "LCSC_C12345:SOT-23-5"`,
		`(property "Manufacturer" "Texas Instruments"`,
		`(property "Description" "Op amp"`,
		`(property "Package" "SOT-23-5"`,
	} {
		if !strings.Contains(sym, want) {
			t.Errorf("symbol missing %q", want)
		}
	}
	if strings.Contains(sym, `(property "Manufacturer Part"`) {
		t.Error("symbol gained a Manufacturer Part property duplicating its Value")
	}
	if sum.PatchedProperties != 4 {
		t.Errorf("PatchedProperties = %d, want 4", sum.PatchedProperties)
	}

	// Both tables registered the library.
	symTbl, err := libtable.DecodeFile(libtable.KindSymbols, im.Store().SymbolPath())
	if err != nil {
		t.Fatalf("decode sym-lib-table: %v", err)
	}
	se, ok := symTbl.Lookup("LCSC_C12345")
	if !ok {
		t.Fatal("sym-lib-table has no LCSC_C12345 entry")
	}
	if se.URI != "${KIPRJMOD}/library/symbols/LCSC_C12345.kicad_sym" {
		t.Errorf("symbol entry uri = %q", se.URI)
	}
	if se.Type != libtable.TypeKiCad || se.Descr != "Op amp" {
		t.Errorf("symbol entry = %+v", se)
	}

	fpTbl, err := libtable.DecodeFile(libtable.KindFootprints, im.Store().FootprintPath())
	if err != nil {
		t.Fatalf("decode fp-lib-table: %v", err)
	}
	fe, ok := fpTbl.Lookup("LCSC_C12345")
	if !ok {
		t.Fatal("fp-lib-table has no LCSC_C12345 entry")
	}
	if fe.URI != "${KIPRJMOD}/library/footprints/LCSC_C12345.pretty" {
		t.Errorf("footprint entry uri = %q", fe.URI)
	}
}

func TestImportIdempotent(t *testing.T) {
	dir := t.TempDir()

	// A pre-existing entry with its own formatting and an unknown flag
	// must survive both runs byte for byte.
	seed := "(sym_lib_table\n" +
		"  (version 7)\n" +
		"  (lib (name \"house-parts\")  (type \"KiCad\")(uri \"${KIPRJMOD}/house.kicad_sym\")(options \"\")(descr \"hand edited\")(disabled))\n" +
		")\n"
	writeFile(t, filepath.Join(dir, "sym-lib-table"), seed)

	gen := fullStub()
	im, err := New(Options{ProjectDir: dir, Generator: gen, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	req := ImportRequest{
		Part:     "C12345",
		Metadata: Metadata{Manufacturer: "Texas Instruments", MPN: "LMV321IDBVR"},
	}

	if _, err := im.Import(context.Background(), req); err != nil {
		t.Fatalf("first Import() error: %v", err)
	}

	watched := []string{
		filepath.Join(dir, "sym-lib-table"),
		filepath.Join(dir, "fp-lib-table"),
		filepath.Join(dir, "library", "symbols", "LCSC_C12345.kicad_sym"),
		filepath.Join(dir, "library", "footprints", "LCSC_C12345.pretty", "SOT-23-5.kicad_mod"),
		filepath.Join(dir, "library", "3dmodels", "LCSC_C12345.3dshapes", "C12345.step"),
	}
	snapshot := make(map[string]string, len(watched))
	for _, p := range watched {
		snapshot[p] = readFile(t, p)
	}

	sum, err := im.Import(context.Background(), req)
	if err != nil {
		t.Fatalf("second Import() error: %v", err)
	}
	if !sum.Replaced {
		t.Error("second import should report the entry replacement")
	}
	if gen.calls != 2 {
		t.Errorf("generator ran %d times, want 2", gen.calls)
	}

	for _, p := range watched {
		if got := readFile(t, p); got != snapshot[p] {
			t.Errorf("%s changed on re-import:\n%s", filepath.Base(p), got)
		}
	}

	symTbl, err := libtable.DecodeFile(libtable.KindSymbols, im.Store().SymbolPath())
	if err != nil {
		t.Fatalf("decode sym-lib-table: %v", err)
	}
	entries := symTbl.Entries()
	if len(entries) != 2 || entries[0].Name != "house-parts" || entries[1].Name != "LCSC_C12345" {
		t.Fatalf("entries = %+v, want house-parts then LCSC_C12345", entries)
	}
	if !strings.Contains(readFile(t, im.Store().SymbolPath()), `(lib (name "house-parts")  (type "KiCad")`) {
		t.Error("pre-existing entry lost its original formatting")
	}
}

func TestImportGenerateFailureLeavesTablesUntouched(t *testing.T) {
	dir := t.TempDir()
	seed := "(sym_lib_table\n  (version 7)\n)\n"
	writeFile(t, filepath.Join(dir, "sym-lib-table"), seed)

	boom := errors.New("catalog exploded")
	im, err := New(Options{ProjectDir: dir, Generator: &stubGenerator{err: boom}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = im.ImportPart(context.Background(), "C12345")
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Step != StepGenerate {
		t.Fatalf("err = %v, want ImportError at %q", err, StepGenerate)
	}
	if !errors.Is(err, boom) {
		t.Error("generator cause not reachable through the import error")
	}
	if got := readFile(t, filepath.Join(dir, "sym-lib-table")); got != seed {
		t.Error("sym-lib-table modified by a failed import")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "library")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("artifacts written despite generation failure")
	}
}

func TestImportWriteFailureLeavesTablesUntouched(t *testing.T) {
	dir := t.TempDir()

	// A directory squatting on the symbol file target.
	blocker := filepath.Join(dir, "library", "symbols", "LCSC_C12345.kicad_sym")
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatal(err)
	}

	im, err := New(Options{ProjectDir: dir, Generator: fullStub(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = im.ImportPart(context.Background(), "C12345")
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Step != StepWrite {
		t.Fatalf("err = %v, want ImportError at %q", err, StepWrite)
	}
	if !errors.Is(err, artifact.ErrCollision) {
		t.Errorf("err = %v, want artifact.ErrCollision cause", err)
	}
	for _, p := range []string{im.Store().SymbolPath(), im.Store().FootprintPath()} {
		if _, statErr := os.Stat(p); !errors.Is(statErr, os.ErrNotExist) {
			t.Errorf("%s written despite artifact failure", filepath.Base(p))
		}
	}
}

func TestImportSystemMode(t *testing.T) {
	proj := t.TempDir()
	root := t.TempDir()
	t.Setenv("KICAD9_3RD_PARTY", root)

	im, err := New(Options{
		ProjectDir: proj,
		Mode:       kipath.ModeSystem,
		Generator:  fullStub(),
		Platform:   kipath.Platform{OS: "linux", Home: "/home/nobody"},
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	sum, err := im.ImportPart(context.Background(), "C2040")
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	wantSymbol := filepath.Join(root, "symbols", kipath.DefaultNamespace, "LCSC_C2040.kicad_sym")
	if sum.SymbolFile != wantSymbol {
		t.Errorf("SymbolFile = %q, want %q", sum.SymbolFile, wantSymbol)
	}

	// Tables stay with the project; URIs point into the shared tree.
	symTbl, err := libtable.DecodeFile(libtable.KindSymbols, filepath.Join(proj, "sym-lib-table"))
	if err != nil {
		t.Fatalf("decode sym-lib-table: %v", err)
	}
	se, ok := symTbl.Lookup("LCSC_C2040")
	if !ok {
		t.Fatal("sym-lib-table has no LCSC_C2040 entry")
	}
	wantURI := "${KICAD9_3RD_PARTY}/symbols/" + kipath.DefaultNamespace + "/LCSC_C2040.kicad_sym"
	if se.URI != wantURI {
		t.Errorf("entry uri = %q, want %q", se.URI, wantURI)
	}
	if se.Descr != "LCSC C2040" {
		t.Errorf("entry descr = %q, want the part fallback", se.Descr)
	}

	fp := readFile(t, filepath.Join(root, "footprints", kipath.DefaultNamespace, "LCSC_C2040.pretty", "SOT-23-5.kicad_mod"))
	wantRefBase := `(model "${KICAD9_3RD_PARTY}/3dmodels/` + kipath.DefaultNamespace + `/LCSC_C2040.3dshapes/`
	if !strings.Contains(fp, wantRefBase) {
		t.Errorf("footprint model reference not under %q:\n%s", wantRefBase, fp)
	}
}

func TestImportConcurrentParts(t *testing.T) {
	dir := t.TempDir()
	im, err := New(Options{ProjectDir: dir, Generator: fullStub(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	parts := []string{"C100", "C200", "C300", "C400"}
	var g errgroup.Group
	for _, part := range parts {
		part := part
		g.Go(func() error {
			_, err := im.ImportPart(context.Background(), part)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent imports: %v", err)
	}

	symTbl, err := libtable.DecodeFile(libtable.KindSymbols, im.Store().SymbolPath())
	if err != nil {
		t.Fatalf("decode sym-lib-table: %v", err)
	}
	fpTbl, err := libtable.DecodeFile(libtable.KindFootprints, im.Store().FootprintPath())
	if err != nil {
		t.Fatalf("decode fp-lib-table: %v", err)
	}
	if symTbl.Len() != len(parts) || fpTbl.Len() != len(parts) {
		t.Fatalf("table sizes = %d/%d, want %d each", symTbl.Len(), fpTbl.Len(), len(parts))
	}
	for _, part := range parts {
		if !symTbl.Has("LCSC_" + part) {
			t.Errorf("sym-lib-table lost LCSC_%s", part)
		}
		if !fpTbl.Has("LCSC_" + part) {
			t.Errorf("fp-lib-table lost LCSC_%s", part)
		}
	}
}

func TestImportProgress(t *testing.T) {
	dir := t.TempDir()
	im, err := New(Options{ProjectDir: dir, Generator: fullStub(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var lines []string
	_, err = im.Import(context.Background(), ImportRequest{
		Part:       "C7",
		OnProgress: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	want := []string{"converting C7", "done C7"}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Fatalf("progress lines = %q, want %q", lines, want)
	}
}

func TestImportCancelled(t *testing.T) {
	dir := t.TempDir()
	im, err := New(Options{ProjectDir: dir, Generator: fullStub(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = im.ImportPart(ctx, "C12345")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Step != StepGenerate {
		t.Fatalf("err = %v, want ImportError at %q", err, StepGenerate)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "sym-lib-table")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("table written despite cancellation")
	}
}

func TestImportRejectsBadRequests(t *testing.T) {
	dir := t.TempDir()
	im, err := New(Options{ProjectDir: dir, Generator: fullStub(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tests := []struct {
		name string
		req  ImportRequest
	}{
		{"empty part", ImportRequest{}},
		{"unknown mode", ImportRequest{Part: "C1", Mode: "floppy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Import(context.Background(), tt.req)
			var ie *ImportError
			if !errors.As(err, &ie) || ie.Step != StepResolve {
				t.Fatalf("err = %v, want ImportError at %q", err, StepResolve)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	gen := fullStub()
	tests := []struct {
		name string
		opts Options
	}{
		{"missing generator", Options{}},
		{"unknown mode", Options{Generator: gen, Mode: "cloud"}},
		{"unsafe prefix", Options{Generator: gen, Prefix: "LC SC/"}},
		{"unsafe folder", Options{Generator: gen, LibFolder: "my libs"}},
		{"unsafe namespace", Options{Generator: gen, Namespace: "a b"}},
		{"bad tool version", Options{Generator: gen, ToolVersion: "vNext"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	im, err := New(Options{Generator: gen})
	if err != nil {
		t.Fatalf("New() with defaults: %v", err)
	}
	if im.opts.Prefix != DefaultPrefix || im.opts.Mode != kipath.ModeProject {
		t.Errorf("defaults not applied: prefix %q, mode %q", im.opts.Prefix, im.opts.Mode)
	}
	if im.opts.ToolVersion != kipath.DefaultToolVersion || im.opts.Platform.OS == "" {
		t.Errorf("defaults not applied: tool version %q, platform %q", im.opts.ToolVersion, im.opts.Platform.OS)
	}
}

func TestTargetsEnvOverride(t *testing.T) {
	p := kipath.Platform{OS: "linux", Home: "/home/u"}

	t.Setenv("KICAD9_3RD_PARTY", "/opt/kicad-3rdparty")
	paths, err := Targets(kipath.ModeSystem, p, "9.0", kipath.Options{})
	if err != nil {
		t.Fatalf("Targets() error: %v", err)
	}
	wantDir := filepath.Join("/opt/kicad-3rdparty", "symbols", kipath.DefaultNamespace)
	if paths.Symbols.Dir != wantDir {
		t.Errorf("Symbols.Dir = %q, want %q", paths.Symbols.Dir, wantDir)
	}
	if want := "${KICAD9_3RD_PARTY}/symbols/" + kipath.DefaultNamespace; paths.Symbols.URI != want {
		t.Errorf("Symbols.URI = %q, want %q", paths.Symbols.URI, want)
	}

	// Without the override the platform family root applies.
	t.Setenv("KICAD9_3RD_PARTY", "")
	paths, err = Targets(kipath.ModeSystem, p, "9.0", kipath.Options{})
	if err != nil {
		t.Fatalf("Targets() error: %v", err)
	}
	wantDir = filepath.Join("/home/u", ".local", "share", "kicad", "9.0", "3rdparty", "symbols", kipath.DefaultNamespace)
	if paths.Symbols.Dir != wantDir {
		t.Errorf("Symbols.Dir = %q, want %q", paths.Symbols.Dir, wantDir)
	}
}

func TestEntryDescr(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		want string
	}{
		{"description wins", Metadata{Description: "Op amp", Manufacturer: "TI", MPN: "X"}, "Op amp"},
		{"manufacturer and part", Metadata{Manufacturer: "TI", MPN: "LMV321"}, "TI LMV321"},
		{"part only", Metadata{MPN: "LMV321"}, "LMV321"},
		{"fallback", Metadata{}, "LCSC C42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entryDescr("C42", tt.md); got != tt.want {
				t.Errorf("entryDescr() = %q, want %q", got, tt.want)
			}
		})
	}
}
