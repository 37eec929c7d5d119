package footprint

import (
	"bytes"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

const sampleFootprint = `(footprint "SOT-23-5"
  (layer "F.Cu")
  (descr "SOT-23-5 package")
  (attr smd)
  (pad "1" smd roundrect (at -1.3 -0.95) (size 1 0.6) (layers "F.Cu" "F.Paste" "F.Mask"))
  (model "C:\\Users\\ada\\Documents\\easyeda2kicad\\easyeda2kicad.3dshapes\\SOT-23-5_L3.0-W1.7.step"
    (offset (xyz 0 0 0))
    (scale (xyz 1 1 1))
    (rotate (xyz 0 0 0))
  )
  (model "${EASYEDA2KICAD}/easyeda2kicad.3dshapes/SOT-23-5_L3.0-W1.7.wrl"
    (offset (xyz 0 0 0))
  )
)
`

const target = "${KIPRJMOD}/library/3dmodels/LCSC_C2040.3dshapes"

func TestRewriteModelPaths(t *testing.T) {
	out, n := RewriteModelPaths([]byte(sampleFootprint), target)
	if n != 2 {
		t.Fatalf("rewrote %d references, want 2", n)
	}

	got := string(out)
	if !strings.Contains(got, `(model "`+target+`/SOT-23-5_L3.0-W1.7.step"`) {
		t.Error("windows-style reference not retargeted")
	}
	if !strings.Contains(got, `(model "`+target+`/SOT-23-5_L3.0-W1.7.wrl"`) {
		t.Error("variable-prefixed reference not retargeted")
	}

	// Everything outside the quoted references is preserved.
	if !strings.Contains(got, `(pad "1" smd roundrect (at -1.3 -0.95) (size 1 0.6) (layers "F.Cu" "F.Paste" "F.Mask"))`) {
		t.Error("unrelated footprint content was altered")
	}
	if !strings.Contains(got, "(offset (xyz 0 0 0))") || !strings.Contains(got, "(rotate (xyz 0 0 0))") {
		t.Error("model block body was altered")
	}
}

func TestRewriteModelPathsIdempotent(t *testing.T) {
	once, n1 := RewriteModelPaths([]byte(sampleFootprint), target)
	if n1 == 0 {
		t.Fatal("first rewrite changed nothing")
	}
	twice, n2 := RewriteModelPaths(once, target)
	if n2 != 0 {
		t.Errorf("second rewrite changed %d references, want 0", n2)
	}
	if !bytes.Equal(once, twice) {
		t.Error("second rewrite altered contents")
	}
}

func TestRewriteModelPathsNoModels(t *testing.T) {
	in := []byte("(footprint \"R_0402\"\n  (layer \"F.Cu\")\n  (attr smd)\n)\n")
	out, n := RewriteModelPaths(in, target)
	if n != 0 {
		t.Errorf("rewrote %d references, want 0", n)
	}
	if !bytes.Equal(out, in) {
		t.Error("contents changed on pass-through")
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "a/b/c.step", want: "c.step"},
		{in: `C:\models\c.step`, want: "c.step"},
		{in: "c.step", want: "c.step"},
		{in: "${VAR}/dir/c.wrl", want: "c.wrl"},
	}
	for _, tt := range tests {
		if got := baseName(tt.in); got != tt.want {
			t.Errorf("baseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRewritePreservesSurroundings(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z0-9_.-]{1,16}`).Draw(rt, "file")
		prefix := rapid.StringMatching(`[a-z /().0-9\n-]{0,40}`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-z /().0-9\n-]{0,40}`).Draw(rt, "suffix")
		in := prefix + `(model "/abs/path/` + name + `"` + suffix

		out, n := RewriteModelPaths([]byte(in), target)
		if n != 1 {
			rt.Fatalf("rewrote %d references, want 1", n)
		}
		want := prefix + `(model "` + target + "/" + name + `"` + suffix
		if string(out) != want {
			rt.Fatalf("out = %q, want %q", out, want)
		}
	})
}

func BenchmarkRewriteModelPaths(b *testing.B) {
	data := []byte(sampleFootprint)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = RewriteModelPaths(data, target)
	}
}
