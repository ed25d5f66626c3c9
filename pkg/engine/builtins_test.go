package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/grainhull/pkg/kernel/sdfx"
	"github.com/chazu/grainhull/pkg/pointcloud"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(sphere :radius 40)`,
			expect: `(sphere "__kw_radius" 40)`,
		},
		{
			name:   "multiple keywords",
			input:  `(cylinder :height 100 :radius 20)`,
			expect: `(cylinder "__kw_height" 100 "__kw_radius" 20)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def outer-shell (box 1 2 3))`,
			expect: `(def outer_shell (box 1 2 3))`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(vec3 -10 0 -5)`,
			expect: `(vec3 -10 0 -5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:stress-xx`,
			expect: `"__kw_stress-xx"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Builtin tests
// ---------------------------------------------------------------------------

func evaluate(t *testing.T, source string) *Design {
	t.Helper()
	eng := NewEngine(sdfx.New())
	d, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if d == nil {
		t.Fatal("expected non-nil design")
	}
	return d
}

func bboxClose(t *testing.T, g Grain, wantMin, wantMax [3]float64) {
	t.Helper()
	min, max := g.Solid.BoundingBox()
	const tol = 0.01
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > tol || math.Abs(max[i]-wantMax[i]) > tol {
			t.Errorf("grain %q bounding box = %v..%v, want %v..%v", g.Name, min, max, wantMin, wantMax)
			return
		}
	}
}

func TestSimpleGrain(t *testing.T) {
	d := evaluate(t, `(grain "block" (box 100 50 25) :zz -3.5 :xy 1)`)
	if len(d.Grains) != 1 {
		t.Fatalf("expected 1 grain, got %d", len(d.Grains))
	}
	g, ok := d.Lookup("block")
	if !ok {
		t.Fatal("expected grain named 'block'")
	}
	bboxClose(t, g, [3]float64{-50, -25, -12.5}, [3]float64{50, 25, 12.5})
	want := pointcloud.Tensor{ZZ: -3.5, XY: 1}
	if g.Tensor != want {
		t.Errorf("tensor = %+v, want %+v", g.Tensor, want)
	}
	if g.Spacing != 0 {
		t.Errorf("spacing = %v, want 0", g.Spacing)
	}
}

func TestBoxSizeKeyword(t *testing.T) {
	d := evaluate(t, `(grain "b" (box :size (vec3 10 20 30)))`)
	bboxClose(t, d.Grains[0], [3]float64{-5, -10, -15}, [3]float64{5, 10, 15})
}

func TestVariableReference(t *testing.T) {
	source := `
(def core (sphere :radius 30))
(def shell (difference (box 100 100 100) core))
(grain "hollow" shell :spacing 10)
`
	d := evaluate(t, source)
	g := d.Grains[0]
	if g.Spacing != 10 {
		t.Errorf("spacing = %v, want 10", g.Spacing)
	}
	k := sdfx.New()
	if k.Contains(g.Solid, 0, 0, 0) {
		t.Error("hollow grain should not contain its center")
	}
	if !k.Contains(g.Solid, 45, 45, 45) {
		t.Error("hollow grain should contain points near its corner")
	}
}

func TestTransforms(t *testing.T) {
	source := `
(grain "moved" (translate (box 10 10 10) (vec3 100 -20 5)))
(grain "turned" (rotate (box 100 10 10) (vec3 0 0 90)))
`
	d := evaluate(t, source)
	moved, _ := d.Lookup("moved")
	bboxClose(t, moved, [3]float64{95, -25, 0}, [3]float64{105, -15, 10})

	turned, _ := d.Lookup("turned")
	min, max := turned.Solid.BoundingBox()
	if ext := max[1] - min[1]; math.Abs(ext-100) > 1 {
		t.Errorf("rotated Y extent = %v, want ~100", ext)
	}
}

func TestBooleansVariadic(t *testing.T) {
	source := `
(grain "row" (union (box 10 10 10)
                    (translate (box 10 10 10) (vec3 20 0 0))
                    (translate (box 10 10 10) (vec3 40 0 0))))
(grain "lens" (intersection (sphere 10) (translate (sphere 10) (vec3 10 0 0))))
(grain "can" (cylinder :height 40 :radius 5))
`
	d := evaluate(t, source)
	if len(d.Grains) != 3 {
		t.Fatalf("expected 3 grains, got %d", len(d.Grains))
	}
	k := sdfx.New()
	row, _ := d.Lookup("row")
	if !k.Contains(row.Solid, 40, 0, 0) || k.Contains(row.Solid, 10, 0, 0) {
		t.Error("union of three boxes has wrong containment")
	}
	lens, _ := d.Lookup("lens")
	if !k.Contains(lens.Solid, 5, 0, 0) || k.Contains(lens.Solid, -5, 0, 0) {
		t.Error("intersection of spheres has wrong containment")
	}
	can, _ := d.Lookup("can")
	if !k.Contains(can.Solid, 0, 0, 19) || k.Contains(can.Solid, 6, 0, 0) {
		t.Error("cylinder has wrong containment")
	}
}

func TestGrainOrder(t *testing.T) {
	d := evaluate(t, `
(grain "c" (sphere 1))
(grain "a" (sphere 2))
(grain "b" (sphere 3))
`)
	var names []string
	for _, g := range d.Grains {
		names = append(names, g.Name)
	}
	if got := strings.Join(names, ","); got != "c,a,b" {
		t.Errorf("grain order = %s, want c,a,b", got)
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{"negative box", `(box -1 2 3)`, "must be positive"},
		{"box arity", `(box 1 2)`, "box requires"},
		{"sphere missing radius", `(sphere)`, "requires a radius"},
		{"cylinder missing radius", `(cylinder :height 4)`, "requires a height and a radius"},
		{"union arity", `(union (sphere 1))`, "at least 2"},
		{"union non-solid", `(union (sphere 1) 5)`, "expected solid"},
		{"translate non-vec", `(translate (sphere 1) 5)`, "expected vec3"},
		{"vec3 arity", `(vec3 1 2)`, "vec3 requires"},
		{"grain without solid", `(grain "g")`, "requires a name and a solid"},
		{"grain bad name", `(grain 5 (sphere 1))`, "expected string"},
		{"duplicate grain", `(grain "g" (sphere 1)) (grain "g" (sphere 2))`, "already declared"},
		{"zero spacing", `(grain "g" (sphere 1) :spacing 0)`, "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(sdfx.New())
			d, evalErrs, err := eng.Evaluate(tt.source)
			if err != nil {
				t.Fatalf("fatal error: %v", err)
			}
			if d != nil {
				t.Error("expected nil design on error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected eval errors")
			}
			if !strings.Contains(evalErrs[0].Message, tt.wantMsg) {
				t.Errorf("error = %q, want containing %q", evalErrs[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestArithmeticInArguments(t *testing.T) {
	d := evaluate(t, `
(def half 25)
(grain "g" (box (* 2 half) (+ half 25) 50) :xx (- 0 2))
`)
	bboxClose(t, d.Grains[0], [3]float64{-25, -25, -25}, [3]float64{25, 25, 25})
	if d.Grains[0].Tensor.XX != -2 {
		t.Errorf("XX = %v, want -2", d.Grains[0].Tensor.XX)
	}
}
