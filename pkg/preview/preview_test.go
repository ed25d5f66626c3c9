package preview

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestProjections(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	pl, err := NewPlotter(dir)
	if err != nil {
		t.Fatalf("NewPlotter() error = %v", err)
	}

	cloud := []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 2, Z: 3}, {X: -1, Y: 4, Z: 2}}
	files, err := pl.Projections("grain", "Grain 1",
		Layer{Label: "cloud", Points: cloud, Color: CloudColor},
		Layer{Label: "hull", Points: cloud[1:], Color: HullColor},
		Layer{Label: "empty", Color: HullColor},
	)
	if err != nil {
		t.Fatalf("Projections() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "grain_xy.png"),
		filepath.Join(dir, "grain_xz.png"),
		filepath.Join(dir, "grain_yz.png"),
	}
	if len(files) != len(want) {
		t.Fatalf("Projections() wrote %v, want %v", files, want)
	}
	for i, f := range files {
		if f != want[i] {
			t.Errorf("file %d = %q, want %q", i, f, want[i])
		}
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if !bytes.HasPrefix(data, pngMagic) {
			t.Errorf("%s is not a PNG", f)
		}
	}
}

func TestProjectionsRejectsNaN(t *testing.T) {
	pl, err := NewPlotter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = pl.Projections("bad", "bad", Layer{Label: "nan", Points: []r3.Vec{{X: math.NaN()}}, Color: CloudColor})
	if err == nil {
		t.Error("Projections() error = nil for NaN coordinates")
	}
}
