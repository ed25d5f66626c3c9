package phantom_test

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/grainhull/pkg/kernel"
	"github.com/chazu/grainhull/pkg/kernel/sdfx"
	"github.com/chazu/grainhull/pkg/phantom"
	"github.com/chazu/grainhull/pkg/pointcloud"
	"gonum.org/v1/gonum/spatial/r3"
)

// newKernel returns a fresh sdfx kernel for testing.
func newKernel() kernel.Kernel {
	return sdfx.New()
}

func TestSampleCounts(t *testing.T) {
	k := newKernel()
	tests := []struct {
		name    string
		solid   kernel.Solid
		spacing float64
		want    int
	}{
		{"box on lattice", k.Box(100, 100, 100), 25, 125},
		{"sphere", k.Sphere(50), 25, 33},
		{"shifted box", k.Translate(k.Box(30, 30, 30), 10, 0, 0), 10, 27},
		{"too small", k.Translate(k.Sphere(1), 5, 5, 5), 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := phantom.Sample(k, tt.solid, tt.spacing, pointcloud.Tensor{})
			if err != nil {
				t.Fatalf("Sample() error = %v", err)
			}
			if pc.Len() != tt.want {
				t.Errorf("Sample() has %d points, want %d", pc.Len(), tt.want)
			}
			for i, p := range pc.Coords {
				for _, c := range []float64{p.X, p.Y, p.Z} {
					if r := math.Remainder(c, tt.spacing); math.Abs(r) > 1e-9 {
						t.Fatalf("point %d = %v is off the lattice", i, p)
					}
				}
			}
		})
	}
}

func TestSampleOrderAndTensor(t *testing.T) {
	k := newKernel()
	tensor := pointcloud.Tensor{XX: 1, YY: 2, ZZ: 3, YZ: -1, XZ: -2, XY: -3}
	pc, err := phantom.Sample(k, k.Box(20, 20, 20), 10, tensor)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if err := pc.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got, want := pc.Coords[0], (r3.Vec{X: -10, Y: -10, Z: -10}); got != want {
		t.Errorf("first point = %v, want %v", got, want)
	}
	if got, want := pc.Coords[1], (r3.Vec{X: -10, Y: -10, Z: 0}); got != want {
		t.Errorf("second point = %v, want %v (z varies fastest)", got, want)
	}
	for i := 0; i < pc.Len(); i++ {
		if got := pc.Tensor(i); got != tensor {
			t.Fatalf("Tensor(%d) = %+v, want %+v", i, got, tensor)
		}
	}
}

func TestSampleErrors(t *testing.T) {
	k := newKernel()
	tests := []struct {
		name    string
		solid   kernel.Solid
		spacing float64
		want    error
	}{
		{"zero spacing", k.Sphere(1), 0, phantom.ErrInvalidSpacing},
		{"nan spacing", k.Sphere(1), math.NaN(), phantom.ErrInvalidSpacing},
		{"inf spacing", k.Sphere(1), math.Inf(1), phantom.ErrInvalidSpacing},
		{"too large", k.Box(1e4, 1e4, 1e4), 1, phantom.ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := phantom.Sample(k, tt.solid, tt.spacing, pointcloud.Tensor{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Sample() error = %v, want %v", err, tt.want)
			}
		})
	}
}
