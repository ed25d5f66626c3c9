package sdfx

import (
	"math"
	"testing"
)

func TestBoundingBox(t *testing.T) {
	k := New()
	box := k.Box(100, 50, 25)
	min, max := box.BoundingBox()

	const tol = 0.01
	expectMin := [3]float64{-50, -25, -12.5}
	expectMax := [3]float64{50, 25, 12.5}

	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected %f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	k := New()
	box := k.Box(10, 10, 10)
	translated := k.Translate(box, 100, 200, 300)

	min, max := translated.BoundingBox()

	// Translated box(10,10,10) by (100,200,300) should be centered at (100,200,300).
	const tol = 0.5
	expectMin := [3]float64{95, 195, 295}
	expectMax := [3]float64{105, 205, 305}

	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected ~%f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected ~%f", i, max[i], expectMax[i])
		}
	}
}

func TestRotate(t *testing.T) {
	k := New()
	box := k.Box(100, 10, 10)

	// A long box along X rotated 90 degrees around Z should extend along Y instead.
	rotated := k.Rotate(box, 0, 0, 90)
	min, max := rotated.BoundingBox()

	xExtent := max[0] - min[0]
	yExtent := max[1] - min[1]

	const tol = 1.0
	if math.Abs(xExtent-10) > tol {
		t.Errorf("rotated X extent = %f, expected ~10", xExtent)
	}
	if math.Abs(yExtent-100) > tol {
		t.Errorf("rotated Y extent = %f, expected ~100", yExtent)
	}
}

func TestContains(t *testing.T) {
	k := New()
	tests := []struct {
		name    string
		x, y, z float64
		want    bool
	}{
		{"inside wall", 30, 0, 0, true},
		{"on face", 50, 0, 0, true},
		{"corner", 50, 50, 50, true},
		{"outside", 51, 0, 0, false},
		{"inside hole", 0, 0, 10, false},
	}
	solid := k.Difference(k.Box(100, 100, 100), k.Sphere(20))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := k.Contains(solid, tt.x, tt.y, tt.z); got != tt.want {
				t.Errorf("Contains(%v, %v, %v) = %v, want %v", tt.x, tt.y, tt.z, got, tt.want)
			}
		})
	}
}

func TestBooleans(t *testing.T) {
	k := New()
	a := k.Box(10, 10, 10)
	b := k.Translate(k.Box(10, 10, 10), 8, 0, 0)

	u := k.Union(a, b)
	if !k.Contains(u, -4, 0, 0) || !k.Contains(u, 12, 0, 0) {
		t.Error("union should contain points of both boxes")
	}
	in := k.Intersection(a, b)
	if !k.Contains(in, 4, 0, 0) || k.Contains(in, -4, 0, 0) {
		t.Error("intersection should only contain the overlap")
	}
	cyl := k.Cylinder(20, 3)
	if !k.Contains(cyl, 0, 0, 9) || k.Contains(cyl, 4, 0, 0) {
		t.Error("cylinder containment wrong")
	}
}
