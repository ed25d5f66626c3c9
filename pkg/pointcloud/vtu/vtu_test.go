package vtu

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/grainhull/pkg/pointcloud"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
	"gonum.org/v1/gonum/spatial/r3"
)

const asciiGrid = `<?xml version="1.0"?>
<VTKFile type="UnstructuredGrid" version="0.1" byte_order="LittleEndian">
  <UnstructuredGrid>
    <Piece NumberOfPoints="2" NumberOfCells="0">
      <PointData>
        <DataArray type="Float64" Name="XX" format="ascii">1.5 2.5</DataArray>
        <DataArray type="Float64" Name="XY" format="ascii">-1 -2</DataArray>
        <DataArray type="Float64" Name="grain_id" format="ascii">7 7</DataArray>
      </PointData>
      <Points>
        <DataArray type="Float64" NumberOfComponents="3" format="ascii">
          0 25 50
          75 100 125
        </DataArray>
      </Points>
      <Cells>
        <DataArray type="Int32" Name="connectivity" format="ascii"></DataArray>
      </Cells>
    </Piece>
  </UnstructuredGrid>
</VTKFile>`

func TestReadASCII(t *testing.T) {
	pc, err := Read(strings.NewReader(asciiGrid))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := &pointcloud.PointCloud{
		Coords: []r3.Vec{{X: 0, Y: 25, Z: 50}, {X: 75, Y: 100, Z: 125}},
		Values: map[pointcloud.Component][]float64{
			pointcloud.XX: {1.5, 2.5},
			pointcloud.XY: {-1, -2},
		},
	}
	if diff := cmp.Diff(want, pc); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func float64Bytes(vals []float64) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
	}
	return buf.Bytes()
}

func uint32Bytes(vals ...uint32) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// rawBinary encodes header and data as one base64 stream.
func rawBinary(vals []float64) string {
	data := float64Bytes(vals)
	return base64.StdEncoding.EncodeToString(append(uint32Bytes(uint32(len(data))), data...))
}

// splitBinary encodes header and data as separate base64 streams.
func splitBinary(vals []float64) string {
	data := float64Bytes(vals)
	return base64.StdEncoding.EncodeToString(uint32Bytes(uint32(len(data)))) +
		base64.StdEncoding.EncodeToString(data)
}

// zlibBinary compresses vals as a single block.
func zlibBinary(t *testing.T, vals []float64) string {
	t.Helper()
	data := float64Bytes(vals)
	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	header := uint32Bytes(1, uint32(len(data)), uint32(len(data)), uint32(zbuf.Len()))
	return base64.StdEncoding.EncodeToString(header) + base64.StdEncoding.EncodeToString(zbuf.Bytes())
}

func binaryGrid(compressor string, coords, xx string) string {
	attr := ""
	if compressor != "" {
		attr = fmt.Sprintf(` compressor=%q`, compressor)
	}
	return fmt.Sprintf(`<VTKFile type="UnstructuredGrid" byte_order="LittleEndian" header_type="UInt32"%s>
  <UnstructuredGrid>
    <Piece NumberOfPoints="2" NumberOfCells="0">
      <PointData>
        <DataArray type="Float64" Name="XX" format="binary">%s</DataArray>
      </PointData>
      <Points>
        <DataArray type="Float64" NumberOfComponents="3" format="binary">%s</DataArray>
      </Points>
    </Piece>
  </UnstructuredGrid>
</VTKFile>`, attr, xx, coords)
}

func TestReadBinary(t *testing.T) {
	coords := []float64{0, 25, 50, -75, -100, -125}
	xx := []float64{3, 4}
	want := &pointcloud.PointCloud{
		Coords: []r3.Vec{{X: 0, Y: 25, Z: 50}, {X: -75, Y: -100, Z: -125}},
		Values: map[pointcloud.Component][]float64{pointcloud.XX: {3, 4}},
	}

	tests := []struct {
		name string
		src  string
	}{
		{"single stream", binaryGrid("", rawBinary(coords), rawBinary(xx))},
		{"split streams", binaryGrid("", splitBinary(coords), splitBinary(xx))},
		{"zlib", binaryGrid(zlibCompressor, zlibBinary(t, coords), zlibBinary(t, xx))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := Read(strings.NewReader(tt.src))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if diff := cmp.Diff(want, pc); diff != "" {
				t.Errorf("Read() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadUnsupported(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"other file type", `<VTKFile type="PolyData"></VTKFile>`},
		{"unknown compressor", `<VTKFile type="UnstructuredGrid" compressor="vtkLZ4DataCompressor"></VTKFile>`},
		{"appended", strings.Replace(asciiGrid, `NumberOfComponents="3" format="ascii"`,
			`NumberOfComponents="3" format="appended"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("Read() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestReadPointCountMismatch(t *testing.T) {
	src := strings.Replace(asciiGrid, `NumberOfPoints="2"`, `NumberOfPoints="3"`, 1)
	if _, err := Read(strings.NewReader(src)); err == nil {
		t.Fatal("Read() succeeded with wrong point count, want error")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grain.vtu")
	if err := os.WriteFile(path, []byte(asciiGrid), 0o644); err != nil {
		t.Fatal(err)
	}
	pc, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if pc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", pc.Len())
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.vtu")); err == nil {
		t.Error("ReadFile() on missing file succeeded, want error")
	}
}
