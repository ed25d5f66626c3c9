// Package vtu reads point clouds stored as VTK XML unstructured grids
// (.vtu). Only the point coordinates and the point-data arrays named after
// the tensor components are used; cells are ignored.
//
// Arrays may be ascii or inline binary (base64), raw or zlib-compressed.
// Appended data sections are not supported.
package vtu

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/grainhull/pkg/pointcloud"
	"github.com/klauspost/compress/zlib"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnsupported is returned for valid VTK files using features this
// reader does not implement.
var ErrUnsupported = errors.New("vtu: unsupported feature")

const zlibCompressor = "vtkZLibDataCompressor"

type vtkFile struct {
	XMLName    xml.Name `xml:"VTKFile"`
	Type       string   `xml:"type,attr"`
	ByteOrder  string   `xml:"byte_order,attr"`
	HeaderType string   `xml:"header_type,attr"`
	Compressor string   `xml:"compressor,attr"`
	Grid       struct {
		Pieces []piece `xml:"Piece"`
	} `xml:"UnstructuredGrid"`
}

type piece struct {
	NumberOfPoints int `xml:"NumberOfPoints,attr"`
	Points         struct {
		Arrays []dataArray `xml:"DataArray"`
	} `xml:"Points"`
	PointData struct {
		Arrays []dataArray `xml:"DataArray"`
	} `xml:"PointData"`
}

type dataArray struct {
	Type               string `xml:"type,attr"`
	Name               string `xml:"Name,attr"`
	NumberOfComponents int    `xml:"NumberOfComponents,attr"`
	Format             string `xml:"format,attr"`
	Data               string `xml:",chardata"`
}

// ReadFile reads the .vtu file at path.
func ReadFile(path string) (*pointcloud.PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pc, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pc, nil
}

// Read decodes a VTK XML unstructured grid from r. Pieces are concatenated
// in file order.
func Read(r io.Reader) (*pointcloud.PointCloud, error) {
	var vf vtkFile
	if err := xml.NewDecoder(r).Decode(&vf); err != nil {
		return nil, fmt.Errorf("vtu: decode xml: %w", err)
	}
	if vf.Type != "" && vf.Type != "UnstructuredGrid" {
		return nil, fmt.Errorf("%w: file type %q", ErrUnsupported, vf.Type)
	}
	d, err := newDecoder(vf)
	if err != nil {
		return nil, err
	}

	pc := pointcloud.New(nil)
	for pi, p := range vf.Grid.Pieces {
		if len(p.Points.Arrays) == 0 {
			if p.NumberOfPoints == 0 {
				continue
			}
			return nil, fmt.Errorf("vtu: piece %d: missing Points array", pi)
		}
		coords, err := d.decode(p.Points.Arrays[0])
		if err != nil {
			return nil, fmt.Errorf("vtu: piece %d: points: %w", pi, err)
		}
		if len(coords) != 3*p.NumberOfPoints {
			return nil, fmt.Errorf("vtu: piece %d: got %d coordinate values for %d points",
				pi, len(coords), p.NumberOfPoints)
		}
		for i := 0; i < len(coords); i += 3 {
			pc.Coords = append(pc.Coords, r3.Vec{X: coords[i], Y: coords[i+1], Z: coords[i+2]})
		}

		for _, arr := range p.PointData.Arrays {
			c, ok := component(arr.Name)
			if !ok {
				continue
			}
			vals, err := d.decode(arr)
			if err != nil {
				return nil, fmt.Errorf("vtu: piece %d: %s: %w", pi, arr.Name, err)
			}
			if len(vals) != p.NumberOfPoints {
				return nil, fmt.Errorf("vtu: piece %d: %s has %d values for %d points",
					pi, arr.Name, len(vals), p.NumberOfPoints)
			}
			pc.Values[c] = append(pc.Values[c], vals...)
		}
	}

	// A component missing from some pieces cannot be aligned with the
	// coordinates; drop it rather than mis-assign values.
	for c, vals := range pc.Values {
		if len(vals) != len(pc.Coords) {
			delete(pc.Values, c)
		}
	}
	return pc, nil
}

func component(name string) (pointcloud.Component, bool) {
	for _, c := range pointcloud.Components {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// decoder carries the file-level settings needed to decode binary arrays.
type decoder struct {
	order      binary.ByteOrder
	headerSize int
	compressed bool
}

func newDecoder(vf vtkFile) (*decoder, error) {
	d := &decoder{order: binary.LittleEndian, headerSize: 4}
	switch vf.ByteOrder {
	case "", "LittleEndian":
	case "BigEndian":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: byte order %q", ErrUnsupported, vf.ByteOrder)
	}
	switch vf.HeaderType {
	case "", "UInt32":
	case "UInt64":
		d.headerSize = 8
	default:
		return nil, fmt.Errorf("%w: header type %q", ErrUnsupported, vf.HeaderType)
	}
	switch vf.Compressor {
	case "":
	case zlibCompressor:
		d.compressed = true
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupported, vf.Compressor)
	}
	return d, nil
}

func (d *decoder) decode(arr dataArray) ([]float64, error) {
	switch arr.Format {
	case "ascii":
		return decodeASCII(arr.Data)
	case "binary":
		raw, err := d.binaryPayload(arr.Data)
		if err != nil {
			return nil, err
		}
		return d.values(raw, arr.Type)
	case "appended":
		return nil, fmt.Errorf("%w: appended data", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: array format %q", ErrUnsupported, arr.Format)
}

func decodeASCII(s string) ([]float64, error) {
	fields := strings.Fields(s)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// binaryPayload strips the base64 encoding and block header from an
// inline binary array and returns the raw element bytes.
func (d *decoder) binaryPayload(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if d.compressed {
		return d.inflate(s)
	}

	// Writers differ on whether the header shares a base64 stream with
	// the data, so try a single stream first.
	if whole, err := base64.StdEncoding.DecodeString(s); err == nil && len(whole) >= d.headerSize {
		n := d.header(whole[:d.headerSize])
		if uint64(len(whole)-d.headerSize) >= n {
			return whole[d.headerSize : uint64(d.headerSize)+n], nil
		}
	}
	hlen := encodedLen(d.headerSize)
	if len(s) < hlen {
		return nil, errors.New("truncated binary header")
	}
	hdr, err := base64.StdEncoding.DecodeString(s[:hlen])
	if err != nil {
		return nil, fmt.Errorf("binary header: %w", err)
	}
	n := d.header(hdr[:d.headerSize])
	data, err := base64.StdEncoding.DecodeString(s[hlen:])
	if err != nil {
		return nil, fmt.Errorf("binary data: %w", err)
	}
	if uint64(len(data)) < n {
		return nil, fmt.Errorf("binary data: have %d bytes, header says %d", len(data), n)
	}
	return data[:n], nil
}

// inflate decodes a zlib-compressed array: a separately encoded header of
// [blocks, blockSize, lastBlockSize, compressedSize...] followed by the
// compressed blocks.
func (d *decoder) inflate(s string) ([]byte, error) {
	prefix := encodedLen(3 * d.headerSize)
	if len(s) < prefix {
		return nil, errors.New("truncated compression header")
	}
	head, err := base64.StdEncoding.DecodeString(s[:prefix])
	if err != nil {
		return nil, fmt.Errorf("compression header: %w", err)
	}
	blocks := d.header(head[:d.headerSize])
	hlen := encodedLen((3 + int(blocks)) * d.headerSize)
	if len(s) < hlen {
		return nil, errors.New("truncated compression header")
	}
	head, err = base64.StdEncoding.DecodeString(s[:hlen])
	if err != nil {
		return nil, fmt.Errorf("compression header: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(s[hlen:])
	if err != nil {
		return nil, fmt.Errorf("compressed data: %w", err)
	}

	var out bytes.Buffer
	offset := uint64(0)
	for b := 0; b < int(blocks); b++ {
		size := d.header(head[(3+b)*d.headerSize:])
		if offset+size > uint64(len(data)) {
			return nil, fmt.Errorf("compressed block %d overruns data", b)
		}
		zr, err := zlib.NewReader(bytes.NewReader(data[offset : offset+size]))
		if err != nil {
			return nil, fmt.Errorf("compressed block %d: %w", b, err)
		}
		_, err = io.Copy(&out, zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("compressed block %d: %w", b, err)
		}
		offset += size
	}
	return out.Bytes(), nil
}

func (d *decoder) header(b []byte) uint64 {
	if d.headerSize == 8 {
		return d.order.Uint64(b)
	}
	return uint64(d.order.Uint32(b))
}

func encodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

func (d *decoder) values(raw []byte, typ string) ([]float64, error) {
	size, ok := typeSizes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: data type %q", ErrUnsupported, typ)
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s values", len(raw), typ)
	}
	vals := make([]float64, len(raw)/size)
	for i := range vals {
		b := raw[i*size : (i+1)*size]
		switch typ {
		case "Float32":
			vals[i] = float64(math.Float32frombits(d.order.Uint32(b)))
		case "Float64":
			vals[i] = math.Float64frombits(d.order.Uint64(b))
		case "Int32":
			vals[i] = float64(int32(d.order.Uint32(b)))
		case "Int64":
			vals[i] = float64(int64(d.order.Uint64(b)))
		case "UInt32":
			vals[i] = float64(d.order.Uint32(b))
		case "UInt64":
			vals[i] = float64(d.order.Uint64(b))
		}
	}
	return vals, nil
}

var typeSizes = map[string]int{
	"Float32": 4,
	"Float64": 8,
	"Int32":   4,
	"Int64":   8,
	"UInt32":  4,
	"UInt64":  8,
}
