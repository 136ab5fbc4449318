// Package stl implements the binary STL triangle-mesh format with an
// ASCII fallback decoder. Binary layout: 80-byte header, little-endian
// uint32 triangle count, then 50 bytes per triangle (normal, three
// vertices, 2-byte attribute count).
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	headerSize   = 80
	triangleSize = 50

	// vertexPrecision is the decimal precision used for vertex identity.
	// Two positions that agree after rounding share one pool entry.
	vertexPrecision = 6
)

var (
	// ErrUnrecognizedFormat is returned when input is neither valid binary
	// nor valid ASCII STL.
	ErrUnrecognizedFormat = errors.New("unrecognized STL (not valid binary or ASCII)")

	// ErrNoTriangles is returned when an ASCII body yields no complete triangles.
	ErrNoTriangles = errors.New("STL contains no triangles")
)

var headerText = []byte("vitaius-vestra binary STL")

// Vec3 is a point or direction in model space.
type Vec3 [3]float32

// Triangle references three vertices in the mesh's shared pool.
type Triangle struct {
	Normal Vec3
	V      [3]int
}

// Mesh is the in-memory triangle mesh: a pool of unique vertex positions
// and triangles indexing into it.
type Mesh struct {
	Vertices  []Vec3
	Triangles []Triangle
}

type vertexKey [3]float64

func keyOf(v Vec3) vertexKey {
	const scale = 1e6 // 10^vertexPrecision
	return vertexKey{
		math.Round(float64(v[0])*scale) / scale,
		math.Round(float64(v[1])*scale) / scale,
		math.Round(float64(v[2])*scale) / scale,
	}
}

// vertexPool deduplicates vertices by rounded position.
type vertexPool struct {
	verts []Vec3
	index map[vertexKey]int
}

func newVertexPool() *vertexPool {
	return &vertexPool{index: make(map[vertexKey]int)}
}

func (p *vertexPool) add(v Vec3) int {
	k := keyOf(v)
	if i, ok := p.index[k]; ok {
		return i
	}
	i := len(p.verts)
	p.verts = append(p.verts, v)
	p.index[k] = i
	return i
}

// faceNormal computes the right-hand unit normal of the triangle a, b, c.
// Degenerate triangles get a zero normal.
func faceNormal(a, b, c Vec3) Vec3 {
	ux, uy, uz := float64(b[0]-a[0]), float64(b[1]-a[1]), float64(b[2]-a[2])
	vx, vy, vz := float64(c[0]-a[0]), float64(c[1]-a[1]), float64(c[2]-a[2])
	nx := uy*vz - uz*vy
	ny := uz*vx - ux*vz
	nz := ux*vy - uy*vx
	length := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if length == 0 {
		return Vec3{}
	}
	return Vec3{float32(nx / length), float32(ny / length), float32(nz / length)}
}

// BinarySize returns the exact encoded size for n triangles.
func BinarySize(n int) int {
	return headerSize + 4 + triangleSize*n
}

// IsBinary reports whether data passes the binary STL length validation:
// at least 84 bytes and a declared triangle count that exactly matches
// the byte length at 50 bytes per triangle.
func IsBinary(data []byte) bool {
	if len(data) < headerSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[headerSize:])
	return len(data) == BinarySize(int(count))
}

// EncodeTo writes the mesh as binary STL. Triangles with a zero normal are
// written with the computed face normal.
func EncodeTo(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)

	header := make([]byte, headerSize)
	copy(header, headerText)
	if _, err := bw.Write(header); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Triangles))); err != nil {
		return err
	}

	var rec [triangleSize]byte
	for _, t := range m.Triangles {
		for _, i := range t.V {
			if i < 0 || i >= len(m.Vertices) {
				return fmt.Errorf("triangle vertex index %d out of range (%d vertices)", i, len(m.Vertices))
			}
		}
		a, b, c := m.Vertices[t.V[0]], m.Vertices[t.V[1]], m.Vertices[t.V[2]]

		n := t.Normal
		if n == (Vec3{}) {
			n = faceNormal(a, b, c)
		}

		off := 0
		for _, v := range []Vec3{n, a, b, c} {
			for _, f := range v {
				binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(f))
				off += 4
			}
		}
		binary.LittleEndian.PutUint16(rec[48:], 0) // attribute byte count
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Encode returns the mesh as binary STL bytes.
func Encode(m *Mesh) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(BinarySize(len(m.Triangles)))
	if err := EncodeTo(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses data as binary STL first, then as ASCII. Returns
// ErrUnrecognizedFormat when neither path succeeds.
func Decode(data []byte) (*Mesh, error) {
	if IsBinary(data) {
		return decodeBinary(data)
	}
	return decodeASCII(data)
}

func decodeBinary(data []byte) (*Mesh, error) {
	count := int(binary.LittleEndian.Uint32(data[headerSize:]))
	pool := newVertexPool()
	tris := make([]Triangle, 0, count)

	off := headerSize + 4
	for i := 0; i < count; i++ {
		var vals [12]float32
		for j := range vals {
			vals[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+j*4:]))
		}
		off += triangleSize

		t := Triangle{Normal: Vec3{vals[0], vals[1], vals[2]}}
		for k := 0; k < 3; k++ {
			v := Vec3{vals[3+k*3], vals[4+k*3], vals[5+k*3]}
			t.V[k] = pool.add(v)
		}
		tris = append(tris, t)
	}

	return &Mesh{Vertices: pool.verts, Triangles: tris}, nil
}

func decodeASCII(data []byte) (*Mesh, error) {
	text := string(data)
	if !strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "solid") {
		return nil, ErrUnrecognizedFormat
	}

	pool := newVertexPool()
	var tris []Triangle
	var tri [3]int
	filled := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 || parts[0] != "vertex" {
			continue
		}
		var coords [3]float32
		ok := true
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(parts[1+i], 32)
			if err != nil {
				ok = false
				break
			}
			coords[i] = float32(f)
		}
		if !ok {
			continue
		}
		tri[filled] = pool.add(Vec3(coords))
		filled++
		if filled == 3 {
			// Normal is recomputed at encode time.
			tris = append(tris, Triangle{V: tri})
			filled = 0
		}
	}
	// A trailing incomplete triangle is dropped.
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan ASCII STL: %w", err)
	}

	if len(tris) == 0 {
		return nil, ErrNoTriangles
	}
	return &Mesh{Vertices: pool.verts, Triangles: tris}, nil
}

// DecodeFile reads and decodes an STL file from disk.
func DecodeFile(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// EncodeFile writes the mesh to disk as binary STL.
func EncodeFile(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeTo(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
