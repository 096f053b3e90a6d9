package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// MaxNarrowVertices is the largest vertex count a mesh may reach in narrow
// index mode, so that no index equals 0xFFFF.
const MaxNarrowVertices = 65535

// MeshBuilder appends faces to the global buffers of a Map while tracking the
// mesh and submesh being filled. Vertices are duplicated per face.
//
// A builder writes either ordinary or displacement vertices, never both.
type MeshBuilder struct {
	m    *Map
	disp bool

	meshes []Mesh
	cur    Mesh
	open   bool

	sub     Submesh
	subOpen bool
}

// NewMeshBuilder returns a builder appending to m. With disp set, vertices go
// to m.DispVertices.
func NewMeshBuilder(m *Map, disp bool) *MeshBuilder {
	return &MeshBuilder{m: m, disp: disp}
}

func (b *MeshBuilder) vertexLen() int {
	if b.disp {
		return len(b.m.DispVertices)
	}
	return len(b.m.Vertices)
}

// Begin closes the current mesh and starts a new one for area.
func (b *MeshBuilder) Begin(area Area) {
	b.End()
	b.cur = Mesh{
		Offset:     len(b.m.Indices),
		VertOffset: b.vertexLen(),
		Area:       area,
	}
	b.open = true
}

// Material closes the current submesh and starts one for material mat.
func (b *MeshBuilder) Material(mat int) {
	b.flushSubmesh()
	b.sub = Submesh{Offset: len(b.m.Indices), Material: mat}
	b.subOpen = true
}

func (b *MeshBuilder) flushSubmesh() {
	if !b.subOpen {
		return
	}
	b.sub.Count = len(b.m.Indices) - b.sub.Offset
	if b.sub.Count > 0 {
		b.cur.Submeshes = append(b.cur.Submeshes, b.sub)
	}
	b.subOpen = false
}

// End closes the current mesh. Meshes without vertices are dropped.
func (b *MeshBuilder) End() {
	if !b.open {
		return
	}
	b.flushSubmesh()
	b.cur.Count = len(b.m.Indices) - b.cur.Offset
	if b.cur.VertCount > 0 {
		b.meshes = append(b.meshes, b.cur)
	}
	b.open = false
}

// Meshes closes the current mesh and returns every mesh built since the last call.
func (b *MeshBuilder) Meshes() []Mesh {
	b.End()
	out := b.meshes
	b.meshes = nil
	return out
}

// reserve starts a new mesh when n more vertices would overflow 16-bit indices.
// The area and the in-flight material carry over.
func (b *MeshBuilder) reserve(n int) {
	if !b.m.NarrowIndices || b.cur.VertCount == 0 || b.cur.VertCount+n <= MaxNarrowVertices {
		return
	}
	mat, hadSub := b.sub.Material, b.subOpen
	b.Begin(b.cur.Area)
	if hadSub {
		b.Material(mat)
	}
}

func (b *MeshBuilder) grow(pos mgl32.Vec3) {
	if b.cur.VertCount == 0 {
		b.cur.Min, b.cur.Max = pos, pos
		return
	}
	for i := 0; i < 3; i++ {
		if pos[i] < b.cur.Min[i] {
			b.cur.Min[i] = pos[i]
		}
		if pos[i] > b.cur.Max[i] {
			b.cur.Max[i] = pos[i]
		}
	}
}

// AddPolygon appends one convex face and fan-triangulates it with
// indices (0, j+1, j). Faces with fewer than 3 corners add vertices only.
func (b *MeshBuilder) AddPolygon(verts []Vertex) {
	b.reserve(len(verts))

	base := b.cur.VertCount
	for _, v := range verts {
		b.grow(v.Position)
		b.cur.VertCount++
	}
	b.m.Vertices = append(b.m.Vertices, verts...)

	for j := 1; j < len(verts)-1; j++ {
		b.m.Indices = append(b.m.Indices, uint32(base), uint32(base+j+1), uint32(base+j))
	}
}

// AddGrid appends a displacement surface. indices are relative to verts.
func (b *MeshBuilder) AddGrid(verts []DispVertex, indices []uint32) {
	b.reserve(len(verts))

	base := uint32(b.cur.VertCount)
	for _, v := range verts {
		b.grow(v.Position)
		b.cur.VertCount++
	}
	b.m.DispVertices = append(b.m.DispVertices, verts...)

	for _, idx := range indices {
		b.m.Indices = append(b.m.Indices, base+idx)
	}
}
