// Package scene holds the renderable level produced by the BSP parsers:
// triangulated geometry batched by material plus the names of the lightmap
// images written alongside it.
package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/entities"
)

// Format identifies the BSP dialect a Map was read from.
type Format int

const (
	FormatUnknown Format = iota
	FormatHalfLife
	FormatExtendedHalfLife
	FormatSourceV19
	FormatSourceV20
	FormatSourceV21
)

func (f Format) String() string {
	switch f {
	case FormatHalfLife:
		return "HalfLife"
	case FormatExtendedHalfLife:
		return "ExtendedHalfLife"
	case FormatSourceV19:
		return "SourceV19"
	case FormatSourceV20:
		return "SourceV20"
	case FormatSourceV21:
		return "SourceV21"
	default:
		return "Unknown"
	}
}

// IsSource reports whether f is one of the VBSP versions.
func (f Format) IsSource() bool {
	return f >= FormatSourceV19 && f <= FormatSourceV21
}

// Vertex is an ordinary face corner. Normal is zero for the Half-Life dialects.
type Vertex struct {
	Position   mgl32.Vec3
	Normal     mgl32.Vec3
	UV         mgl32.Vec2
	LightmapUV mgl32.Vec2
}

// DispVertex is a displacement grid vertex with a blend tint and alpha weight.
type DispVertex struct {
	Vertex
	Color mgl32.Vec3
	Alpha float32
}

// Submesh is the index range [Offset, Offset+Count) drawn with one material.
type Submesh struct {
	Offset   int
	Count    int
	Material int
}

// Mesh is a vertex range and an index range split into per-material submeshes.
// Index values are relative to VertOffset.
type Mesh struct {
	Offset     int
	Count      int
	VertOffset int
	VertCount  int
	Submeshes  []Submesh

	// Area is only classified for Source levels.
	Area Area

	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Model is one rigid sub-object of the level. Model 0 is the world.
type Model struct {
	Meshes     []Mesh
	DispMeshes []Mesh
	Origin     mgl32.Vec3
}

// Material references Textures by index, -1 for none.
type Material struct {
	Name        string
	Texture     int
	AlphaTest   bool
	Lightmapped bool
}

// Texture is the decoded slot matching Materials by index. Image is nil when
// the pixels could not be resolved.
type Texture struct {
	Name        string
	Width       int
	Height      int
	Image       image.Image
	Placeholder bool
}

// Map is the complete result of one load. It is not modified after the parser returns.
type Map struct {
	Name   string
	Format Format

	Vertices     []Vertex
	DispVertices []DispVertex
	// Indices holds every mesh's indices. With NarrowIndices set, every value fits in 16 bits.
	Indices       []uint32
	NarrowIndices bool

	Models    []Model
	Materials []Material
	Textures  []Texture

	Entities []entities.Entity
	WadNames []string

	// LightmapPages lists the atlas images written for the primary lighting pass,
	// LightStyleImages the additional light style layers.
	LightmapPages    []string
	DeluxemapPages   []string
	LightStyleImages []string
}

// VertexCount returns the number of vertices referenced by all meshes of all models.
func (m *Map) VertexCount() int {
	return len(m.Vertices) + len(m.DispVertices)
}

// TriangleCount returns the number of triangles in the index buffer.
func (m *Map) TriangleCount() int {
	return len(m.Indices) / 3
}

// ApplyEntities records ents on the map. The first entity is the world spawn and
// supplies the WAD list; "*N" model references move submodel N to their origin.
func (m *Map) ApplyEntities(ents []entities.Entity) {
	m.Entities = ents
	if len(ents) > 0 {
		m.WadNames = entities.WadNames(ents[0])
	}

	for _, e := range ents {
		n, origin, ok := e.ModelOrigin()
		if ok && n > 0 && n < len(m.Models) {
			m.Models[n].Origin = origin
		}
	}
}
