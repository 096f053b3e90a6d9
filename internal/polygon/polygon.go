// Package polygon rebuilds face outlines from the surfedge, edge and vertex
// lumps shared by every BSP dialect.
package polygon

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Edges is the geometry needed to walk a face's outline.
type Edges struct {
	Vertices  []mgl32.Vec3
	Edges     [][2]uint16
	SurfEdges []int32
}

// Corners appends the numEdges corner positions of a face to dst. A positive
// surfedge uses the first vertex of its edge, a negative one the second vertex
// of the negated edge. Out-of-range references fail with a *scene.GeometryError
// naming model and face.
func (g *Edges) Corners(dst []mgl32.Vec3, model, face, firstEdge, numEdges int) ([]mgl32.Vec3, error) {
	if numEdges < 0 || firstEdge < 0 || firstEdge+numEdges > len(g.SurfEdges) {
		return dst, scene.Malformed(model, face, "surfedges %d+%d outside %d", firstEdge, numEdges, len(g.SurfEdges))
	}

	n := len(g.Edges)
	for i := 0; i < numEdges; i++ {
		e := int(g.SurfEdges[firstEdge+i])
		if e >= n || e <= -n {
			return dst, scene.Malformed(model, face, "bad edge %d", e)
		}

		var vi int
		if e >= 0 {
			vi = int(g.Edges[e][0])
		} else {
			vi = int(g.Edges[-e][1])
		}

		if vi >= len(g.Vertices) {
			return dst, scene.Malformed(model, face, "bad vertex index %d", vi)
		}
		dst = append(dst, g.Vertices[vi])
	}

	return dst, nil
}
