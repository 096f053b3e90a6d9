// Package displacement tessellates Source displacement surfaces into regular
// vertex grids with blended normals.
package displacement

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

const (
	MinPower = 1
	MaxPower = 4
)

// Corner is one corner of the base quad.
type Corner struct {
	Position   mgl32.Vec3
	UV         mgl32.Vec2
	LightmapUV mgl32.Vec2
}

// Sample is the per-vertex offset of the height field. Alpha is 0..255.
type Sample struct {
	Vec   mgl32.Vec3
	Dist  float32
	Alpha float32
}

// Surface is a displacement over a quad face.
type Surface struct {
	Power int
	// Corners are in face winding order; Tessellate rotates them so that the
	// corner closest to StartPosition comes first.
	Corners       [4]Corner
	StartPosition mgl32.Vec3
	Samples       []Sample
}

// Width returns the number of vertices along one side of a surface of power p.
func Width(power int) int {
	return 1<<power + 1
}

// Rotate returns corners starting at the one closest to start.
func Rotate(corners [4]Corner, start mgl32.Vec3) [4]Corner {
	first := 0
	best := corners[0].Position.Sub(start).LenSqr()
	for i := 1; i < 4; i++ {
		if d := corners[i].Position.Sub(start).LenSqr(); d < best {
			first, best = i, d
		}
	}

	var out [4]Corner
	for i := range out {
		out[i] = corners[(first+i)%4]
	}
	return out
}

func lerpCorner(a, b Corner, t float32) Corner {
	return Corner{
		Position:   scene.Lerp3(a.Position, b.Position, t),
		UV:         scene.Lerp2(a.UV, b.UV, t),
		LightmapUV: scene.Lerp2(a.LightmapUV, b.LightmapUV, t),
	}
}

// Tessellate builds the width*width grid of s and its triangle list. Vertex
// (row i, column j) is at index i*width+j; rows run from corner 0 to corner 1,
// columns from the 0-1 edge to the 3-2 edge. Indices are relative to the grid.
func Tessellate(s Surface) ([]scene.DispVertex, []uint32, error) {
	if s.Power < MinPower || s.Power > MaxPower {
		return nil, nil, errors.Errorf("unsupported power %d", s.Power)
	}

	w := Width(s.Power)
	if len(s.Samples) < w*w {
		return nil, nil, errors.Errorf("power %d needs %d samples, got %d", s.Power, w*w, len(s.Samples))
	}

	c := Rotate(s.Corners, s.StartPosition)
	step := 1 / float32(w-1)

	verts := make([]scene.DispVertex, w*w)
	for i := 0; i < w; i++ {
		start := lerpCorner(c[0], c[1], float32(i)*step)
		end := lerpCorner(c[3], c[2], float32(i)*step)

		for j := 0; j < w; j++ {
			idx := i*w + j
			p := lerpCorner(start, end, float32(j)*step)
			sample := s.Samples[idx]

			v := &verts[idx]
			v.Position = p.Position.Add(sample.Vec.Mul(sample.Dist))
			v.UV = p.UV
			v.LightmapUV = p.LightmapUV
			v.Color = mgl32.Vec3{1, 1, 1}
			v.Alpha = sample.Alpha / 255
		}
	}

	indices := Triangulate(w)
	blendNormals(verts, indices)
	return verts, indices, nil
}

// Triangulate returns 6 indices per cell of a w*w grid. The split diagonal
// alternates like a checkerboard: cells with an even row+column sum are cut
// from their first to their last corner, odd cells across the other diagonal.
func Triangulate(w int) []uint32 {
	indices := make([]uint32, 0, (w-1)*(w-1)*6)
	for i := 0; i < w-1; i++ {
		for j := 0; j < w-1; j++ {
			v00 := uint32(i*w + j)
			v01 := v00 + 1
			v10 := v00 + uint32(w)
			v11 := v10 + 1

			if (i+j)%2 == 0 {
				indices = append(indices, v00, v11, v10, v00, v01, v11)
			} else {
				indices = append(indices, v00, v01, v10, v10, v01, v11)
			}
		}
	}
	return indices
}

// blendNormals sets every vertex normal to the average of the unit normals of
// the triangles sharing it.
func blendNormals(verts []scene.DispVertex, indices []uint32) {
	sums := make([]mgl32.Vec3, len(verts))
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := indices[t], indices[t+1], indices[t+2]
		pa := verts[a].Position
		n := verts[b].Position.Sub(pa).Cross(verts[c].Position.Sub(pa))
		if n.LenSqr() == 0 {
			continue
		}
		n = n.Normalize()
		sums[a] = sums[a].Add(n)
		sums[b] = sums[b].Add(n)
		sums[c] = sums[c].Add(n)
	}

	for i, n := range sums {
		if n.LenSqr() > 0 {
			verts[i].Normal = n.Normalize()
		}
	}
}
