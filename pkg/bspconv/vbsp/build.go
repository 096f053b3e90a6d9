package vbsp

import (
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/lightmap"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/vbsp/displacement"
)

// materialBucket is the faces of one area sharing a texdata, in lump order.
// Displacement faces are kept apart because they become grid meshes.
type materialBucket struct {
	texData int
	faces   []int
	disps   []int
}

type areaBucket struct {
	area      scene.Area
	materials []materialBucket
	index     map[int]int
}

func (b *areaBucket) add(texData, fi int, disp bool) {
	mi, ok := b.index[texData]
	if !ok {
		mi = len(b.materials)
		b.index[texData] = mi
		b.materials = append(b.materials, materialBucket{texData: texData})
	}
	if disp {
		b.materials[mi].disps = append(b.materials[mi].disps, fi)
	} else {
		b.materials[mi].faces = append(b.materials[mi].faces, fi)
	}
}

func (l *loader) faceTexinfo(mi, fi int) (*texinfo, error) {
	f := &l.faces[fi]
	if f.texinfo < 0 || f.texinfo >= len(l.texinfos) {
		return nil, scene.Malformed(mi, fi, "bad texinfo %d", f.texinfo)
	}
	ti := &l.texinfos[f.texinfo]
	if ti.texData < 0 || ti.texData >= len(l.texDatas) {
		return nil, scene.Malformed(mi, fi, "bad texdata %d", ti.texData)
	}
	return ti, nil
}

func (l *loader) isSky(ti *texinfo) bool {
	return ti.flags&(SurfSky|SurfSky2D) != 0 || strings.EqualFold(l.m.Materials[ti.texData].Name, "sky")
}

// buckets groups a model's faces by area, then by texdata in order of first
// appearance. Areas are ordered unassigned, ascending, ambiguous.
func (l *loader) buckets(mi int) ([]areaBucket, error) {
	mdl := l.models[mi]
	if mdl.firstFace < 0 || mdl.numFaces < 0 || mdl.firstFace+mdl.numFaces > len(l.faces) {
		return nil, scene.Malformed(mi, -1, "faces %d+%d outside %d", mdl.firstFace, mdl.numFaces, len(l.faces))
	}

	var out []areaBucket
	index := make(map[scene.Area]int)
	for fi := mdl.firstFace; fi < mdl.firstFace+mdl.numFaces; fi++ {
		ti, err := l.faceTexinfo(mi, fi)
		if err != nil {
			return nil, err
		}
		if l.cfg.SkipSky && l.isSky(ti) {
			continue
		}

		area := l.areas[fi]
		ai, ok := index[area]
		if !ok {
			ai = len(out)
			index[area] = ai
			out = append(out, areaBucket{area: area, index: make(map[int]int)})
		}
		out[ai].add(ti.texData, fi, l.faces[fi].dispInfo >= 0)
	}

	slices.SortStableFunc(out, func(a, b areaBucket) int {
		switch {
		case a.area.Less(b.area):
			return -1
		case b.area.Less(a.area):
			return 1
		}
		return 0
	})
	return out, nil
}

// lightRect returns the lightmap block of a face from its stored extents.
func (l *loader) lightRect(f *face) (lightmap.Rect, bool) {
	r := lightmap.Rect{W: f.lmSize[0] + 1, H: f.lmSize[1] + 1}
	if !f.lit() || r.Empty() || f.lightOfs < 0 || f.lightOfs+r.W*r.H*lightmap.RGBE.BytesPerTexel() > len(l.lighting) {
		return r, false
	}
	return r, true
}

// validateDisplacement checks the records a displacement face refers to.
func (l *loader) validateDisplacement(mi, fi int) error {
	f := &l.faces[fi]
	if f.numEdges != 4 {
		return scene.Malformed(mi, fi, "displacement on a face with %d edges", f.numEdges)
	}
	if f.dispInfo >= len(l.dispInfos) {
		return scene.Malformed(mi, fi, "dispinfo %d outside %d", f.dispInfo, len(l.dispInfos))
	}

	d := l.dispInfos[f.dispInfo]
	if d.power < displacement.MinPower || d.power > displacement.MaxPower {
		return scene.Malformed(mi, fi, "displacement %d has power %d", f.dispInfo, d.power)
	}
	w := displacement.Width(d.power)
	if d.firstVert < 0 || d.firstVert+w*w > len(l.dispVerts) {
		return scene.Malformed(mi, fi, "displacement %d vertices %d+%d outside %d", f.dispInfo, d.firstVert, w*w, len(l.dispVerts))
	}
	return nil
}

// lightPlan is the packed lightmap state shared by face emission.
type lightPlan struct {
	atlas  *lightmap.Atlas
	rects  []lightmap.Rect
	dark   lightmap.Rect
	owners []int
	// faceRect maps a face to its packed rect, -1 when unlit
	faceRect []int
}

func (l *loader) build() error {
	buckets := make([][]areaBucket, len(l.models))
	plan := &lightPlan{faceRect: make([]int, len(l.faces))}
	for i := range plan.faceRect {
		plan.faceRect[i] = -1
	}

	var (
		corners []mgl32.Vec3
		err     error
	)
	check := func(mi, fi int, disp bool) error {
		f := &l.faces[fi]
		if corners, err = l.geom.Corners(corners[:0], mi, fi, f.firstEdge, f.numEdges); err != nil {
			return err
		}
		if disp {
			if err := l.validateDisplacement(mi, fi); err != nil {
				return err
			}
		}

		r, ok := l.lightRect(f)
		if !ok {
			return nil
		}
		plan.faceRect[fi] = len(plan.rects)
		plan.rects = append(plan.rects, r)
		plan.owners = append(plan.owners, fi)
		return nil
	}

	for mi := range l.models {
		if buckets[mi], err = l.buckets(mi); err != nil {
			return err
		}
		for _, ab := range buckets[mi] {
			for _, mb := range ab.materials {
				for _, fi := range mb.faces {
					if err := check(mi, fi, false); err != nil {
						return err
					}
				}
				for _, fi := range mb.disps {
					if err := check(mi, fi, true); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := l.packLighting(plan); err != nil {
		return err
	}

	faces := scene.NewMeshBuilder(l.m, false)
	grids := scene.NewMeshBuilder(l.m, true)
	for mi := range l.models {
		if err := l.emitFaces(faces, mi, buckets[mi], plan); err != nil {
			return err
		}
		l.m.Models[mi].Meshes = faces.Meshes()

		if err := l.emitDisplacements(grids, mi, buckets[mi], plan); err != nil {
			return err
		}
		l.m.Models[mi].DispMeshes = grids.Meshes()
	}

	if plan.atlas == nil {
		return nil
	}
	return l.finalize(plan)
}

// packLighting packs all face blocks plus the dark texel once and writes
// their samples. The atlas stays nil when nothing is lit or lighting was dropped.
func (l *loader) packLighting(plan *lightPlan) error {
	if len(plan.rects) == 0 {
		return nil
	}
	plan.rects = append(plan.rects, lightmap.Rect{W: 1, H: 1})

	atlas := lightmap.NewAtlas(l.cfg.LightmapSize, lightmap.RGBE, false)
	err := atlas.Pack(plan.rects)
	if errors.Is(err, scene.ErrAtlasOverflow) && l.cfg.AtlasOverflow == scene.OverflowDropLighting {
		l.log.Warn("lightmaps do not fit, dropping lighting", zap.Error(err))
		for i := range plan.faceRect {
			plan.faceRect[i] = -1
		}
		plan.owners = nil
		return nil
	}
	if err != nil {
		return err
	}
	l.log.Debug("packed lightmaps", zap.Int("rects", len(plan.rects)), zap.Int("width", atlas.Width), zap.Int("height", atlas.Height))

	plan.atlas = atlas
	plan.dark = plan.rects[len(plan.rects)-1]
	for ri, fi := range plan.owners {
		if err := atlas.Write(plan.rects[ri], l.lighting[l.faces[fi].lightOfs:], nil); err != nil {
			return errors.Wrapf(err, "face %d", fi)
		}
	}
	return nil
}

func (l *loader) emitFaces(b *scene.MeshBuilder, mi int, buckets []areaBucket, plan *lightPlan) error {
	var (
		corners []mgl32.Vec3
		verts   []scene.Vertex
		err     error
	)
	for _, ab := range buckets {
		b.Begin(ab.area)
		for _, mb := range ab.materials {
			if len(mb.faces) == 0 {
				continue
			}
			b.Material(mb.texData)
			if plan.atlas != nil {
				l.m.Materials[mb.texData].Lightmapped = true
			}

			for _, fi := range mb.faces {
				f := &l.faces[fi]
				corners, _ = l.geom.Corners(corners[:0], mi, fi, f.firstEdge, f.numEdges)
				if verts, err = l.faceVertices(verts[:0], mi, fi, corners, plan); err != nil {
					return err
				}
				b.AddPolygon(verts)
			}
		}
	}
	return nil
}

func (l *loader) emitDisplacements(b *scene.MeshBuilder, mi int, buckets []areaBucket, plan *lightPlan) error {
	var (
		corners []mgl32.Vec3
		verts   []scene.Vertex
		err     error
	)
	for _, ab := range buckets {
		b.Begin(ab.area)
		for _, mb := range ab.materials {
			if len(mb.disps) == 0 {
				continue
			}
			b.Material(mb.texData)
			if plan.atlas != nil {
				l.m.Materials[mb.texData].Lightmapped = true
			}

			for _, fi := range mb.disps {
				f := &l.faces[fi]
				corners, _ = l.geom.Corners(corners[:0], mi, fi, f.firstEdge, f.numEdges)
				if verts, err = l.faceVertices(verts[:0], mi, fi, corners, plan); err != nil {
					return err
				}

				grid, indices, err := displacement.Tessellate(l.surface(f, verts))
				if err != nil {
					return scene.Malformed(mi, fi, "displacement %d: %v", f.dispInfo, err)
				}
				b.AddGrid(grid, indices)
			}
		}
	}
	return nil
}

func (l *loader) surface(f *face, verts []scene.Vertex) displacement.Surface {
	d := l.dispInfos[f.dispInfo]
	w := displacement.Width(d.power)

	s := displacement.Surface{
		Power:         d.power,
		StartPosition: d.startPosition,
		Samples:       make([]displacement.Sample, w*w),
	}
	for i := range s.Corners {
		s.Corners[i] = displacement.Corner{
			Position:   verts[i].Position,
			UV:         verts[i].UV,
			LightmapUV: verts[i].LightmapUV,
		}
	}
	for i, dv := range l.dispVerts[d.firstVert : d.firstVert+w*w] {
		s.Samples[i] = displacement.Sample{Vec: dv.vec, Dist: dv.dist, Alpha: dv.alpha}
	}
	return s
}

// faceNormal returns the front normal of a clockwise wound polygon.
func faceNormal(corners []mgl32.Vec3) mgl32.Vec3 {
	var n mgl32.Vec3
	for j := 1; j+1 < len(corners); j++ {
		n = n.Add(corners[j+1].Sub(corners[0]).Cross(corners[j].Sub(corners[0])))
	}
	if n.LenSqr() == 0 {
		return n
	}
	return n.Normalize()
}

func (l *loader) vertexNormal(mi, fi, k int, fallback mgl32.Vec3) (mgl32.Vec3, error) {
	if len(l.normalIndices) == 0 || len(l.normals) == 0 {
		return fallback, nil
	}
	i := l.normalStart[fi] + k
	if i >= len(l.normalIndices) {
		return mgl32.Vec3{}, scene.Malformed(mi, fi, "normal index %d outside %d", i, len(l.normalIndices))
	}
	ni := int(l.normalIndices[i])
	if ni >= len(l.normals) {
		return mgl32.Vec3{}, scene.Malformed(mi, fi, "normal %d outside %d", ni, len(l.normals))
	}
	return l.normals[ni], nil
}

func (l *loader) faceVertices(dst []scene.Vertex, mi, fi int, corners []mgl32.Vec3, plan *lightPlan) ([]scene.Vertex, error) {
	f := &l.faces[fi]
	ti := &l.texinfos[f.texinfo]
	td := l.texDatas[ti.texData]
	fallback := faceNormal(corners)

	for k, pos := range corners {
		n, err := l.vertexNormal(mi, fi, k, fallback)
		if err != nil {
			return dst, err
		}

		v := scene.Vertex{
			Position: pos,
			Normal:   n,
			UV:       mgl32.Vec2{scene.Project(pos, ti.texVecs[0]), scene.Project(pos, ti.texVecs[1])},
		}
		if td.width > 0 && td.height > 0 {
			v.UV[0] /= float32(td.width)
			v.UV[1] /= float32(td.height)
		}

		switch ri := plan.faceRect[fi]; {
		case plan.atlas == nil:
		case ri < 0:
			v.LightmapUV = plan.atlas.TexelCenter(plan.dark)
		default:
			r := plan.rects[ri]
			v.LightmapUV = plan.atlas.UV(
				scene.Project(pos, ti.lmVecs[0])+0.5-float32(f.lmMins[0])+float32(r.X),
				scene.Project(pos, ti.lmVecs[1])+0.5-float32(f.lmMins[1])+float32(r.Y),
			)
		}

		dst = append(dst, v)
	}
	return dst, nil
}

func (l *loader) finalize(plan *lightPlan) error {
	l.atlasSize = [2]int{plan.atlas.Width, plan.atlas.Height}
	pages, err := plan.atlas.Finalize(l.name, l.opts.Images)
	if err != nil {
		return err
	}
	l.m.LightmapPages = append(l.m.LightmapPages, pages.Lightmap)

	faces := make([]lightmap.StyleFace, len(plan.owners))
	for ri, fi := range plan.owners {
		f := &l.faces[fi]
		r := plan.rects[ri]
		stride := r.W * r.H * lightmap.RGBE.BytesPerTexel()
		if l.texinfos[f.texinfo].flags&SurfBumpLight != 0 {
			// flat lightmap plus three bumped ones per style
			stride *= 4
		}
		faces[ri] = lightmap.StyleFace{Rect: r, Styles: faceStyles(f), Offset: f.lightOfs, Stride: stride}
	}

	w := &lightmap.StyleWriter{
		Name:     l.name,
		Width:    l.atlasSize[0],
		Height:   l.atlasSize[1],
		Encoding: lightmap.RGBE,
		Lighting: l.lighting,
		Faces:    faces,
		Sink:     l.opts.Images,
		Log:      l.log,
	}
	names, err := w.Write(l.cfg.LightStyles, l.cfg.LightStyle)
	l.m.LightStyleImages = append(l.m.LightStyleImages, names...)
	return err
}

// faceStyles returns the styles of f up to the first NoStyle.
func faceStyles(f *face) []uint8 {
	for i, s := range f.styles {
		if s == NoStyle {
			return f.styles[:i]
		}
	}
	return f.styles[:]
}
