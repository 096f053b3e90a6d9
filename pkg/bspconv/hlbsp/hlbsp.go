// Package hlbsp converts Half-Life (v30) and Xash (v31, extended header) BSP
// files into a scene.Map.
package hlbsp

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
	"github.com/saiko-tech/bsp-converter/internal/polygon"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/entities"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/lightmap"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

type loader struct {
	cfg  scene.Config
	opts scene.Options
	log  *zap.Logger
	name string

	hdr       *Header
	geom      polygon.Edges
	faces     []face
	texinfos  []texinfo
	models    []model
	faceInfos []faceInfo
	lighting  []byte
	lightVecs []byte
	texSizes  [][2]int
	atlasSize [2]int

	m *scene.Map
}

// faceLight is the lightmap placement of one face.
type faceLight struct {
	rect       int // index into the packed rects, -1 when unlit
	mins       [2]int
	sampleSize int
}

// Load converts a whole BSP file held in data. name is used for the lightmap
// image names and the resulting Map.
func Load(data []byte, name string, cfg scene.Config, opts scene.Options) (*scene.Map, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	opts = opts.WithDefaults()
	l := &loader{
		cfg:  cfg,
		opts: opts,
		log:  opts.Logger.With(zap.String("map", name)),
		name: name,
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	l.hdr = hdr
	l.m = &scene.Map{Name: name, Format: hdr.Format(), NarrowIndices: cfg.NarrowIndices}

	if err := l.readLumps(data); err != nil {
		return nil, err
	}

	l.m.Models = make([]scene.Model, len(l.models))
	l.parseEntities(data)

	lumpData, err := hdr.Lumps[LumpTextures].Slice(data)
	if err != nil {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "textures lump: %v", err)
	}
	if err := l.loadTextures(lumpData); err != nil {
		return nil, err
	}

	if err := l.build(); err != nil {
		return nil, err
	}

	l.log.Info("loaded bsp",
		zap.Stringer("format", l.m.Format),
		zap.Int("models", len(l.m.Models)),
		zap.Int("faces", len(l.faces)),
		zap.Int("vertices", len(l.m.Vertices)),
		zap.Int("triangles", l.m.TriangleCount()),
		zap.Strings("lightmaps", l.m.LightmapPages))

	return l.m, nil
}

func records[T any](l *loader, data []byte, lump lumpio.Lump, name string, size int, decode func(r *lumpio.Reader) T) ([]T, error) {
	b, err := lump.Slice(data)
	if err != nil {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "%s lump: %v", name, err)
	}
	out, err := lumpio.Records(b, size, decode)
	if err != nil {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "%s lump: %v", name, err)
	}
	l.log.Debug("read lump", zap.String("lump", name), zap.Int("records", len(out)))
	return out, nil
}

func (l *loader) readLumps(data []byte) error {
	var err error
	lumps := l.hdr.Lumps

	if l.geom.Vertices, err = records(l, data, lumps[LumpVertexes], "vertexes", 12, readVertex); err != nil {
		return err
	}
	if l.geom.Edges, err = records(l, data, lumps[LumpEdges], "edges", edgeSize, readEdge); err != nil {
		return err
	}
	if l.geom.SurfEdges, err = records(l, data, lumps[LumpSurfEdges], "surfedges", 4, readSurfEdge); err != nil {
		return err
	}
	if l.faces, err = records(l, data, lumps[LumpFaces], "faces", faceSize, readFace); err != nil {
		return err
	}
	if l.texinfos, err = records(l, data, lumps[LumpTexinfo], "texinfo", texinfoSize, readTexinfo); err != nil {
		return err
	}
	if l.models, err = records(l, data, lumps[LumpModels], "models", modelSize, readModel); err != nil {
		return err
	}
	if l.lighting, err = lumps[LumpLighting].Slice(data); err != nil {
		return errors.Wrapf(scene.ErrMalformedGeometry, "lighting lump: %v", err)
	}

	if !l.hdr.Extra {
		return nil
	}
	if l.lightVecs, err = l.hdr.ExtraLumps[ExtraLumpLightVecs].Slice(data); err != nil {
		return errors.Wrapf(scene.ErrMalformedGeometry, "light vectors lump: %v", err)
	}
	l.faceInfos, err = records(l, data, l.hdr.ExtraLumps[ExtraLumpFaceInfo], "faceinfo", faceInfoSize, readFaceInfo)
	return err
}

func (l *loader) parseEntities(data []byte) {
	text, err := l.hdr.Lumps[LumpEntities].Slice(data)
	if err != nil {
		l.log.Warn("entity lump out of range", zap.Error(err))
		return
	}

	ents, err := entities.Parse(string(text))
	if err != nil {
		l.log.Warn("entity text malformed, keeping entities parsed so far", zap.Error(err), zap.Int("entities", len(ents)))
	}
	l.m.ApplyEntities(ents)
}

func (l *loader) sampleSize(ti *texinfo) int {
	if l.hdr.Extra && ti.faceInfo >= 0 && ti.faceInfo < len(l.faceInfos) && l.faceInfos[ti.faceInfo].textureStep > 0 {
		return l.faceInfos[ti.faceInfo].textureStep
	}
	return l.hdr.SampleSize()
}

// bucket is the faces of one model sharing a texture, in lump order.
type bucket struct {
	miptex int
	faces  []int
}

func (l *loader) faceTexinfo(mi, fi int) (*texinfo, error) {
	f := &l.faces[fi]
	if f.texinfo < 0 || f.texinfo >= len(l.texinfos) {
		return nil, scene.Malformed(mi, fi, "bad texinfo %d", f.texinfo)
	}
	ti := &l.texinfos[f.texinfo]
	if ti.miptex < 0 || ti.miptex >= len(l.texSizes) {
		return nil, scene.Malformed(mi, fi, "bad miptex %d", ti.miptex)
	}
	return ti, nil
}

// buckets groups a model's faces by texture in order of first appearance.
func (l *loader) buckets(mi int) ([]bucket, error) {
	mdl := l.models[mi]
	if mdl.firstFace < 0 || mdl.numFaces < 0 || mdl.firstFace+mdl.numFaces > len(l.faces) {
		return nil, scene.Malformed(mi, -1, "faces %d+%d outside %d", mdl.firstFace, mdl.numFaces, len(l.faces))
	}

	var out []bucket
	index := make(map[int]int)
	for fi := mdl.firstFace; fi < mdl.firstFace+mdl.numFaces; fi++ {
		ti, err := l.faceTexinfo(mi, fi)
		if err != nil {
			return nil, err
		}
		if l.cfg.SkipSky && strings.EqualFold(l.m.Materials[ti.miptex].Name, "sky") {
			continue
		}

		bi, ok := index[ti.miptex]
		if !ok {
			bi = len(out)
			index[ti.miptex] = bi
			out = append(out, bucket{miptex: ti.miptex})
		}
		out[bi].faces = append(out[bi].faces, fi)
	}
	return out, nil
}

// projectUV returns the unnormalized texture coordinates of pos.
func projectUV(pos mgl32.Vec3, ti *texinfo) mgl32.Vec2 {
	return mgl32.Vec2{
		float32(scene.DoublePrecDot(pos, ti.vecs[0])),
		float32(scene.DoublePrecDot(pos, ti.vecs[1])),
	}
}

// measure computes the lightmap block of a lit face from its texture-space extents.
func (l *loader) measure(f *face, ti *texinfo, corners []mgl32.Vec3) (faceLight, lightmap.Rect, bool) {
	ss := l.sampleSize(ti)
	if len(corners) < 3 {
		return faceLight{rect: -1, sampleSize: ss}, lightmap.Rect{}, false
	}

	minUV := [2]float64{math.MaxFloat64, math.MaxFloat64}
	maxUV := [2]float64{-math.MaxFloat64, -math.MaxFloat64}
	for _, pos := range corners {
		uv := projectUV(pos, ti)
		for k := 0; k < 2; k++ {
			minUV[k] = math.Min(minUV[k], float64(uv[k]))
			maxUV[k] = math.Max(maxUV[k], float64(uv[k]))
		}
	}

	fl := faceLight{rect: -1, sampleSize: ss}
	var rect lightmap.Rect
	for k := 0; k < 2; k++ {
		fl.mins[k] = int(math.Floor(minUV[k] / float64(ss)))
		size := int(math.Ceil(maxUV[k]/float64(ss))) - fl.mins[k] + 1
		if k == 0 {
			rect.W = size
		} else {
			rect.H = size
		}
	}

	if rect.Empty() || f.lightOfs < 0 || f.lightOfs+rect.W*rect.H*3 > len(l.lighting) {
		return fl, rect, false
	}
	return fl, rect, true
}

func (l *loader) build() error {
	buckets := make([][]bucket, len(l.models))
	lights := make([]faceLight, len(l.faces))
	for i := range lights {
		lights[i].rect = -1
	}

	var (
		rects   []lightmap.Rect
		owners  []int
		corners []mgl32.Vec3
		err     error
	)

	for mi := range l.models {
		if buckets[mi], err = l.buckets(mi); err != nil {
			return err
		}

		for _, b := range buckets[mi] {
			for _, fi := range b.faces {
				f := &l.faces[fi]
				if corners, err = l.geom.Corners(corners[:0], mi, fi, f.firstEdge, f.numEdges); err != nil {
					return err
				}
				if !f.lit() {
					continue
				}

				ti := &l.texinfos[f.texinfo]
				fl, rect, ok := l.measure(f, ti, corners)
				if !ok {
					l.log.Debug("face lightmap outside lighting lump", zap.Int("model", mi), zap.Int("face", fi))
					continue
				}
				fl.rect = len(rects)
				lights[fi] = fl
				rects = append(rects, rect)
				owners = append(owners, fi)
			}
		}
	}

	// the trailing 1x1 block is the dark texel for unlit faces
	var dark lightmap.Rect
	if len(rects) > 0 {
		rects = append(rects, lightmap.Rect{W: 1, H: 1})
	}
	atlas, err := l.pack(rects)
	if err != nil {
		return err
	}

	if atlas != nil {
		dark = rects[len(rects)-1]
		for ri, fi := range owners {
			f := &l.faces[fi]
			var vecs []byte
			if len(l.lightVecs) >= f.lightOfs+rects[ri].W*rects[ri].H*3 {
				vecs = l.lightVecs[f.lightOfs:]
			}
			if err := atlas.Write(rects[ri], l.lighting[f.lightOfs:], vecs); err != nil {
				return errors.Wrapf(err, "face %d", fi)
			}
		}
	}

	builder := scene.NewMeshBuilder(l.m, false)
	var verts []scene.Vertex
	for mi := range l.models {
		builder.Begin(scene.Area{})
		for _, b := range buckets[mi] {
			builder.Material(b.miptex)
			if atlas != nil {
				l.m.Materials[b.miptex].Lightmapped = true
			}

			for _, fi := range b.faces {
				f := &l.faces[fi]
				corners, _ = l.geom.Corners(corners[:0], mi, fi, f.firstEdge, f.numEdges)
				verts = l.faceVertices(verts[:0], f, lights[fi], corners, rects, atlas, dark)
				builder.AddPolygon(verts)
			}
		}
		l.m.Models[mi].Meshes = builder.Meshes()
	}

	if atlas == nil {
		return nil
	}

	l.atlasSize = [2]int{atlas.Width, atlas.Height}
	pages, err := atlas.Finalize(l.name, l.opts.Images)
	if err != nil {
		return err
	}
	l.m.LightmapPages = append(l.m.LightmapPages, pages.Lightmap)
	if pages.Deluxemap != "" {
		l.m.DeluxemapPages = append(l.m.DeluxemapPages, pages.Deluxemap)
	}

	return l.writeStyles(owners, rects)
}

// pack places rects in a new atlas. It returns a nil atlas when there is
// nothing to pack or lighting was dropped after an overflow.
func (l *loader) pack(rects []lightmap.Rect) (*lightmap.Atlas, error) {
	if len(rects) == 0 {
		return nil, nil
	}

	atlas := lightmap.NewAtlas(l.cfg.LightmapSize, lightmap.RGB8, len(l.lightVecs) > 0)
	err := atlas.Pack(rects)
	if errors.Is(err, scene.ErrAtlasOverflow) && l.cfg.AtlasOverflow == scene.OverflowDropLighting {
		l.log.Warn("lightmaps do not fit, dropping lighting", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.log.Debug("packed lightmaps", zap.Int("rects", len(rects)), zap.Int("width", atlas.Width), zap.Int("height", atlas.Height))
	return atlas, nil
}

func (l *loader) faceVertices(dst []scene.Vertex, f *face, fl faceLight, corners []mgl32.Vec3, rects []lightmap.Rect, atlas *lightmap.Atlas, dark lightmap.Rect) []scene.Vertex {
	ti := &l.texinfos[f.texinfo]
	size := l.texSizes[ti.miptex]

	for _, pos := range corners {
		uv := projectUV(pos, ti)
		v := scene.Vertex{Position: pos}

		switch {
		case atlas == nil:
		case fl.rect < 0:
			v.LightmapUV = atlas.TexelCenter(dark)
		default:
			r := rects[fl.rect]
			ss := float32(fl.sampleSize)
			v.LightmapUV = mgl32.Vec2{
				(uv[0] - float32(fl.mins[0])*ss + float32(r.X)*ss + ss*0.5) / (float32(atlas.Width) * ss),
				(uv[1] - float32(fl.mins[1])*ss + float32(r.Y)*ss + ss*0.5) / (float32(atlas.Height) * ss),
			}
		}

		v.UV = uv
		if size[0] > 0 && size[1] > 0 {
			v.UV[0] /= float32(size[0])
			v.UV[1] /= float32(size[1])
		}

		dst = append(dst, v)
	}
	return dst
}
