// Package vbsp converts Source engine VBSP files (versions 19 to 21) into a
// scene.Map, including area classification and displacement surfaces.
package vbsp

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
	"github.com/saiko-tech/bsp-converter/internal/polygon"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/entities"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/texture"
)

type loader struct {
	cfg  scene.Config
	opts scene.Options
	log  *zap.Logger
	name string

	hdr           *Header
	geom          polygon.Edges
	faces         []face
	texinfos      []texinfo
	texDatas      []texData
	models        []model
	nodes         []node
	leafs         []leaf
	leafFaces     []uint16
	dispInfos     []dispInfo
	dispVerts     []dispVert
	normals       []mgl32.Vec3
	normalIndices []uint16
	normalStart   []int
	lighting      []byte
	hdrLighting   bool

	areas     []scene.Area
	atlasSize [2]int

	m *scene.Map
}

// Load converts a whole VBSP file held in data. name is used for the lightmap
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

	if err := l.loadMaterials(data); err != nil {
		return nil, err
	}
	if err := l.classifyAreas(); err != nil {
		return nil, err
	}
	if err := l.build(); err != nil {
		return nil, err
	}

	l.log.Info("loaded vbsp",
		zap.Stringer("format", l.m.Format),
		zap.Int("revision", hdr.Revision),
		zap.Bool("hdr", l.hdrLighting),
		zap.Int("models", len(l.m.Models)),
		zap.Int("faces", len(l.faces)),
		zap.Int("displacements", len(l.dispInfos)),
		zap.Int("vertices", len(l.m.Vertices)),
		zap.Int("triangles", l.m.TriangleCount()),
		zap.Strings("lightmaps", l.m.LightmapPages))

	return l.m, nil
}

func (l *loader) lump(data []byte, index int, name string) ([]byte, error) {
	lump := l.hdr.Lumps[index]
	if lump.UncompressedSize != 0 && lump.Length > 0 {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "%s lump is compressed", name)
	}
	b, err := lump.Slice(data)
	if err != nil {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "%s lump: %v", name, err)
	}
	return b, nil
}

func records[T any](l *loader, data []byte, index int, name string, size int, decode func(r *lumpio.Reader) T) ([]T, error) {
	b, err := l.lump(data, index, name)
	if err != nil {
		return nil, err
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

	// HDR lighting supersedes the LDR lump together with its face lump
	facesLump, lightingLump := LumpFaces, LumpLighting
	if l.hdr.Lumps[LumpLightingHDR].Length > 0 {
		l.hdrLighting = true
		lightingLump = LumpLightingHDR
		if l.hdr.Lumps[LumpFacesHDR].Length > 0 {
			facesLump = LumpFacesHDR
		}
	}

	leafRecord := leafSize
	if l.hdr.Lumps[LumpLeafs].Version == 0 {
		leafRecord = leafSizeV0
	}

	if l.geom.Vertices, err = records(l, data, LumpVertexes, "vertexes", 12, readVertex); err != nil {
		return err
	}
	if l.geom.Edges, err = records(l, data, LumpEdges, "edges", edgeSize, readEdge); err != nil {
		return err
	}
	if l.geom.SurfEdges, err = records(l, data, LumpSurfEdges, "surfedges", 4, readInt32); err != nil {
		return err
	}
	if l.faces, err = records(l, data, facesLump, "faces", faceSize, readFace); err != nil {
		return err
	}
	if l.texinfos, err = records(l, data, LumpTexinfo, "texinfo", texinfoSize, readTexinfo); err != nil {
		return err
	}
	if l.texDatas, err = records(l, data, LumpTexData, "texdata", texDataSize, readTexData); err != nil {
		return err
	}
	if l.models, err = records(l, data, LumpModels, "models", modelSize, readModel); err != nil {
		return err
	}
	if l.nodes, err = records(l, data, LumpNodes, "nodes", nodeSize, readNode); err != nil {
		return err
	}
	if l.leafs, err = records(l, data, LumpLeafs, "leafs", leafRecord, readLeaf); err != nil {
		return err
	}
	if l.leafFaces, err = records(l, data, LumpLeafFaces, "leaffaces", 2, readUint16); err != nil {
		return err
	}
	if l.dispInfos, err = records(l, data, LumpDispInfo, "dispinfo", dispInfoSize, readDispInfo); err != nil {
		return err
	}
	if l.dispVerts, err = records(l, data, LumpDispVerts, "dispverts", dispVertSize, readDispVert); err != nil {
		return err
	}
	if l.normals, err = records(l, data, LumpVertNormals, "vertnormals", 12, readVertex); err != nil {
		return err
	}
	if l.normalIndices, err = records(l, data, LumpVertNormalIndices, "vertnormalindices", 2, readUint16); err != nil {
		return err
	}
	if l.lighting, err = l.lump(data, lightingLump, "lighting"); err != nil {
		return err
	}

	// normal indices are consumed face by face in lump order
	l.normalStart = make([]int, len(l.faces))
	next := 0
	for i := range l.faces {
		l.normalStart[i] = next
		next += l.faces[i].numEdges
	}
	return nil
}

func (l *loader) parseEntities(data []byte) {
	text, err := l.lump(data, LumpEntities, "entities")
	if err != nil {
		l.log.Warn("entity lump unreadable", zap.Error(err))
		return
	}

	ents, err := entities.Parse(string(text))
	if err != nil {
		l.log.Warn("entity text malformed, keeping entities parsed so far", zap.Error(err), zap.Int("entities", len(ents)))
	}
	l.m.ApplyEntities(ents)
}

// textureProvider returns the provider chain for material lookups, with the
// embedded pakfile first when enabled.
func (l *loader) textureProvider(data []byte) scene.TextureProvider {
	if !l.cfg.UsePakfile {
		return l.opts.Textures
	}

	pak, err := l.lump(data, LumpPakfile, "pakfile")
	if err == nil && len(pak) == 0 {
		return l.opts.Textures
	}
	var archive *texture.ArchiveProvider
	if err == nil {
		archive, err = texture.NewMemoryArchive(pak)
	}
	if err != nil {
		l.log.Warn("pakfile unusable, ignoring it", zap.Error(err))
		return l.opts.Textures
	}

	l.log.Debug("using pakfile", zap.Int("entries", archive.Len()))
	return texture.Chain{archive, l.opts.Textures}
}

// stringTable resolves texdata names against the string table lumps.
type stringTable struct {
	offsets []int32
	data    []byte
}

func (t stringTable) name(id int) (string, error) {
	if id < 0 || id >= len(t.offsets) {
		return "", errors.Errorf("name index %d outside %d", id, len(t.offsets))
	}
	off := int(t.offsets[id])
	if off < 0 || off >= len(t.data) {
		return "", errors.Errorf("name offset %d outside %d", off, len(t.data))
	}

	r := lumpio.NewReader(t.data[off:])
	return strings.ToLower(r.CString(len(t.data) - off)), nil
}

// loadMaterials creates one material and texture slot per texdata record.
func (l *loader) loadMaterials(data []byte) error {
	var (
		names stringTable
		err   error
	)
	if names.offsets, err = records(l, data, LumpTexDataStringTable, "texdata string table", 4, readInt32); err != nil {
		return err
	}
	if names.data, err = l.lump(data, LumpTexDataStringData, "texdata string data"); err != nil {
		return err
	}

	opts := l.opts
	opts.Textures = l.textureProvider(data)

	l.m.Materials = make([]scene.Material, len(l.texDatas))
	l.m.Textures = make([]scene.Texture, len(l.texDatas))
	for i, td := range l.texDatas {
		name, err := names.name(td.nameID)
		if err != nil {
			return scene.Malformed(0, -1, "texdata %d: %v", i, err)
		}

		tex, err := scene.LoadTexture(opts, scene.TextureRef{Name: name}, td.width, td.height)
		if err != nil {
			return err
		}
		l.m.Textures[i] = tex
		l.m.Materials[i] = scene.Material{Name: name, Texture: i}
	}

	for _, ti := range l.texinfos {
		if ti.flags&SurfTrans != 0 && ti.texData >= 0 && ti.texData < len(l.m.Materials) {
			l.m.Materials[ti.texData].AlphaTest = true
		}
	}

	l.log.Debug("loaded materials", zap.Int("count", len(l.m.Materials)))
	return nil
}
