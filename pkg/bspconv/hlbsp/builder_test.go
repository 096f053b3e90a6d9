package hlbsp

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

type rawFace struct {
	PlaneNum  uint16
	Side      int16
	FirstEdge int32
	NumEdges  int16
	Texinfo   int16
	Styles    [4]uint8
	LightOfs  int32
}

type rawTexinfo struct {
	Vecs     [2][4]float32
	Miptex   int32
	Flags    int16
	FaceInfo int16
}

type rawModel struct {
	Mins, Maxs, Origin [3]float32
	HeadNode           [4]int32
	VisLeafs           int32
	FirstFace          int32
	NumFaces           int32
}

type rawFaceInfo struct {
	LandName    [16]byte
	TextureStep uint16
	MaxExtent   uint16
	GroupID     int16
}

type testTexture struct {
	name     string
	width    int
	height   int
	external bool
	missing  bool
}

// testBSP assembles a BSP file in memory.
type testBSP struct {
	version   int32
	entities  string
	vertices  []mgl32.Vec3
	edges     [][2]uint16
	surfEdges []int32
	faces     []rawFace
	texinfos  []rawTexinfo
	textures  []testTexture
	models    []rawModel
	lighting  []byte

	extra     bool
	lightVecs []byte
	faceInfos []rawFaceInfo
}

func newTestBSP() *testBSP {
	return &testBSP{
		version: Version30,
		// edge 0 is never referenced
		edges: [][2]uint16{{0, 0}},
	}
}

// addPolygon appends a face with its own vertices and edges and returns its index.
func (b *testBSP) addPolygon(texinfo int, corners ...mgl32.Vec3) int {
	base := len(b.vertices)
	b.vertices = append(b.vertices, corners...)

	first := len(b.surfEdges)
	for i := range corners {
		next := base + (i+1)%len(corners)
		b.edges = append(b.edges, [2]uint16{uint16(base + i), uint16(next)})
		b.surfEdges = append(b.surfEdges, int32(len(b.edges)-1))
	}

	b.faces = append(b.faces, rawFace{
		FirstEdge: int32(first),
		NumEdges:  int16(len(corners)),
		Texinfo:   int16(texinfo),
		Styles:    [4]uint8{NoStyle, NoStyle, NoStyle, NoStyle},
		LightOfs:  -1,
	})
	return len(b.faces) - 1
}

// addQuad appends an axis-aligned size x size quad at height z.
func (b *testBSP) addQuad(texinfo int, x, y, z, size float32) int {
	return b.addPolygon(texinfo,
		mgl32.Vec3{x, y, z},
		mgl32.Vec3{x + size, y, z},
		mgl32.Vec3{x + size, y + size, z},
		mgl32.Vec3{x, y + size, z},
	)
}

// addTexture appends a texture and a planar texinfo projecting onto it.
func (b *testBSP) addTexture(tex testTexture) int {
	b.textures = append(b.textures, tex)
	b.texinfos = append(b.texinfos, rawTexinfo{
		Vecs:     [2][4]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		Miptex:   int32(len(b.textures) - 1),
		FaceInfo: -1,
	})
	return len(b.texinfos) - 1
}

func (b *testBSP) light(face int, offset int32, styles ...uint8) {
	f := &b.faces[face]
	f.LightOfs = offset
	copy(f.Styles[:], styles)
}

func (b *testBSP) addModel(firstFace, numFaces int) {
	b.models = append(b.models, rawModel{FirstFace: int32(firstFace), NumFaces: int32(numFaces)})
}

func le(v any) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (b *testBSP) textureLump() []byte {
	if len(b.textures) == 0 {
		return nil
	}

	body := new(bytes.Buffer)
	offsets := make([]int32, len(b.textures))
	headerLen := 4 + 4*len(b.textures)

	for i, tex := range b.textures {
		if tex.missing {
			offsets[i] = -1
			continue
		}
		offsets[i] = int32(headerLen + body.Len())

		var name [16]byte
		copy(name[:], tex.name)
		body.Write(name[:])
		body.Write(le([]uint32{uint32(tex.width), uint32(tex.height)}))
		if tex.external {
			body.Write(make([]byte, 16))
			continue
		}
		body.Write(le([]uint32{mipHeaderSize, 0, 0, 0}))
		body.Write(make([]byte, (tex.width*tex.height*85)>>6+2+256*3))
	}

	out := le(int32(len(b.textures)))
	out = append(out, le(offsets)...)
	return append(out, body.Bytes()...)
}

func (b *testBSP) bytes() []byte {
	lumps := make([][]byte, numLumps)
	lumps[LumpEntities] = append([]byte(b.entities), 0)
	lumps[LumpTextures] = b.textureLump()
	lumps[LumpLighting] = b.lighting
	if len(b.vertices) > 0 {
		lumps[LumpVertexes] = le(b.vertices)
	}
	lumps[LumpEdges] = le(b.edges)
	if len(b.surfEdges) > 0 {
		lumps[LumpSurfEdges] = le(b.surfEdges)
	}
	if len(b.faces) > 0 {
		lumps[LumpFaces] = le(b.faces)
	}
	if len(b.texinfos) > 0 {
		lumps[LumpTexinfo] = le(b.texinfos)
	}
	if len(b.models) > 0 {
		lumps[LumpModels] = le(b.models)
	}

	extra := make([][]byte, numExtraLumps)
	extra[ExtraLumpLightVecs] = b.lightVecs
	if len(b.faceInfos) > 0 {
		extra[ExtraLumpFaceInfo] = le(b.faceInfos)
	}

	headerLen := 4 + numLumps*8
	if b.version == Version31 {
		headerLen += 2 * 8
	}
	if b.extra {
		headerLen += 8 + numExtraLumps*8
	}

	var (
		body bytes.Buffer
		dir  []int32
	)
	place := func(data []byte) {
		dir = append(dir, int32(headerLen+body.Len()), int32(len(data)))
		body.Write(data)
		// keep lumps 4-byte aligned like the compilers do
		for body.Len()%4 != 0 {
			body.WriteByte(0)
		}
	}
	for _, l := range lumps {
		place(l)
	}

	out := le(b.version)
	out = append(out, le(dir)...)
	if b.version == Version31 {
		out = append(out, make([]byte, 16)...)
	}
	if b.extra {
		dir = dir[:0]
		for _, l := range extra {
			place(l)
		}
		out = append(out, le([]int32{ExtraMagic, ExtraVersion})...)
		out = append(out, le(dir)...)
	}

	return append(out, body.Bytes()...)
}
