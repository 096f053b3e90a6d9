package vbsp

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

type rawFace struct {
	PlaneNum        uint16
	Side            uint8
	OnNode          uint8
	FirstEdge       int32
	NumEdges        uint16
	Texinfo         int16
	DispInfo        int16
	FogVolume       int16
	Styles          [4]uint8
	LightOfs        int32
	Area            float32
	LightmapMins    [2]int32
	LightmapSize    [2]int32
	OrigFace        int32
	NumPrims        uint16
	FirstPrimID     uint16
	SmoothingGroups uint32
}

type rawTexinfo struct {
	TexVecs [2][4]float32
	LmVecs  [2][4]float32
	Flags   int32
	TexData int32
}

type rawTexData struct {
	Reflectivity [3]float32
	NameID       int32
	Width        int32
	Height       int32
	ViewWidth    int32
	ViewHeight   int32
}

type rawModel struct {
	Mins, Maxs, Origin [3]float32
	HeadNode           int32
	FirstFace          int32
	NumFaces           int32
}

type rawNode struct {
	PlaneNum  int32
	Children  [2]int32
	Mins      [3]int16
	Maxs      [3]int16
	FirstFace uint16
	NumFaces  uint16
	Area      int16
	Padding   int16
}

type rawLeaf struct {
	Contents       int32
	Cluster        int16
	AreaFlags      uint16
	Mins           [3]int16
	Maxs           [3]int16
	FirstLeafFace  uint16
	NumLeafFaces   uint16
	FirstLeafBrush uint16
	NumLeafBrushes uint16
	WaterDataID    int16
	Padding        int16
}

type rawLeafV0 struct {
	Contents       int32
	Cluster        int16
	AreaFlags      uint16
	Mins           [3]int16
	Maxs           [3]int16
	FirstLeafFace  uint16
	NumLeafFaces   uint16
	FirstLeafBrush uint16
	NumLeafBrushes uint16
	WaterDataID    int16
	Ambient        [24]byte
	Padding        int16
}

type rawDispInfo struct {
	StartPosition   [3]float32
	DispVertStart   int32
	DispTriStart    int32
	Power           int32
	MinTess         int32
	SmoothingAngle  float32
	Contents        int32
	MapFace         uint16
	Pad             uint16
	LightmapAlpha   int32
	LightmapSamples int32
	Neighbors       [128]byte
}

type rawDispVert struct {
	Vec   [3]float32
	Dist  float32
	Alpha float32
}

// testVBSP assembles a VBSP file in memory.
type testVBSP struct {
	version  int32
	entities string

	vertices  []mgl32.Vec3
	edges     [][2]uint16
	surfEdges []int32
	faces     []rawFace
	texinfos  []rawTexinfo
	texDatas  []rawTexData
	strData   []byte
	strTable  []int32
	models    []rawModel
	nodes     []rawNode
	leafs     []rawLeaf
	leafV0    bool
	leafFaces []uint16
	dispInfos []rawDispInfo
	dispVerts []rawDispVert
	normals   []mgl32.Vec3
	normalIdx []uint16
	lighting  []byte
	pakfile   []byte

	hdrLighting []byte
	hdrFaces    []rawFace

	// compressed marks lumps whose directory entry claims LZMA compression
	compressed map[int]bool
}

func newTestVBSP() *testVBSP {
	return &testVBSP{
		version: 20,
		edges:   [][2]uint16{{0, 0}},
	}
}

// addMaterial appends a texdata with its name and a texinfo projecting onto
// the xy plane with one lightmap sample per 16 units.
func (b *testVBSP) addMaterial(name string, width, height int32, flags int32) int {
	b.strTable = append(b.strTable, int32(len(b.strData)))
	b.strData = append(append(b.strData, name...), 0)
	b.texDatas = append(b.texDatas, rawTexData{
		NameID: int32(len(b.strTable) - 1),
		Width:  width,
		Height: height,
	})
	b.texinfos = append(b.texinfos, rawTexinfo{
		TexVecs: [2][4]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		LmVecs:  [2][4]float32{{1.0 / 16, 0, 0, 0}, {0, 1.0 / 16, 0, 0}},
		Flags:   flags,
		TexData: int32(len(b.texDatas) - 1),
	})
	return len(b.texinfos) - 1
}

// addPolygon appends a face with its own vertices, edges and normals.
func (b *testVBSP) addPolygon(texinfo int, corners ...mgl32.Vec3) int {
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
		NumEdges:  uint16(len(corners)),
		Texinfo:   int16(texinfo),
		DispInfo:  -1,
		Styles:    [4]uint8{NoStyle, NoStyle, NoStyle, NoStyle},
		LightOfs:  -1,
	})
	return len(b.faces) - 1
}

// addQuad appends a size x size quad at height z wound clockwise seen from +z.
func (b *testVBSP) addQuad(texinfo int, x, y, z, size float32) int {
	return b.addPolygon(texinfo,
		mgl32.Vec3{x, y, z},
		mgl32.Vec3{x, y + size, z},
		mgl32.Vec3{x + size, y + size, z},
		mgl32.Vec3{x + size, y, z},
	)
}

// withNormals gives every face corner the normal n.
func (b *testVBSP) withNormals(n mgl32.Vec3) {
	b.normals = []mgl32.Vec3{n}
	b.normalIdx = make([]uint16, len(b.surfEdges))
}

// light gives a face a lightmap of (w+1)x(h+1) RGBE samples at offset with the given styles.
func (b *testVBSP) light(face int, offset int32, w, h int32, styles ...uint8) {
	f := &b.faces[face]
	f.LightOfs = offset
	f.LightmapSize = [2]int32{w, h}
	copy(f.Styles[:], styles)
}

// rgbe appends n samples of one RGBE value to the lighting lump and returns their offset.
func (b *testVBSP) rgbe(n int, r, g, bl byte, e int8) int32 {
	off := int32(len(b.lighting))
	for i := 0; i < n; i++ {
		b.lighting = append(b.lighting, r, g, bl, byte(e))
	}
	return off
}

func (b *testVBSP) addModel(firstFace, numFaces int, headNode int32) {
	b.models = append(b.models, rawModel{HeadNode: headNode, FirstFace: int32(firstFace), NumFaces: int32(numFaces)})
}

func (b *testVBSP) addNode(left, right int32) int32 {
	b.nodes = append(b.nodes, rawNode{Children: [2]int32{left, right}})
	return int32(len(b.nodes) - 1)
}

// addLeaf appends a leaf in area listing faces and returns its child reference.
func (b *testVBSP) addLeaf(area int, faces ...uint16) int32 {
	b.leafs = append(b.leafs, rawLeaf{
		AreaFlags:     uint16(area) | 0x200,
		FirstLeafFace: uint16(len(b.leafFaces)),
		NumLeafFaces:  uint16(len(faces)),
	})
	b.leafFaces = append(b.leafFaces, faces...)
	return -int32(len(b.leafs))
}

// addDisplacement turns face into a power p displacement with all samples
// pushed dist along +z.
func (b *testVBSP) addDisplacement(face int, power int32, start mgl32.Vec3, dist float32) {
	w := int(1<<power + 1)
	b.dispInfos = append(b.dispInfos, rawDispInfo{
		StartPosition: start,
		DispVertStart: int32(len(b.dispVerts)),
		Power:         power,
		MapFace:       uint16(face),
	})
	for i := 0; i < w*w; i++ {
		b.dispVerts = append(b.dispVerts, rawDispVert{Vec: [3]float32{0, 0, 1}, Dist: dist, Alpha: 255})
	}
	b.faces[face].DispInfo = int16(len(b.dispInfos) - 1)
}

func le(v any) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func leOrNil[T any](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	return le(v)
}

func (b *testVBSP) leafLump() ([]byte, int32) {
	if !b.leafV0 {
		return leOrNil(b.leafs), 1
	}
	v0 := make([]rawLeafV0, len(b.leafs))
	for i, lf := range b.leafs {
		v0[i] = rawLeafV0{
			AreaFlags:     lf.AreaFlags,
			FirstLeafFace: lf.FirstLeafFace,
			NumLeafFaces:  lf.NumLeafFaces,
			Cluster:       -1,
			Ambient:       [24]byte{0xff, 0xff, 0xff, 0xff},
		}
	}
	return leOrNil(v0), 0
}

func (b *testVBSP) bytes() []byte {
	lumps := make([][]byte, NumLumps)
	versions := make([]int32, NumLumps)

	lumps[LumpEntities] = append([]byte(b.entities), 0)
	lumps[LumpTexData] = leOrNil(b.texDatas)
	lumps[LumpVertexes] = leOrNil(b.vertices)
	lumps[LumpNodes] = leOrNil(b.nodes)
	lumps[LumpTexinfo] = leOrNil(b.texinfos)
	lumps[LumpFaces] = leOrNil(b.faces)
	lumps[LumpLighting] = b.lighting
	lumps[LumpLeafs], versions[LumpLeafs] = b.leafLump()
	lumps[LumpEdges] = leOrNil(b.edges)
	lumps[LumpSurfEdges] = leOrNil(b.surfEdges)
	lumps[LumpModels] = leOrNil(b.models)
	lumps[LumpLeafFaces] = leOrNil(b.leafFaces)
	lumps[LumpDispInfo] = leOrNil(b.dispInfos)
	lumps[LumpVertNormals] = leOrNil(b.normals)
	lumps[LumpVertNormalIndices] = leOrNil(b.normalIdx)
	lumps[LumpDispVerts] = leOrNil(b.dispVerts)
	lumps[LumpPakfile] = b.pakfile
	lumps[LumpTexDataStringData] = b.strData
	lumps[LumpTexDataStringTable] = leOrNil(b.strTable)
	lumps[LumpLightingHDR] = b.hdrLighting
	lumps[LumpFacesHDR] = leOrNil(b.hdrFaces)

	const headerLen = 8 + NumLumps*16 + 4

	var (
		body bytes.Buffer
		dir  []int32
	)
	for i, data := range lumps {
		var uncompressed int32
		if b.compressed[i] {
			uncompressed = int32(len(data)) * 2
		}
		dir = append(dir, int32(headerLen+body.Len()), int32(len(data)), versions[i], uncompressed)
		body.Write(data)
		for body.Len()%4 != 0 {
			body.WriteByte(0)
		}
	}

	out := le([]int32{Ident, b.version})
	out = append(out, le(dir)...)
	out = append(out, le(int32(7))...)
	return append(out, body.Bytes()...)
}
