package vbsp

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
)

const (
	faceSize     = 56
	texinfoSize  = 72
	texDataSize  = 32
	modelSize    = 48
	nodeSize     = 32
	leafSize     = 32
	leafSizeV0   = 56
	dispInfoSize = 176
	dispVertSize = 20
	edgeSize     = 4

	NoStyle   = 255
	maxStyles = 4
)

// Texinfo flags.
const (
	SurfSky2D     = 0x2
	SurfSky       = 0x4
	SurfTrans     = 0x10
	SurfBumpLight = 0x800
)

type face struct {
	firstEdge int
	numEdges  int
	texinfo   int
	dispInfo  int
	styles    [maxStyles]uint8
	lightOfs  int
	lmMins    [2]int
	lmSize    [2]int
}

func (f *face) lit() bool {
	return f.lightOfs != -1 && f.styles[0] != NoStyle
}

func readFace(r *lumpio.Reader) face {
	var f face
	r.Skip(4) // planenum, side, onNode
	f.firstEdge = int(r.Int32())
	f.numEdges = int(r.Uint16())
	f.texinfo = int(r.Int16())
	f.dispInfo = int(r.Int16())
	r.Skip(2) // fog volume
	copy(f.styles[:], r.Bytes(maxStyles))
	f.lightOfs = int(r.Int32())
	r.Skip(4) // area
	f.lmMins = [2]int{int(r.Int32()), int(r.Int32())}
	f.lmSize = [2]int{int(r.Int32()), int(r.Int32())}
	return f
}

type texinfo struct {
	texVecs [2][4]float32
	lmVecs  [2][4]float32
	flags   int
	texData int
}

func readVecs(r *lumpio.Reader) (v [2][4]float32) {
	for i := range v {
		for j := range v[i] {
			v[i][j] = r.Float32()
		}
	}
	return v
}

func readTexinfo(r *lumpio.Reader) texinfo {
	return texinfo{
		texVecs: readVecs(r),
		lmVecs:  readVecs(r),
		flags:   int(r.Int32()),
		texData: int(r.Int32()),
	}
}

type texData struct {
	nameID        int
	width, height int
}

func readTexData(r *lumpio.Reader) texData {
	r.Skip(12) // reflectivity
	return texData{
		nameID: int(r.Int32()),
		width:  int(r.Int32()),
		height: int(r.Int32()),
	}
}

type model struct {
	headNode  int
	firstFace int
	numFaces  int
}

func readModel(r *lumpio.Reader) model {
	r.Skip(36) // mins, maxs, origin
	return model{
		headNode:  int(r.Int32()),
		firstFace: int(r.Int32()),
		numFaces:  int(r.Int32()),
	}
}

type node struct {
	children [2]int
}

func readNode(r *lumpio.Reader) node {
	r.Skip(4) // planenum
	return node{children: [2]int{int(r.Int32()), int(r.Int32())}}
}

type leaf struct {
	area          int
	firstLeafFace int
	numLeafFaces  int
}

// readLeaf decodes both leaf layouts; the older one only appends an ambient
// light cube after the shared fields.
func readLeaf(r *lumpio.Reader) leaf {
	r.Skip(6) // contents, cluster
	area := int(r.Uint16() & 0x1ff)
	r.Skip(12) // mins, maxs
	return leaf{
		area:          area,
		firstLeafFace: int(r.Uint16()),
		numLeafFaces:  int(r.Uint16()),
	}
}

type dispInfo struct {
	startPosition mgl32.Vec3
	firstVert     int
	power         int
}

func readDispInfo(r *lumpio.Reader) dispInfo {
	var d dispInfo
	d.startPosition = r.Vec3()
	d.firstVert = int(r.Int32())
	r.Skip(4) // first tri
	d.power = int(r.Int32())
	// min tess, smoothing angle, contents and the rest are not needed
	return d
}

type dispVert struct {
	vec   mgl32.Vec3
	dist  float32
	alpha float32
}

func readDispVert(r *lumpio.Reader) dispVert {
	return dispVert{vec: r.Vec3(), dist: r.Float32(), alpha: r.Float32()}
}

func readVertex(r *lumpio.Reader) mgl32.Vec3 {
	return r.Vec3()
}

func readEdge(r *lumpio.Reader) [2]uint16 {
	return [2]uint16{r.Uint16(), r.Uint16()}
}

func readInt32(r *lumpio.Reader) int32 {
	return r.Int32()
}

func readUint16(r *lumpio.Reader) uint16 {
	return r.Uint16()
}
