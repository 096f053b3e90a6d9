package hlbsp

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
)

const (
	faceSize      = 20
	edgeSize      = 4
	texinfoSize   = 40
	modelSize     = 64
	faceInfoSize  = 22
	mipHeaderSize = 40

	// NoStyle terminates a face's style list.
	NoStyle   = 255
	maxStyles = 4
)

type face struct {
	firstEdge int
	numEdges  int
	texinfo   int
	styles    [maxStyles]uint8
	lightOfs  int
}

func (f *face) lit() bool {
	return f.lightOfs != -1 && f.styles[0] != NoStyle
}

func readFace(r *lumpio.Reader) face {
	var f face
	r.Skip(4) // planenum, side
	f.firstEdge = int(r.Int32())
	f.numEdges = int(r.Int16())
	f.texinfo = int(r.Int16())
	copy(f.styles[:], r.Bytes(maxStyles))
	f.lightOfs = int(r.Int32())
	return f
}

func readEdge(r *lumpio.Reader) [2]uint16 {
	return [2]uint16{r.Uint16(), r.Uint16()}
}

type texinfo struct {
	vecs     [2][4]float32
	miptex   int
	faceInfo int
}

func readTexinfo(r *lumpio.Reader) texinfo {
	var ti texinfo
	for i := range ti.vecs {
		for j := range ti.vecs[i] {
			ti.vecs[i][j] = r.Float32()
		}
	}
	ti.miptex = int(r.Int32())
	r.Skip(2) // flags
	ti.faceInfo = int(r.Int16())
	return ti
}

type model struct {
	firstFace int
	numFaces  int
}

func readModel(r *lumpio.Reader) model {
	var m model
	r.Skip(3*12 + 4*4 + 4) // bounds, origin, headnodes, visleafs
	m.firstFace = int(r.Int32())
	m.numFaces = int(r.Int32())
	return m
}

type faceInfo struct {
	textureStep int
}

func readFaceInfo(r *lumpio.Reader) faceInfo {
	r.Skip(16) // landname
	return faceInfo{textureStep: int(r.Uint16())}
}

func readVertex(r *lumpio.Reader) mgl32.Vec3 {
	return r.Vec3()
}

func readSurfEdge(r *lumpio.Reader) int32 {
	return r.Int32()
}
