package vbsp

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/lightmap"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

func load(t *testing.T, b *testVBSP, cfg scene.Config) (*scene.Map, *lightmap.MemorySink) {
	t.Helper()

	sink := &lightmap.MemorySink{}
	m, err := Load(b.bytes(), "lvl", cfg, scene.Options{Images: sink})
	require.NoError(t, err)
	return m, sink
}

func loadErr(b *testVBSP, cfg scene.Config) error {
	_, err := Load(b.bytes(), "lvl", cfg, scene.Options{})
	return err
}

func assertGeometryError(t *testing.T, err error, model, face int) {
	t.Helper()

	require.Error(t, err)
	assert.True(t, errors.Is(err, scene.ErrMalformedGeometry), "%v", err)

	var ge *scene.GeometryError
	require.True(t, errors.As(err, &ge), "%v", err)
	assert.Equal(t, model, ge.Model)
	assert.Equal(t, face, ge.Face)
}

func TestLoad_Quads(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("Concrete/Wall01", 64, 32, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addQuad(ti, 64, 0, 0, 64)
	b.withNormals(mgl32.Vec3{0, 0, 1})
	b.addModel(0, 2, 0)

	m, sink := load(t, b, scene.DefaultConfig())

	assert.Equal(t, scene.FormatSourceV20, m.Format)
	require.Len(t, m.Materials, 1)
	assert.Equal(t, scene.Material{Name: "concrete/wall01", Texture: 0}, m.Materials[0])
	assert.Equal(t, scene.Texture{Name: "concrete/wall01", Width: 64, Height: 32}, m.Textures[0])

	require.Len(t, m.Models, 1)
	require.Len(t, m.Models[0].Meshes, 1)
	mesh := m.Models[0].Meshes[0]
	assert.Equal(t, scene.Area{}, mesh.Area)
	assert.Equal(t, 8, mesh.VertCount)
	assert.Equal(t, 12, mesh.Count)
	assert.Equal(t, []scene.Submesh{{Offset: 0, Count: 12, Material: 0}}, mesh.Submeshes)
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, mesh.Min)
	assert.Equal(t, mgl32.Vec3{128, 64, 0}, mesh.Max)
	assert.Empty(t, m.Models[0].DispMeshes)

	assert.Equal(t, []uint32{0, 2, 1, 0, 3, 2, 4, 6, 5, 4, 7, 6}, m.Indices)
	require.Len(t, m.Vertices, 8)
	assert.Equal(t, mgl32.Vec3{64, 64, 0}, m.Vertices[2].Position)
	assert.Equal(t, mgl32.Vec2{1, 2}, m.Vertices[2].UV)
	for _, v := range m.Vertices {
		assert.Equal(t, mgl32.Vec3{0, 0, 1}, v.Normal)
		assert.Equal(t, mgl32.Vec2{}, v.LightmapUV)
	}

	assert.Empty(t, m.LightmapPages)
	assert.Empty(t, sink.Names())
}

func TestLoad_FaceNormalFallback(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addModel(0, 1, 0)

	m, _ := load(t, b, scene.DefaultConfig())

	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Normal.Z(), 1e-6)
	}
}

func TestLoad_BadNormalIndex(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addQuad(ti, 0, 0, 0, 64)
	b.withNormals(mgl32.Vec3{0, 0, 1})
	b.normalIdx[5] = 3
	b.addModel(0, 2, 0)

	assertGeometryError(t, loadErr(b, scene.DefaultConfig()), 0, 1)
}

// areaLevel has four faces: face 0 in area 1, face 1 in area 2, face 2 listed
// by leaves of both areas and face 3 listed by no leaf.
func areaLevel(v0 bool) *testVBSP {
	b := newTestVBSP()
	b.leafV0 = v0
	ti := b.addMaterial("floor", 64, 64, 0)
	for i := 0; i < 4; i++ {
		b.addQuad(ti, float32(i)*64, 0, 0, 64)
	}

	a := b.addLeaf(1, 0, 2)
	c := b.addLeaf(2, 1, 2)
	d := b.addLeaf(1, 0)
	inner := b.addNode(c, d)
	root := b.addNode(a, inner)
	b.addModel(0, 4, root)
	return b
}

func TestLoad_Areas(t *testing.T) {
	t.Parallel()

	for _, v0 := range []bool{false, true} {
		v0 := v0
		name := "leaf v1"
		if v0 {
			name = "leaf v0"
		}

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, _ := load(t, areaLevel(v0), scene.DefaultConfig())

			meshes := m.Models[0].Meshes
			require.Len(t, meshes, 4)
			assert.Equal(t, scene.Area{}, meshes[0].Area)
			assert.Equal(t, scene.AssignedArea(1), meshes[1].Area)
			assert.Equal(t, scene.AssignedArea(2), meshes[2].Area)
			assert.Equal(t, scene.Area{Kind: scene.AreaAmbiguous}, meshes[3].Area)

			// one face per mesh, ordered by area
			wantX := []float32{192, 0, 64, 128}
			for i, mesh := range meshes {
				assert.Equal(t, 4, mesh.VertCount)
				assert.Equal(t, i*4, mesh.VertOffset)
				assert.Equal(t, i*6, mesh.Offset)
				assert.Equal(t, wantX[i], mesh.Min.X(), "mesh %d", i)
			}
		})
	}
}

func TestLoad_SharedSubtree(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	leaf := b.addLeaf(3, 0)
	shared := b.addNode(leaf, leaf)
	b.addModel(0, 1, b.addNode(shared, shared))

	m, _ := load(t, b, scene.DefaultConfig())
	require.Len(t, m.Models[0].Meshes, 1)
	assert.Equal(t, scene.AssignedArea(3), m.Models[0].Meshes[0].Area)
}

func TestLoad_DeepSharedSubtree(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addQuad(ti, 64, 0, 0, 64)

	// both children of every node point at the next one: 2^64 paths reach the leaves
	child := b.addNode(b.addLeaf(3, 0, 1), b.addLeaf(3, 1))
	for i := 0; i < 64; i++ {
		child = b.addNode(child, child)
	}
	b.addModel(0, 2, child)

	m, _ := load(t, b, scene.DefaultConfig())
	require.Len(t, m.Models[0].Meshes, 1)
	assert.Equal(t, scene.AssignedArea(3), m.Models[0].Meshes[0].Area)
	assert.Equal(t, 8, m.Models[0].Meshes[0].VertCount)
}

func TestLoad_TreeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(b *testVBSP)
		face  int
	}{
		{
			name: "cycle",
			setup: func(b *testVBSP) {
				leaf := b.addLeaf(1, 0)
				b.nodes = append(b.nodes, rawNode{Children: [2]int32{0, leaf}})
			},
			face: -1,
		},
		{
			name: "node out of range",
			setup: func(b *testVBSP) {
				b.addNode(5, b.addLeaf(1, 0))
			},
			face: -1,
		},
		{
			name: "leaf out of range",
			setup: func(b *testVBSP) {
				b.addNode(-9, -9)
			},
			face: -1,
		},
		{
			name: "leaf face out of range",
			setup: func(b *testVBSP) {
				b.addNode(b.addLeaf(1, 9), b.addLeaf(1, 0))
			},
			face: 9,
		},
		{
			name: "too deep",
			setup: func(b *testVBSP) {
				leaf := b.addLeaf(1, 0)
				for i := int32(0); i < 1100; i++ {
					b.nodes = append(b.nodes, rawNode{Children: [2]int32{i + 1, leaf}})
				}
				b.nodes = append(b.nodes, rawNode{Children: [2]int32{leaf, leaf}})
			},
			face: -1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := newTestVBSP()
			ti := b.addMaterial("floor", 64, 64, 0)
			b.addQuad(ti, 0, 0, 0, 64)
			b.addModel(0, 1, 0)
			tt.setup(b)

			assertGeometryError(t, loadErr(b, scene.DefaultConfig()), 0, tt.face)
		})
	}
}

func skyLevel() *testVBSP {
	b := newTestVBSP()
	b.addQuad(b.addMaterial("SKY", 64, 64, 0), 0, 0, 0, 64)
	b.addQuad(b.addMaterial("tools/toolsskybox", 64, 64, SurfSky), 0, 0, 0, 64)
	b.addQuad(b.addMaterial("tools/toolsskybox2d", 64, 64, SurfSky2D), 0, 0, 0, 64)
	b.addQuad(b.addMaterial("glass/window", 64, 64, SurfTrans), 0, 0, 0, 64)
	b.addModel(0, 4, 0)
	return b
}

func TestLoad_SkipSky(t *testing.T) {
	t.Parallel()

	cfg := scene.DefaultConfig()
	cfg.SkipSky = true
	m, _ := load(t, skyLevel(), cfg)

	require.Len(t, m.Models[0].Meshes, 1)
	assert.Equal(t, []scene.Submesh{{Offset: 0, Count: 6, Material: 3}}, m.Models[0].Meshes[0].Submeshes)
	assert.True(t, m.Materials[3].AlphaTest)
	assert.False(t, m.Materials[0].AlphaTest)

	m, _ = load(t, skyLevel(), scene.DefaultConfig())
	assert.Len(t, m.Models[0].Meshes[0].Submeshes, 4)
}

// litLevel has a lit 48x48 quad (4x4 samples of one value) and an unlit quad.
func litLevel() *testVBSP {
	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	lit := b.addQuad(ti, 0, 0, 0, 48)
	b.addQuad(ti, 64, 0, 0, 48)
	b.light(lit, b.rgbe(16, 255, 255, 255, 0), 3, 3, 0)
	b.addModel(0, 2, 0)
	return b
}

func TestLoad_Lightmaps(t *testing.T) {
	t.Parallel()

	m, sink := load(t, litLevel(), scene.DefaultConfig())

	assert.Equal(t, []string{"lvl_lightmap0.png"}, m.LightmapPages)
	assert.Empty(t, m.DeluxemapPages)
	assert.True(t, m.Materials[0].Lightmapped)

	// 4x4 block at (0,0), dark texel at (4,0) of a 32x32 page
	assert.Equal(t, mgl32.Vec2{0.5 / 32, 0.5 / 32}, m.Vertices[0].LightmapUV)
	assert.Equal(t, mgl32.Vec2{3.5 / 32, 3.5 / 32}, m.Vertices[2].LightmapUV)
	for _, v := range m.Vertices[4:] {
		assert.Equal(t, mgl32.Vec2{4.5 / 32, 0.5 / 32}, v.LightmapUV)
	}

	img := sink.Image("lvl_lightmap0.png")
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	assert.Equal(t, color.NRGBA{128, 128, 128, 255}, img.At(3, 3))
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, img.At(4, 0))
}

func TestLoad_HDRLighting(t *testing.T) {
	t.Parallel()

	b := litLevel()
	for i := 0; i < 16; i++ {
		b.hdrLighting = append(b.hdrLighting, 255, 255, 255, 0xff)
	}

	m, sink := load(t, b, scene.DefaultConfig())
	require.Len(t, m.LightmapPages, 1)

	want := make([]byte, 3)
	lightmap.DecodeRGBE(want, []byte{255, 255, 255, 0xff})
	assert.NotEqual(t, byte(128), want[0])
	assert.Equal(t, color.NRGBA{want[0], want[1], want[2], 255}, sink.Image("lvl_lightmap0.png").At(0, 0))

	// a non-empty HDR face lump replaces the face records too
	b.hdrFaces = append([]rawFace(nil), b.faces...)
	b.hdrFaces[0].LightOfs = -1
	m, _ = load(t, b, scene.DefaultConfig())
	assert.Empty(t, m.LightmapPages)
	assert.False(t, m.Materials[0].Lightmapped)
}

func TestLoad_ShortLighting(t *testing.T) {
	t.Parallel()

	b := litLevel()
	b.lighting = b.lighting[:40]

	m, _ := load(t, b, scene.DefaultConfig())
	assert.Empty(t, m.LightmapPages)
	assert.Equal(t, mgl32.Vec2{}, m.Vertices[0].LightmapUV)
}

func TestLoad_AtlasOverflow(t *testing.T) {
	t.Parallel()

	level := func() *testVBSP {
		b := newTestVBSP()
		ti := b.addMaterial("floor", 64, 64, 0)
		f := b.addQuad(ti, 0, 0, 0, 1024)
		b.light(f, b.rgbe(65*65, 10, 10, 10, 0), 64, 64, 0)
		b.addModel(0, 1, 0)
		return b
	}

	cfg := scene.DefaultConfig()
	cfg.LightmapSize = 32
	err := loadErr(level(), cfg)
	assert.True(t, errors.Is(err, scene.ErrAtlasOverflow), "%v", err)

	cfg.AtlasOverflow = scene.OverflowDropLighting
	m, sink := load(t, level(), cfg)
	assert.Empty(t, m.LightmapPages)
	assert.Empty(t, sink.Names())
	assert.False(t, m.Materials[0].Lightmapped)
	assert.Len(t, m.Indices, 6)
}

func TestLoad_LightStyles(t *testing.T) {
	t.Parallel()

	level := func() *testVBSP {
		b := newTestVBSP()
		ti := b.addMaterial("floor", 64, 64, 0)
		f := b.addQuad(ti, 0, 0, 0, 48)
		off := b.rgbe(16, 255, 255, 255, 0)
		b.rgbe(16, 255, 255, 255, 0)
		b.light(f, off, 3, 3, 0, 5)
		b.addModel(0, 1, 0)
		return b
	}

	cfg := scene.DefaultConfig()
	cfg.LightStyles = scene.StylesEach
	m, sink := load(t, level(), cfg)
	assert.Equal(t, []string{"lvl_style5_lightmap.png"}, m.LightStyleImages)
	assert.Equal(t, color.NRGBA{128, 128, 128, 255}, sink.Image("lvl_style5_lightmap.png").At(1, 1))

	cfg.LightStyles = scene.StylesMerged
	m, sink = load(t, level(), cfg)
	assert.Equal(t, []string{"lvl_merged_lightmap.png"}, m.LightStyleImages)
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, sink.Image("lvl_merged_lightmap.png").At(1, 1))
}

func TestLoad_Displacement(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("nature/grass", 64, 64, 0)
	disp := b.addQuad(ti, 0, 0, 0, 64)
	b.addQuad(ti, 100, 0, 0, 64)
	b.addDisplacement(disp, 2, mgl32.Vec3{64, 64, 0}, 8)
	b.addModel(0, 2, 0)

	m, _ := load(t, b, scene.DefaultConfig())

	require.Len(t, m.Models[0].Meshes, 1)
	assert.Equal(t, 4, m.Models[0].Meshes[0].VertCount)
	assert.Len(t, m.Vertices, 4)

	require.Len(t, m.Models[0].DispMeshes, 1)
	dm := m.Models[0].DispMeshes[0]
	assert.Equal(t, 25, dm.VertCount)
	assert.Equal(t, 0, dm.VertOffset)
	assert.Equal(t, []scene.Submesh{{Offset: 6, Count: 96, Material: 0}}, dm.Submeshes)
	assert.Equal(t, mgl32.Vec3{0, 0, 8}, dm.Min)
	assert.Equal(t, mgl32.Vec3{64, 64, 8}, dm.Max)

	require.Len(t, m.DispVertices, 25)
	assert.Equal(t, mgl32.Vec3{64, 64, 8}, m.DispVertices[0].Position)
	assert.Equal(t, mgl32.Vec2{1, 1}, m.DispVertices[0].UV)
	for _, v := range m.DispVertices {
		assert.InDelta(t, 1, v.Normal.Z(), 1e-5)
		assert.InDelta(t, 1, v.Alpha, 1e-6)
	}
	for _, idx := range m.Indices[6:] {
		assert.Less(t, idx, uint32(25))
	}
}

func TestLoad_DisplacementErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(b *testVBSP, ti int)
	}{
		{
			name: "triangle",
			setup: func(b *testVBSP, ti int) {
				f := b.addPolygon(ti, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 64, 0}, mgl32.Vec3{64, 0, 0})
				b.addDisplacement(f, 2, mgl32.Vec3{}, 0)
			},
		},
		{
			name: "power",
			setup: func(b *testVBSP, ti int) {
				f := b.addQuad(ti, 0, 0, 0, 64)
				b.addDisplacement(f, 2, mgl32.Vec3{}, 0)
				b.dispInfos[0].Power = 7
			},
		},
		{
			name: "vertices",
			setup: func(b *testVBSP, ti int) {
				f := b.addQuad(ti, 0, 0, 0, 64)
				b.addDisplacement(f, 2, mgl32.Vec3{}, 0)
				b.dispVerts = b.dispVerts[:3]
			},
		},
		{
			name: "dispinfo",
			setup: func(b *testVBSP, ti int) {
				f := b.addQuad(ti, 0, 0, 0, 64)
				b.faces[f].DispInfo = 4
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := newTestVBSP()
			tt.setup(b, b.addMaterial("floor", 64, 64, 0))
			b.addModel(0, 1, 0)

			assertGeometryError(t, loadErr(b, scene.DefaultConfig()), 0, 0)
		})
	}
}

func pakfile(t *testing.T, files ...string) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(pngData.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoad_Pakfile(t *testing.T) {
	t.Parallel()

	level := func(pak []byte) *testVBSP {
		b := newTestVBSP()
		b.addQuad(b.addMaterial("Brick/Red", 64, 64, 0), 0, 0, 0, 64)
		b.addQuad(b.addMaterial("brick/missing", 32, 32, 0), 0, 0, 0, 64)
		b.addModel(0, 2, 0)
		b.pakfile = pak
		return b
	}

	cfg := scene.DefaultConfig()
	m, _ := load(t, level(pakfile(t, "materials/brick/red.png")), cfg)
	assert.Nil(t, m.Textures[0].Image)

	cfg.UsePakfile = true
	m, _ = load(t, level(pakfile(t, "materials/brick/red.png")), cfg)
	require.NotNil(t, m.Textures[0].Image)
	assert.Equal(t, image.Rect(0, 0, 4, 4), m.Textures[0].Image.Bounds())
	assert.Equal(t, "brick/red", m.Textures[0].Name)
	assert.Equal(t, 64, m.Textures[0].Width)
	assert.True(t, m.Textures[1].Placeholder)

	// a broken pakfile is ignored
	m, _ = load(t, level([]byte("not a zip")), cfg)
	assert.Nil(t, m.Textures[0].Image)
}

func TestLoad_Entities(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addModel(0, 1, 0)
	b.addModel(1, 1, 0)
	b.entities = `{ "classname" "worldspawn" }
{ "classname" "func_door" "model" "*1" "origin" "1 2 3" }`

	m, _ := load(t, b, scene.DefaultConfig())
	require.Len(t, m.Entities, 2)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, m.Models[1].Origin)
	assert.Empty(t, m.WadNames)
}

func TestLoad_CompressedLump(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	b.addQuad(b.addMaterial("floor", 64, 64, 0), 0, 0, 0, 64)
	b.addModel(0, 1, 0)
	b.compressed = map[int]bool{LumpFaces: true}

	err := loadErr(b, scene.DefaultConfig())
	assert.True(t, errors.Is(err, scene.ErrMalformedGeometry), "%v", err)
}

func TestLoad_MalformedFaceEdges(t *testing.T) {
	t.Parallel()

	b := newTestVBSP()
	ti := b.addMaterial("floor", 64, 64, 0)
	b.addQuad(ti, 0, 0, 0, 64)
	b.addQuad(ti, 0, 0, 0, 64)
	b.surfEdges[6] = 500
	b.addModel(0, 2, 0)

	assertGeometryError(t, loadErr(b, scene.DefaultConfig()), 0, 1)
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	for _, v := range []int32{19, 20, 21} {
		b := newTestVBSP()
		b.version = v

		h, err := ParseHeader(b.bytes())
		require.NoError(t, err)
		assert.Equal(t, int(v), h.Version)
		assert.Equal(t, 7, h.Revision)
		assert.True(t, h.Format().IsSource())
		assert.Equal(t, scene.FormatSourceV19+scene.Format(v-19), h.Format())
	}

	b := newTestVBSP()
	b.version = 22
	_, err := ParseHeader(b.bytes())
	assert.True(t, errors.Is(err, scene.ErrUnknownFormat))

	_, err = ParseHeader([]byte{30, 0, 0, 0, 1, 2, 3, 4})
	assert.True(t, errors.Is(err, scene.ErrUnknownFormat))

	_, err = ParseHeader(b.bytes()[:100])
	assert.True(t, errors.Is(err, scene.ErrUnknownFormat))

	b.version = 20
	_, err = ParseHeader(b.bytes()[:100])
	assert.True(t, errors.Is(err, scene.ErrMalformedGeometry))
}
