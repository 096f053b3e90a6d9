package scene

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest is a human-readable summary of a Map: its buffers, models and the
// side-channel images that reference it.
type Manifest struct {
	Name          string             `yaml:"name"`
	Format        string             `yaml:"format"`
	Vertices      int                `yaml:"vertices"`
	DispVertices  int                `yaml:"disp_vertices"`
	Indices       int                `yaml:"indices"`
	NarrowIndices bool               `yaml:"narrow_indices"`
	Wads          []string           `yaml:"wads,omitempty"`
	Lightmaps     []string           `yaml:"lightmaps,omitempty"`
	Deluxemaps    []string           `yaml:"deluxemaps,omitempty"`
	LightStyles   []string           `yaml:"light_styles,omitempty"`
	Materials     []ManifestMaterial `yaml:"materials"`
	Models        []ManifestModel    `yaml:"models"`
}

type ManifestMaterial struct {
	Name        string `yaml:"name"`
	Texture     string `yaml:"texture,omitempty"`
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
	AlphaTest   bool   `yaml:"alpha_test,omitempty"`
	Lightmapped bool   `yaml:"lightmapped,omitempty"`
}

type ManifestModel struct {
	Origin     [3]float32     `yaml:"origin,flow"`
	Meshes     []ManifestMesh `yaml:"meshes,omitempty"`
	DispMeshes []ManifestMesh `yaml:"disp_meshes,omitempty"`
}

type ManifestMesh struct {
	Area       string            `yaml:"area,omitempty"`
	Offset     int               `yaml:"offset"`
	Count      int               `yaml:"count"`
	VertOffset int               `yaml:"vert_offset"`
	VertCount  int               `yaml:"vert_count"`
	Min        [3]float32        `yaml:"min,flow"`
	Max        [3]float32        `yaml:"max,flow"`
	Submeshes  []ManifestSubmesh `yaml:"submeshes"`
}

type ManifestSubmesh struct {
	Material int `yaml:"material"`
	Offset   int `yaml:"offset"`
	Count    int `yaml:"count"`
}

// NewManifest summarizes m under levelName.
func NewManifest(m *Map, levelName string) Manifest {
	man := Manifest{
		Name:          levelName,
		Format:        m.Format.String(),
		Vertices:      len(m.Vertices),
		DispVertices:  len(m.DispVertices),
		Indices:       len(m.Indices),
		NarrowIndices: m.NarrowIndices,
		Wads:          m.WadNames,
		Lightmaps:     m.LightmapPages,
		Deluxemaps:    m.DeluxemapPages,
		LightStyles:   m.LightStyleImages,
	}

	for i, mat := range m.Materials {
		mm := ManifestMaterial{
			Name:        mat.Name,
			AlphaTest:   mat.AlphaTest,
			Lightmapped: mat.Lightmapped,
		}
		if i < len(m.Textures) {
			mm.Texture = m.Textures[i].Name
			mm.Width = m.Textures[i].Width
			mm.Height = m.Textures[i].Height
		}
		man.Materials = append(man.Materials, mm)
	}

	for _, mdl := range m.Models {
		man.Models = append(man.Models, ManifestModel{
			Origin:     mdl.Origin,
			Meshes:     manifestMeshes(m, mdl.Meshes),
			DispMeshes: manifestMeshes(m, mdl.DispMeshes),
		})
	}

	return man
}

func manifestMeshes(m *Map, meshes []Mesh) []ManifestMesh {
	var out []ManifestMesh
	for _, mesh := range meshes {
		mm := ManifestMesh{
			Offset:     mesh.Offset,
			Count:      mesh.Count,
			VertOffset: mesh.VertOffset,
			VertCount:  mesh.VertCount,
			Min:        mesh.Min,
			Max:        mesh.Max,
		}
		if m.Format.IsSource() {
			mm.Area = mesh.Area.String()
		}
		for _, sm := range mesh.Submeshes {
			mm.Submeshes = append(mm.Submeshes, ManifestSubmesh{Material: sm.Material, Offset: sm.Offset, Count: sm.Count})
		}
		out = append(out, mm)
	}
	return out
}

// ManifestWriter writes <Dir>/<levelName>.yaml.
type ManifestWriter struct {
	Dir string
}

func (w ManifestWriter) Export(m *Map, levelName string) error {
	data, err := yaml.Marshal(NewManifest(m, levelName))
	if err != nil {
		return errors.Wrap(err, "failed to marshal manifest")
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", w.Dir)
	}

	path := filepath.Join(w.Dir, levelName+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write manifest %q", path)
	}

	return nil
}
