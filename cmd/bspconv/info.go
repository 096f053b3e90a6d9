package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/hlbsp"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/vbsp"
)

var hlLumpNames = [...]string{
	hlbsp.LumpEntities:     "Entities",
	hlbsp.LumpPlanes:       "Planes",
	hlbsp.LumpTextures:     "Textures",
	hlbsp.LumpVertexes:     "Vertexes",
	hlbsp.LumpVisibility:   "Visibility",
	hlbsp.LumpNodes:        "Nodes",
	hlbsp.LumpTexinfo:      "Texinfo",
	hlbsp.LumpFaces:        "Faces",
	hlbsp.LumpLighting:     "Lighting",
	hlbsp.LumpClipnodes:    "Clipnodes",
	hlbsp.LumpLeafs:        "Leafs",
	hlbsp.LumpMarkSurfaces: "Marksurfaces",
	hlbsp.LumpEdges:        "Edges",
	hlbsp.LumpSurfEdges:    "Surfedges",
	hlbsp.LumpModels:       "Models",
}

var hlExtraLumpNames = map[int]string{
	hlbsp.ExtraLumpLightVecs: "LightVecs",
	hlbsp.ExtraLumpFaceInfo:  "FaceInfo",
}

var sourceLumpNames = map[int]string{
	vbsp.LumpEntities:           "Entities",
	vbsp.LumpTexData:            "TexData",
	vbsp.LumpVertexes:           "Vertexes",
	vbsp.LumpNodes:              "Nodes",
	vbsp.LumpTexinfo:            "Texinfo",
	vbsp.LumpFaces:              "Faces",
	vbsp.LumpLighting:           "Lighting",
	vbsp.LumpLeafs:              "Leafs",
	vbsp.LumpEdges:              "Edges",
	vbsp.LumpSurfEdges:          "Surfedges",
	vbsp.LumpModels:             "Models",
	vbsp.LumpLeafFaces:          "LeafFaces",
	vbsp.LumpDispInfo:           "DispInfo",
	vbsp.LumpVertNormals:        "VertNormals",
	vbsp.LumpVertNormalIndices:  "VertNormalIndices",
	vbsp.LumpDispVerts:          "DispVerts",
	vbsp.LumpPakfile:            "Pakfile",
	vbsp.LumpTexDataStringData:  "TexDataStringData",
	vbsp.LumpTexDataStringTable: "TexDataStringTable",
	vbsp.LumpLightingHDR:        "LightingHDR",
	vbsp.LumpFacesHDR:           "FacesHDR",
}

func lumpName(names map[int]string, i int) string {
	if name, ok := names[i]; ok {
		return name
	}
	return fmt.Sprintf("Lump %d", i)
}

func printLump(w io.Writer, name string, offset, length int) {
	fmt.Fprintf(w, "     %-24s %8.1f kB @ %8d ofs\n", name, float64(length)/1024.0, offset)
}

var infoCmd = &cobra.Command{
	Use:   "info <map>",
	Short: "Print the format and lump directory of a level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to read %q", args[0])
		}
		return printInfo(cmd.OutOrStdout(), path.Base(args[0]), data)
	},
}

func printInfo(w io.Writer, name string, data []byte) error {
	format, err := bspconv.DetectFormat(bytes.NewReader(data))
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Filename:", name)
	fmt.Fprintln(w, "  Format:", format)

	if format.IsSource() {
		h, err := vbsp.ParseHeader(data)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Revision:", h.Revision)
		fmt.Fprintln(w, "   Lumps:")
		for i, l := range h.Lumps {
			if l.Length == 0 {
				continue
			}
			printLump(w, lumpName(sourceLumpNames, i), l.Offset, l.Length)
		}
		return nil
	}

	h, err := hlbsp.ParseHeader(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "   Lumps:")
	for i, l := range h.Lumps {
		printLump(w, hlLumpNames[i], l.Offset, l.Length)
	}
	if h.Extra {
		fmt.Fprintln(w, "   Extra:")
		for i, l := range h.ExtraLumps {
			if l.Length == 0 {
				continue
			}
			printLump(w, lumpName(hlExtraLumpNames, i), l.Offset, l.Length)
		}
	}
	return nil
}
