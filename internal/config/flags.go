package config

import (
	"github.com/spf13/cobra"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Flags holds the command line overrides. Only flags the user actually set
// override the file.
type Flags struct {
	ConfigPath string

	debug         bool
	logFile       string
	outputDir     string
	manifest      bool
	textureDirs   []string
	archives      []string
	skipSky       bool
	lightmapSize  int
	lightStyles   string
	lightStyle    int
	narrowIndices bool
	allTextures   bool
	pakfile       bool
	dropLighting  bool

	changed func(name string) bool
}

// Register adds the flags to cmd.
func (f *Flags) Register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to config file (default ./"+FileName+")")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.StringVar(&f.logFile, "log-file", "", "also write logs to this rotating file")
	fs.StringVarP(&f.outputDir, "output", "o", "", "output directory")
	fs.BoolVar(&f.manifest, "manifest", false, "write a YAML manifest of the converted level")
	fs.StringSliceVarP(&f.textureDirs, "textures", "t", nil, "directories with loose texture images")
	fs.StringSliceVar(&f.archives, "archive", nil, "zip archives with texture images")
	fs.BoolVar(&f.skipSky, "skip-sky", false, "drop sky faces")
	fs.IntVar(&f.lightmapSize, "lightmap-size", 0, "maximum lightmap atlas edge length")
	fs.StringVar(&f.lightStyles, "light-styles", "", "light style images: none, single, each or merged")
	fs.IntVar(&f.lightStyle, "light-style", -1, "style written by --light-styles=single")
	fs.BoolVar(&f.narrowIndices, "narrow-indices", false, "split meshes so indices fit 16 bits")
	fs.BoolVar(&f.allTextures, "all-textures", false, "resolve textures stored outside the level")
	fs.BoolVar(&f.pakfile, "pakfile", false, "look up textures in the embedded Source pakfile first")
	fs.BoolVar(&f.dropLighting, "drop-lighting", false, "convert without lighting when lightmaps do not fit")

	f.changed = fs.Changed
}

func (f *Flags) set(name string) bool {
	return f.changed != nil && f.changed(name)
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.set("debug") && f.debug {
		cfg.Logging.Level = "debug"
	}
	if f.set("log-file") {
		cfg.Logging.LogFile = f.logFile
	}
	if f.set("output") {
		cfg.Output.Dir = f.outputDir
	}
	if f.set("manifest") {
		cfg.Output.Manifest = f.manifest
	}
	if f.set("textures") {
		cfg.Textures.Dirs = f.textureDirs
	}
	if f.set("archive") {
		cfg.Textures.Archives = f.archives
	}
	if f.set("skip-sky") {
		cfg.Convert.SkipSky = f.skipSky
	}
	if f.set("lightmap-size") {
		cfg.Convert.LightmapSize = f.lightmapSize
	}
	if f.set("light-styles") {
		cfg.Convert.LightStyles = scene.StyleMode(f.lightStyles)
	}
	if f.set("light-style") {
		cfg.Convert.LightStyle = f.lightStyle
	}
	if f.set("narrow-indices") {
		cfg.Convert.NarrowIndices = f.narrowIndices
	}
	if f.set("all-textures") {
		cfg.Convert.AllTextures = f.allTextures
	}
	if f.set("pakfile") {
		cfg.Convert.UsePakfile = f.pakfile
	}
	if f.set("drop-lighting") {
		cfg.Convert.AtlasOverflow = scene.OverflowFail
		if f.dropLighting {
			cfg.Convert.AtlasOverflow = scene.OverflowDropLighting
		}
	}
}
