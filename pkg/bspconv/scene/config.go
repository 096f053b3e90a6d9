package scene

import (
	"github.com/pkg/errors"
)

// StyleMode selects how animated light styles are emitted.
type StyleMode string

const (
	// StylesNone bakes only style 0 into the atlas.
	StylesNone StyleMode = "none"
	// StylesSingle writes one extra image for Config.LightStyle.
	StylesSingle StyleMode = "single"
	// StylesEach writes one extra image for every style present in the level.
	StylesEach StyleMode = "each"
	// StylesMerged writes one image with every style summed.
	StylesMerged StyleMode = "merged"
)

// OverflowPolicy decides what happens when lightmaps exceed LightmapSize.
type OverflowPolicy string

const (
	OverflowFail         OverflowPolicy = "fail"
	OverflowDropLighting OverflowPolicy = "drop_lighting"
)

// Config holds the conversion settings shared by both parsers.
type Config struct {
	SkipSky       bool           `yaml:"skip_sky"`
	LightmapSize  int            `yaml:"lightmap_size"`
	LightStyle    int            `yaml:"light_style"`
	LightStyles   StyleMode      `yaml:"light_styles"`
	NarrowIndices bool           `yaml:"narrow_indices"`
	AllTextures   bool           `yaml:"all_textures"`
	UsePakfile    bool           `yaml:"use_pakfile"`
	AtlasOverflow OverflowPolicy `yaml:"atlas_overflow"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LightmapSize:  2048,
		LightStyle:    -1,
		LightStyles:   StylesNone,
		AtlasOverflow: OverflowFail,
	}
}

// MinLightmapSize is the initial atlas edge length.
const MinLightmapSize = 32

// Validate checks value ranges and enum members.
func (c Config) Validate() error {
	if c.LightmapSize < MinLightmapSize {
		return errors.Errorf("lightmap_size must be at least %d, got %d", MinLightmapSize, c.LightmapSize)
	}

	switch c.LightStyles {
	case StylesNone, StylesEach, StylesMerged:
	case StylesSingle:
		if c.LightStyle < 0 || c.LightStyle > 254 {
			return errors.Errorf("light_style must be within 0..254 for mode %q, got %d", c.LightStyles, c.LightStyle)
		}
	default:
		return errors.Errorf("unknown light_styles mode %q", c.LightStyles)
	}

	switch c.AtlasOverflow {
	case OverflowFail, OverflowDropLighting:
	default:
		return errors.Errorf("unknown atlas_overflow policy %q", c.AtlasOverflow)
	}

	return nil
}
