// Package config handles the command line tool's configuration.
package config

import (
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Config holds all tool settings.
type Config struct {
	Convert  scene.Config   `yaml:"convert"`
	Output   OutputConfig   `yaml:"output"`
	Textures TexturesConfig `yaml:"textures"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// OutputConfig says where converted files go.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Manifest bool   `yaml:"manifest"` // write <dir>/<level>.yaml
}

// TexturesConfig lists the texture sources, searched in order: loose
// directories first, then zip archives (pk3 or pakfile dumps).
type TexturesConfig struct {
	Dirs     []string `yaml:"dirs,omitempty"`
	Archives []string `yaml:"archives,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with the documented default values.
func Default() *Config {
	return &Config{
		Convert: scene.DefaultConfig(),
		Output: OutputConfig{
			Dir: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
