package main

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/internal/config"
	"github.com/saiko-tech/bsp-converter/internal/logger"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/lightmap"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/texture"
)

var convertFlags = new(config.Flags)

var convertCmd = &cobra.Command{
	Use:   "convert <map>",
	Short: "Convert a level",
	Long: `Convert a level and write its lightmap atlas pages (and light style images)
as PNG files into the output directory, optionally with a YAML manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(convertFlags.ConfigPath, convertFlags)
		if err != nil {
			return err
		}

		logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
		defer logger.Sync()

		return convert(args[0], cfg)
	},
}

func init() {
	convertFlags.Register(convertCmd)
}

// textureProvider chains the configured texture sources. The returned closers
// release opened archives.
func textureProvider(cfg config.TexturesConfig) (scene.TextureProvider, []io.Closer, error) {
	var (
		chain   texture.Chain
		closers []io.Closer
	)

	if len(cfg.Dirs) > 0 {
		chain = append(chain, texture.DirProvider{Dirs: cfg.Dirs})
	}

	for _, path := range cfg.Archives {
		archive, err := texture.OpenArchive(path)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, err
		}
		logger.Log.Debug("opened texture archive", zap.String("archive", path), zap.Int("entries", archive.Len()))
		chain = append(chain, archive)
		closers = append(closers, archive)
	}

	if len(chain) == 0 {
		return nil, nil, nil
	}
	return chain, closers, nil
}

func convert(path string, cfg *config.Config) error {
	provider, closers, err := textureProvider(cfg.Textures)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	opts := scene.Options{
		Logger:   logger.Log,
		Textures: provider,
		Images:   lightmap.DirSink{Dir: cfg.Output.Dir},
	}

	start := time.Now()
	m, err := bspconv.LoadFile(path, cfg.Convert, opts)
	if err != nil {
		logger.Log.Error("conversion failed", zap.String("map", path), zap.Error(err))
		return err
	}

	if cfg.Output.Manifest {
		w := scene.ManifestWriter{Dir: cfg.Output.Dir}
		if err := w.Export(m, m.Name); err != nil {
			return errors.Wrap(err, "failed to export manifest")
		}
	}

	logger.Log.Info("converted",
		zap.String("map", m.Name),
		zap.Stringer("format", m.Format),
		zap.Int("models", len(m.Models)),
		zap.Int("materials", len(m.Materials)),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("triangles", m.TriangleCount()),
		zap.Strings("lightmaps", m.LightmapPages),
		zap.Strings("light_styles", m.LightStyleImages),
		zap.Duration("took", time.Since(start)),
	)

	return nil
}
