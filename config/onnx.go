//go:build onnx

package config

import (
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func newONNXEmbedder(cfg EmbedderConfig, logger log.Logger) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizerPath,
		LibraryPath:   cfg.ONNXLibraryPath,
		Dimensions:    cfg.Dimensions,
	}, logger)
}
