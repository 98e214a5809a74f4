//go:build !onnx

package config

import (
	"errors"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
)

var errNoONNX = errors.New("onnx embedder not available: rebuild with -tags onnx")

func newONNXEmbedder(EmbedderConfig, log.Logger) (memory.Embedder, error) {
	return nil, errNoONNX
}
