package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// ModelType is the model type recorded in checkpoint headers.
const ModelType = "PoetryModel"

// Metadata keys written to every checkpoint.
const (
	MetaVocabSize    = "vocab_size"
	MetaEmbeddingDim = "embedding_dim"
	MetaHiddenDim    = "hidden_dim"
	MetaNumLayers    = "num_layers"
	MetaEpoch        = "epoch"
)

// CheckpointPath returns the file name used for the checkpoint of an epoch.
func CheckpointPath(prefix string, epoch int) string {
	return fmt.Sprintf("%s_%d.born", prefix, epoch)
}

// Save writes the parameters to path in Born's native format. Missing parent
// directories are created.
func (m *PoetryModel[B]) Save(path string, epoch int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	meta := map[string]string{
		MetaVocabSize:    strconv.Itoa(m.cfg.VocabSize),
		MetaEmbeddingDim: strconv.Itoa(m.cfg.EmbeddingDim),
		MetaHiddenDim:    strconv.Itoa(m.cfg.HiddenDim),
		MetaNumLayers:    strconv.Itoa(m.cfg.NumLayers),
		MetaEpoch:        strconv.Itoa(epoch),
	}
	if err := nn.Save[B](m, path, ModelType, meta); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads a checkpoint written by Save into m and returns its metadata.
// The checkpoint must match the model's vocabulary size and dimensions.
func (m *PoetryModel[B]) Load(path string) (map[string]string, error) {
	header, err := nn.Load[B](path, m.backend, m)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}

	meta := header.Metadata
	if v, ok := meta[MetaVocabSize]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: bad %s %q", path, MetaVocabSize, v)
		}
		if n != m.cfg.VocabSize {
			return nil, fmt.Errorf("load checkpoint %s: %w: checkpoint has %d tokens, vocabulary has %d",
				path, ErrVocabMismatch, n, m.cfg.VocabSize)
		}
	}
	return meta, nil
}

// Open builds a model for cfg on backend and fills it from the checkpoint at
// path.
func Open[B tensor.Backend](path string, cfg Config, backend B) (*PoetryModel[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := New(cfg, backend)
	if _, err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}
