// Package config holds the settings of the train and gen commands.
//
// Values are built once, in order: defaults, then an optional YAML file, then
// command-line flags, and finally validated. After that they are passed by
// value and never modified.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string // yaml key of the setting
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalid, e.Field, e.Details)
}

// Unwrap returns ErrInvalid.
func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Details: fmt.Sprintf(format, args...)}
}

// Supported devices.
const (
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// Corpus selects and shapes the training poems. The generation command uses
// it too, to rebuild the vocabulary a checkpoint was trained with.
type Corpus struct {
	DataDir   string `yaml:"data_dir"`   // directory of chinese-poetry JSON files
	CachePath string `yaml:"cache_path"` // preprocessed corpus cache
	Category  string `yaml:"category"`   // poet.tang or poet.song
	Author    string `yaml:"author"`     // only learn this author's poems
	Constrain int    `yaml:"constrain"`  // only poems whose sentences have this length
	MaxLen    int    `yaml:"max_len"`    // characters past this are dropped, shorter poems are padded in front
}

// Model holds the network dimensions.
type Model struct {
	EmbeddingDim int `yaml:"embedding_dim"`
	HiddenDim    int `yaml:"hidden_dim"`
	NumLayers    int `yaml:"num_layers"`
}

// Train configures the train command.
type Train struct {
	Corpus `yaml:",inline"`
	Model  `yaml:",inline"`

	LR          float64 `yaml:"lr"`
	WeightDecay float64 `yaml:"weight_decay"`
	Clip        float64 `yaml:"clip"` // global gradient norm limit, 0 = off
	Epochs      int     `yaml:"epochs"`
	BatchSize   int     `yaml:"batch_size"`
	Seed        int64   `yaml:"seed"`
	Device      string  `yaml:"device"`

	PlotEvery   int    `yaml:"plot_every"`   // log artifacts every N batches
	MaxGenLen   int    `yaml:"max_gen_len"`  // length of the sample poems
	LogDir      string `yaml:"log_dir"`      // loss and sample poem logs
	DebugFile   string `yaml:"debug_file"`   // parameter norms are logged while this file exists
	ModelPath   string `yaml:"model_path"`   // pretrained checkpoint to start from
	ModelPrefix string `yaml:"model_prefix"` // checkpoints are written to <prefix>_<epoch>.born
}

// Generate configures the gen command.
type Generate struct {
	Corpus `yaml:",inline"`
	Model  `yaml:",inline"`

	ModelPath   string  `yaml:"model_path"`
	StartWords  string  `yaml:"start_words"`  // poem opening, or the acrostic phrase
	PrefixWords string  `yaml:"prefix_words"` // sets the mood, not part of the poem
	Acrostic    bool    `yaml:"acrostic"`
	MaxGenLen   int     `yaml:"max_gen_len"`
	Temperature float32 `yaml:"temperature"` // 0 = greedy
	TopK        int     `yaml:"top_k"`
	Seed        int64   `yaml:"seed"`
	Device      string  `yaml:"device"`
}

// DefaultCorpus returns the Tang poetry corpus settings.
func DefaultCorpus() Corpus {
	return Corpus{
		DataDir:   "data",
		CachePath: "tang.gob",
		Category:  "poet.tang",
		MaxLen:    125,
	}
}

// DefaultModel returns the standard network dimensions.
func DefaultModel() Model {
	return Model{EmbeddingDim: 128, HiddenDim: 256, NumLayers: 2}
}

// DefaultTrain returns the default training settings.
func DefaultTrain() Train {
	return Train{
		Corpus:      DefaultCorpus(),
		Model:       DefaultModel(),
		LR:          1e-3,
		WeightDecay: 1e-4,
		Epochs:      20,
		BatchSize:   128,
		Seed:        1,
		Device:      DeviceCPU,
		PlotEvery:   20,
		MaxGenLen:   200,
		LogDir:      "logs",
		DebugFile:   "/tmp/debugp",
		ModelPrefix: "checkpoints/tang",
	}
}

// DefaultGenerate returns the default generation settings.
func DefaultGenerate() Generate {
	return Generate{
		Corpus:      DefaultCorpus(),
		Model:       DefaultModel(),
		StartWords:  "闲云潭影日悠悠",
		PrefixWords: "细雨鱼儿出，微风燕子斜。",
		MaxGenLen:   200,
		Seed:        -1,
		Device:      DeviceCPU,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile[T Train | Generate](path string, cfg *T) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: config path is user supplied by design
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Corpus) validate() error {
	if c.CachePath == "" && c.DataDir == "" {
		return invalid("data_dir", "either data_dir or cache_path is required")
	}
	if c.MaxLen < 2 {
		return invalid("max_len", "must be at least 2, got %d", c.MaxLen)
	}
	if c.Constrain < 0 {
		return invalid("constrain", "must not be negative, got %d", c.Constrain)
	}
	return nil
}

func (m Model) validate() error {
	if m.EmbeddingDim <= 0 {
		return invalid("embedding_dim", "must be positive, got %d", m.EmbeddingDim)
	}
	if m.HiddenDim <= 0 {
		return invalid("hidden_dim", "must be positive, got %d", m.HiddenDim)
	}
	if m.NumLayers <= 0 {
		return invalid("num_layers", "must be positive, got %d", m.NumLayers)
	}
	return nil
}

func validateDevice(device string) error {
	if device != DeviceCPU && device != DeviceWebGPU {
		return invalid("device", "must be %q or %q, got %q", DeviceCPU, DeviceWebGPU, device)
	}
	return nil
}

// Validate checks the training settings.
func (t Train) Validate() error {
	if err := t.Corpus.validate(); err != nil {
		return err
	}
	if err := t.Model.validate(); err != nil {
		return err
	}
	switch {
	case t.LR <= 0:
		return invalid("lr", "must be positive, got %g", t.LR)
	case t.WeightDecay < 0:
		return invalid("weight_decay", "must not be negative, got %g", t.WeightDecay)
	case t.Clip < 0:
		return invalid("clip", "must not be negative, got %g", t.Clip)
	case t.Epochs <= 0:
		return invalid("epochs", "must be positive, got %d", t.Epochs)
	case t.BatchSize <= 0:
		return invalid("batch_size", "must be positive, got %d", t.BatchSize)
	case t.PlotEvery <= 0:
		return invalid("plot_every", "must be positive, got %d", t.PlotEvery)
	case t.MaxGenLen < 0:
		return invalid("max_gen_len", "must not be negative, got %d", t.MaxGenLen)
	case t.ModelPrefix == "":
		return invalid("model_prefix", "is required")
	}
	return validateDevice(t.Device)
}

// Validate checks the generation settings.
func (g Generate) Validate() error {
	if err := g.Corpus.validate(); err != nil {
		return err
	}
	if err := g.Model.validate(); err != nil {
		return err
	}
	switch {
	case g.ModelPath == "":
		return invalid("model_path", "is required")
	case g.StartWords == "":
		return invalid("start_words", "is required")
	case g.MaxGenLen < 0:
		return invalid("max_gen_len", "must not be negative, got %d", g.MaxGenLen)
	case g.Temperature < 0:
		return invalid("temperature", "must not be negative, got %g", g.Temperature)
	case g.TopK < 0:
		return invalid("top_k", "must not be negative, got %d", g.TopK)
	}
	return validateDevice(g.Device)
}
