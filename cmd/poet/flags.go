package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/born-ml/poet/internal/config"
	"github.com/born-ml/poet/internal/corpus"
)

func bindCorpusFlags(fs *pflag.FlagSet, c *config.Corpus) {
	fs.StringVar(&c.DataDir, "data", c.DataDir, "Directory containing the chinese-poetry JSON files")
	fs.StringVar(&c.CachePath, "cache", c.CachePath, "Preprocessed corpus cache (built on first use)")
	fs.StringVar(&c.Category, "category", c.Category, "Corpus file prefix: poet.tang or poet.song")
	fs.StringVar(&c.Author, "author", c.Author, "Only use poems by this author")
	fs.IntVar(&c.Constrain, "constrain", c.Constrain, "Only use poems whose sentences have this many characters (0 = any)")
	fs.IntVar(&c.MaxLen, "max-len", c.MaxLen, "Sequence length; longer poems are cut, shorter ones padded")
}

func bindModelFlags(fs *pflag.FlagSet, m *config.Model) {
	fs.IntVar(&m.EmbeddingDim, "embedding-dim", m.EmbeddingDim, "Character embedding size")
	fs.IntVar(&m.HiddenDim, "hidden-dim", m.HiddenDim, "LSTM hidden size")
	fs.IntVar(&m.NumLayers, "num-layers", m.NumLayers, "Number of LSTM layers")
}

func bindTrainFlags(fs *pflag.FlagSet, cfg *config.Train) {
	bindCorpusFlags(fs, &cfg.Corpus)
	bindModelFlags(fs, &cfg.Model)
	fs.Float64Var(&cfg.LR, "lr", cfg.LR, "Learning rate for Adam")
	fs.Float64Var(&cfg.WeightDecay, "weight-decay", cfg.WeightDecay, "L2 weight decay")
	fs.Float64Var(&cfg.Clip, "clip", cfg.Clip, "Clip gradients to this global norm (0 = off)")
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Number of training epochs")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Poems per batch")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Shuffle seed")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Compute device: cpu or webgpu")
	fs.IntVar(&cfg.PlotEvery, "plot-every", cfg.PlotEvery, "Write loss and sample poems every N batches")
	fs.IntVar(&cfg.MaxGenLen, "max-gen-len", cfg.MaxGenLen, "Maximum length of the sample poems")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for loss and sample poem logs")
	fs.StringVar(&cfg.DebugFile, "debug-file", cfg.DebugFile, "Log parameter norms while this file exists")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Pretrained checkpoint to start from")
	fs.StringVar(&cfg.ModelPrefix, "model-prefix", cfg.ModelPrefix, "Checkpoints are saved as <prefix>_<epoch>.born")
}

func bindGenerateFlags(fs *pflag.FlagSet, cfg *config.Generate) {
	bindCorpusFlags(fs, &cfg.Corpus)
	bindModelFlags(fs, &cfg.Model)
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Checkpoint to generate with")
	fs.StringVar(&cfg.StartWords, "start", cfg.StartWords, "Opening of the poem, or the acrostic phrase")
	fs.StringVar(&cfg.PrefixWords, "prefix", cfg.PrefixWords, "Mood-setting text fed before the poem, not printed")
	fs.BoolVar(&cfg.Acrostic, "acrostic", cfg.Acrostic, "Write an acrostic poem")
	fs.IntVar(&cfg.MaxGenLen, "max-gen-len", cfg.MaxGenLen, "Maximum number of generation steps")
	fs.Float32Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature (0 for greedy)")
	fs.IntVar(&cfg.TopK, "top-k", cfg.TopK, "Sample from the K most likely characters (0 = all)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Sampling seed (-1 = random)")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Compute device: cpu or webgpu")
}

// resolve builds the final settings: defaults, then the --config file, then
// the flags given on the command line.
func resolve[T config.Train | config.Generate](cmd *cobra.Command, configPath string, defaults T, bind func(*pflag.FlagSet, *T)) (T, error) {
	cfg := defaults
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	bind(overlay, &cfg)

	var err error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if err != nil || overlay.Lookup(f.Name) == nil {
			return
		}
		if setErr := overlay.Set(f.Name, f.Value.String()); setErr != nil {
			err = fmt.Errorf("flag --%s: %w", f.Name, setErr)
		}
	})
	return cfg, err
}

func corpusOptions(c config.Corpus) corpus.Options {
	return corpus.Options{
		Dir:       c.DataDir,
		Category:  c.Category,
		Author:    c.Author,
		Constrain: c.Constrain,
		MaxLen:    c.MaxLen,
	}
}
