package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/born/autodiff"
	borngen "github.com/born-ml/born/generate"
	"github.com/born-ml/born/tensor"
	"github.com/spf13/cobra"

	"github.com/born-ml/poet/internal/config"
	"github.com/born-ml/poet/internal/corpus"
	"github.com/born-ml/poet/internal/generate"
	"github.com/born-ml/poet/internal/model"
)

func newGenCommand() *cobra.Command {
	var configPath string
	flagCfg := config.DefaultGenerate()

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a poem from a trained model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd, configPath, config.DefaultGenerate(), bindGenerateFlags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return generateOn(cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML file with generation settings")
	bindGenerateFlags(cmd.Flags(), &flagCfg)
	return cmd
}

func samplingConfig(cfg config.Generate) borngen.SamplingConfig {
	return borngen.SamplingConfig{
		Temperature:   cfg.Temperature,
		TopK:          cfg.TopK,
		TopP:          1,
		RepeatPenalty: 1,
		Seed:          cfg.Seed,
	}
}

// runGenerate rebuilds the vocabulary, loads the checkpoint and prints one
// poem to out.
func runGenerate[B tensor.Backend](cfg config.Generate, backend *autodiff.Backend[B], out io.Writer) error {
	v, err := corpus.LoadVocab(cfg.CachePath, corpusOptions(cfg.Corpus))
	if err != nil {
		return err
	}

	mcfg := model.Config{
		VocabSize:    v.Size(),
		EmbeddingDim: cfg.EmbeddingDim,
		HiddenDim:    cfg.HiddenDim,
		NumLayers:    cfg.NumLayers,
	}
	m, err := model.Open(cfg.ModelPath, mcfg, backend)
	if err != nil {
		return err
	}

	decode := generate.Poem
	if cfg.Acrostic {
		decode = generate.Acrostic
	}
	opts := generate.Options{
		MaxLen:   cfg.MaxGenLen,
		Prefix:   cfg.PrefixWords,
		Sampling: samplingConfig(cfg),
	}
	poem, err := decode(m, v, cfg.StartWords, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, strings.Join(poem, ""))
	return nil
}
