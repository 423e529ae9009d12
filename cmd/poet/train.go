package main

import (
	"fmt"
	"io"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"github.com/spf13/cobra"

	"github.com/born-ml/poet/internal/config"
	"github.com/born-ml/poet/internal/corpus"
	"github.com/born-ml/poet/internal/train"
)

func newTrainCommand() *cobra.Command {
	var configPath string
	flagCfg := config.DefaultTrain()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a poem model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd, configPath, config.DefaultTrain(), bindTrainFlags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return trainOn(cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML file with training settings")
	bindTrainFlags(cmd.Flags(), &flagCfg)
	return cmd
}

// runTrain loads the corpus and trains on backend.
func runTrain[B tensor.Backend](cfg config.Train, backend *autodiff.Backend[B], out io.Writer) error {
	fmt.Fprintf(out, "Loading corpus (cache %s, data %s)\n", cfg.CachePath, cfg.DataDir)
	c, err := corpus.Load(cfg.CachePath, corpusOptions(cfg.Corpus))
	if err != nil {
		return err
	}

	trainer, err := train.New(cfg, c, backend, out)
	if err != nil {
		return err
	}
	if err := trainer.Run(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Training complete, checkpoints in %s_*.born\n", cfg.ModelPrefix)
	return nil
}
