// Package main provides the poet CLI: train a poem model and generate poems
// with it.
//
// Usage:
//
//	poet train --data data --epochs 20
//	poet gen --model checkpoints/tang_19.born --start 闲云潭影日悠悠
//	poet gen --model checkpoints/tang_19.born --start 深度学习 --acrostic
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("poet: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "poet",
		Short:         "Train a character-level LSTM on classical poems and write new ones",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)

	root.AddCommand(
		newTrainCommand(),
		newGenCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "poet %s\n", version)
			},
		},
	)
	return root
}
