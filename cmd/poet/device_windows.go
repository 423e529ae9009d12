//go:build windows

package main

import (
	"fmt"
	"io"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"

	"github.com/born-ml/poet/internal/config"
)

func newWebGPU() (*webgpu.Backend, error) {
	if !webgpu.IsAvailable() {
		return nil, fmt.Errorf("%w: webgpu (ensure wgpu-native is installed)", ErrDeviceUnavailable)
	}
	gpu, err := webgpu.New()
	if err != nil {
		return nil, fmt.Errorf("%w: webgpu: %w", ErrDeviceUnavailable, err)
	}
	return gpu, nil
}

func trainWebGPU(cfg config.Train, out io.Writer) error {
	gpu, err := newWebGPU()
	if err != nil {
		return err
	}
	defer gpu.Release()

	fmt.Fprintf(out, "Using %s\n", gpu.Name())
	return runTrain(cfg, autodiff.New(gpu), out)
}

func generateWebGPU(cfg config.Generate, out io.Writer) error {
	gpu, err := newWebGPU()
	if err != nil {
		return err
	}
	defer gpu.Release()

	return runGenerate(cfg, autodiff.New(gpu), out)
}
