//go:build !windows

package main

import (
	"fmt"
	"io"

	"github.com/born-ml/poet/internal/config"
)

func trainWebGPU(config.Train, io.Writer) error {
	return fmt.Errorf("%w: webgpu is only supported on windows builds", ErrDeviceUnavailable)
}

func generateWebGPU(config.Generate, io.Writer) error {
	return fmt.Errorf("%w: webgpu is only supported on windows builds", ErrDeviceUnavailable)
}
