package main

import (
	"errors"
	"io"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"

	"github.com/born-ml/poet/internal/config"
)

// ErrDeviceUnavailable is returned when the requested device cannot be used
// on this system.
var ErrDeviceUnavailable = errors.New("device unavailable")

func trainOn(cfg config.Train, out io.Writer) error {
	if cfg.Device == config.DeviceWebGPU {
		return trainWebGPU(cfg, out)
	}
	return runTrain(cfg, autodiff.New(cpu.New()), out)
}

func generateOn(cfg config.Generate, out io.Writer) error {
	if cfg.Device == config.DeviceWebGPU {
		return generateWebGPU(cfg, out)
	}
	return runGenerate(cfg, autodiff.New(cpu.New()), out)
}
