package pix2pix_go

import (
	"fmt"
	"log"
	"os"
)

// ModelConfig Architecture of both networks
//
// ImageSize - height and width of samples
// Base - width of first U-Net level and first discriminator convolution
// Levels - number of U-Net encoder/decoder levels
// DropoutRatio - dropout ratio of U-Net decoder blocks during training
//
type ModelConfig struct {
	ImageSize    int
	Base         int
	Levels       int
	DropoutRatio float64
}

// Config Hyperparameters and paths for training and inference
type Config struct {
	Model ModelConfig

	DatasetDir     string
	CheckpointPath string
	OutputDir      string
	LossPlotPath   string

	BatchSize       int
	Iterations      int
	LearnRate       float64
	Beta1           float64
	Beta2           float64
	Lambda          float64
	NCritic         int
	LogEvery        int
	CheckpointEvery int

	HorizontalFlip bool
	VerticalFlip   bool
	EdgeLow        float64
	EdgeHigh       float64

	PenaltyStep      float64
	PerSamplePenalty bool

	TestSamples int
	Seed        int64

	Logger *log.Logger
}

// DefaultModelConfig Returns architecture used for 128x128 edge-to-photo translation
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		ImageSize:    128,
		Base:         32,
		Levels:       7,
		DropoutRatio: 0.5,
	}
}

// DefaultConfig Returns default hyperparameters
func DefaultConfig() Config {
	return Config{
		Model:           DefaultModelConfig(),
		DatasetDir:      "datasets",
		CheckpointPath:  "pix2pix.gob",
		OutputDir:       "results",
		BatchSize:       8,
		Iterations:      10000,
		LearnRate:       0.0001,
		Beta1:           0.5,
		Beta2:           0.999,
		Lambda:          1.0,
		NCritic:         5,
		LogEvery:        10,
		CheckpointEvery: 10000,
		HorizontalFlip:  true,
		VerticalFlip:    false,
		EdgeLow:         100,
		EdgeHigh:        150,
		PenaltyStep:     1e-3,
		TestSamples:     40,
		Seed:            0,
		Logger:          log.New(os.Stdout, "", 0),
	}
}

// Width Returns number of channels of i-th U-Net level
func (mc ModelConfig) Width(level int) int {
	w := mc.Base << uint(level)
	if w > 16*mc.Base {
		w = 16 * mc.Base
	}
	return w
}

// Validate Checks that architecture is buildable
func (mc ModelConfig) Validate() error {
	if mc.ImageSize <= 0 || mc.Base <= 0 || mc.Levels <= 0 {
		return fmt.Errorf("ImageSize, Base and Levels must be positive, got %d, %d, %d", mc.ImageSize, mc.Base, mc.Levels)
	}
	if mc.ImageSize%(1<<uint(mc.Levels)) != 0 {
		return fmt.Errorf("ImageSize %d must be divisible by 2^%d", mc.ImageSize, mc.Levels)
	}
	if mc.ImageSize%16 != 0 {
		return fmt.Errorf("ImageSize %d must be divisible by 16 (four strided discriminator convolutions)", mc.ImageSize)
	}
	if mc.DropoutRatio < 0 || mc.DropoutRatio >= 1 {
		return fmt.Errorf("DropoutRatio must be in [0, 1), got %f", mc.DropoutRatio)
	}
	return nil
}

// Validate Checks hyperparameters
func (cfg Config) Validate() error {
	if err := cfg.Model.Validate(); err != nil {
		return err
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("BatchSize must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Iterations < 0 {
		return fmt.Errorf("Iterations must not be negative, got %d", cfg.Iterations)
	}
	if cfg.NCritic <= 0 {
		return fmt.Errorf("NCritic must be positive, got %d", cfg.NCritic)
	}
	if cfg.LearnRate <= 0 {
		return fmt.Errorf("LearnRate must be positive, got %f", cfg.LearnRate)
	}
	if cfg.PenaltyStep <= 0 {
		return fmt.Errorf("PenaltyStep must be positive, got %f", cfg.PenaltyStep)
	}
	if cfg.EdgeLow > cfg.EdgeHigh {
		return fmt.Errorf("EdgeLow (%f) must not exceed EdgeHigh (%f)", cfg.EdgeLow, cfg.EdgeHigh)
	}
	return nil
}

func (cfg Config) logger() *log.Logger {
	if cfg.Logger == nil {
		return log.New(os.Stdout, "", 0)
	}
	return cfg.Logger
}

func (cfg Config) loadOptions(hflip, vflip bool) LoadOptions {
	return LoadOptions{
		Size:           cfg.Model.ImageSize,
		HorizontalFlip: hflip,
		VerticalFlip:   vflip,
		EdgeLow:        cfg.EdgeLow,
		EdgeHigh:       cfg.EdgeHigh,
	}
}
