package main

import (
	"flag"
	"log"
	"os"

	pix2pix "github.com/LdDl/pix2pix-go"
)

var (
	train          = flag.Bool("train", false, "Train networks from scratch and write generator checkpoint")
	test           = flag.Bool("test", false, "Load generator checkpoint and render comparisons for first dataset samples")
	datasetDir     = flag.String("dataset", "datasets", "Root directory with class subdirectories of photos")
	checkpointPath = flag.String("checkpoint", "pix2pix.gob", "Generator checkpoint file")
	outputDir      = flag.String("output", "results", "Directory for comparison images")
	iterations     = flag.Int("iterations", 10000, "Number of training iterations")
	batchSize      = flag.Int("batch", 8, "Minibatch size")
	nCritic        = flag.Int("critic", 5, "Discriminator updates per iteration")
	learnRate      = flag.Float64("lr", 0.0001, "Learning rate of both Adam solvers")
	lambda         = flag.Float64("lambda", 1.0, "Weight of L1 term and gradient penalty")
	imageSize      = flag.Int("size", 128, "Side of square samples")
	base           = flag.Int("base", 32, "Width of first U-Net level and first discriminator convolution")
	levels         = flag.Int("levels", 7, "Number of U-Net levels")
	seed           = flag.Int64("seed", 0, "Seed for shuffling, flips, interpolation and dropout")
	lossPlot       = flag.String("loss-plot", "", "If set then loss chart is saved to this PNG file after training")
)

func main() {
	flag.Parse()

	cfg := pix2pix.DefaultConfig()
	cfg.DatasetDir = *datasetDir
	cfg.CheckpointPath = *checkpointPath
	cfg.OutputDir = *outputDir
	cfg.LossPlotPath = *lossPlot
	cfg.Iterations = *iterations
	cfg.BatchSize = *batchSize
	cfg.NCritic = *nCritic
	cfg.LearnRate = *learnRate
	cfg.Lambda = *lambda
	cfg.Model.ImageSize = *imageSize
	cfg.Model.Base = *base
	cfg.Model.Levels = *levels
	cfg.Seed = *seed
	cfg.Logger = log.New(os.Stdout, "", 0)

	if err := cfg.Validate(); err != nil {
		log.Fatalln(err)
	}

	// Run both stages when none is selected
	runTrain, runTest := *train, *test
	if !runTrain && !runTest {
		runTrain, runTest = true, true
	}

	if runTrain {
		trainer, err := pix2pix.Train(cfg)
		if err != nil {
			log.Fatalln(err)
		}
		trainer.Close()
	}
	if runTest {
		if err := pix2pix.Test(cfg); err != nil {
			log.Fatalln(err)
		}
	}
}
