package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"

	pix2pix "github.com/LdDl/pix2pix-go"
)

var (
	imgSide        = 64
	samplesPerDir  = 8
	classes        = []string{"circles", "squares"}
	numIterations  = 20
	batchSize      = 4
	evalPrint      = 5
	numTestSamples = 4
)

// drawShape Paints filled shape of random color on random background
func drawShape(class string, rng *rand.Rand) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, imgSide, imgSide))
	bg := color.RGBA{R: uint8(rng.Intn(128)), G: uint8(rng.Intn(128)), B: uint8(rng.Intn(128)), A: 255}
	fg := color.RGBA{R: uint8(128 + rng.Intn(128)), G: uint8(128 + rng.Intn(128)), B: uint8(128 + rng.Intn(128)), A: 255}
	cx, cy := imgSide/4+rng.Intn(imgSide/2), imgSide/4+rng.Intn(imgSide/2)
	r := imgSide/8 + rng.Intn(imgSide/8)
	for y := 0; y < imgSide; y++ {
		for x := 0; x < imgSide; x++ {
			dx, dy := x-cx, y-cy
			inside := false
			switch class {
			case "circles":
				inside = dx*dx+dy*dy <= r*r
			default:
				inside = dx >= -r && dx <= r && dy >= -r && dy <= r
			}
			if inside {
				img.SetRGBA(x, y, fg)
			} else {
				img.SetRGBA(x, y, bg)
			}
		}
	}
	return img
}

func genSyntheticData(root string, rng *rand.Rand) {
	for _, class := range classes {
		dir := filepath.Join(root, class)
		if err := os.MkdirAll(dir, 0755); err != nil {
			panic(err)
		}
		for i := 0; i < samplesPerDir; i++ {
			f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s_%02d.jpg", class, i)))
			if err != nil {
				panic(err)
			}
			err = jpeg.Encode(f, drawShape(class, rng), &jpeg.Options{Quality: 95})
			f.Close()
			if err != nil {
				panic(err)
			}
		}
	}
}

func main() {
	// Initialize seed with constant value to reproduce results
	rng := rand.New(rand.NewSource(1337))

	workDir, err := ioutil.TempDir("", "pix2pix_shapes")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(workDir)

	// Prepare synthetic data
	datasetDir := filepath.Join(workDir, "datasets")
	genSyntheticData(datasetDir, rng)

	cfg := pix2pix.DefaultConfig()
	cfg.Model = pix2pix.ModelConfig{
		ImageSize:    imgSide,
		Base:         4,
		Levels:       3,
		DropoutRatio: 0.5,
	}
	cfg.DatasetDir = datasetDir
	cfg.CheckpointPath = filepath.Join(workDir, "pix2pix.gob")
	cfg.OutputDir = "shapes_results"
	cfg.LossPlotPath = filepath.Join(cfg.OutputDir, "losses.png")
	cfg.Iterations = numIterations
	cfg.BatchSize = batchSize
	cfg.NCritic = 2
	cfg.LogEvery = evalPrint
	cfg.TestSamples = numTestSamples
	cfg.Seed = 1337

	if err = os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		panic(err)
	}

	trainer, err := pix2pix.Train(cfg)
	if err != nil {
		panic(err)
	}
	defer trainer.Close()

	history := trainer.History()
	fmt.Printf("Finished %d iterations, last losses: %+v\n", trainer.Iteration(), history[len(history)-1])

	// Render comparisons with generator restored from checkpoint
	if err = pix2pix.Test(cfg); err != nil {
		panic(err)
	}
	fmt.Printf("Comparisons and loss chart are in '%s'\n", cfg.OutputDir)
}
