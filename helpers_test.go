package pix2pix_go

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

// tinyModel Smallest architecture which satisfies constraints of both networks
func tinyModel(size, levels int) ModelConfig {
	return ModelConfig{
		ImageSize:    size,
		Base:         2,
		Levels:       levels,
		DropoutRatio: 0.5,
	}
}

func quietLogger() (*log.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return log.New(buf, "", 0), buf
}

// shapeImage Draws bright rectangle at random position on dark background
func shapeImage(size int, rng *rand.Rand) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	x0, y0 := rng.Intn(size/2), rng.Intn(size/2)
	x1, y1 := x0+size/4+rng.Intn(size/4), y0+size/4+rng.Intn(size/4)
	fg := color.RGBA{R: 230, G: uint8(100 + rng.Intn(100)), B: 40, A: 255}
	bg := color.RGBA{R: 10, G: 20, B: uint8(rng.Intn(60)), A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x >= x0 && x < x1 && y >= y0 && y < y1 {
				img.SetRGBA(x, y, fg)
			} else {
				img.SetRGBA(x, y, bg)
			}
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
}

// makeDataset Creates root/<class>/<class>_<i>.jpg files
func makeDataset(t *testing.T, root string, classes []string, perClass, size int) {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	for _, class := range classes {
		dir := filepath.Join(root, class)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < perClass; i++ {
			writeJPEG(t, filepath.Join(dir, class+"_"+string(rune('a'+i))+".jpg"), shapeImage(size, rng))
		}
	}
}

func randomDense(rng *rand.Rand, shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = 2*rng.Float64() - 1
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// gradientClose Compares analytic gradient with central difference
func gradientClose(analytic, numeric float64) bool {
	diff := math.Abs(analytic - numeric)
	return diff <= 1e-6 || diff <= 1e-3*math.Abs(numeric)
}

// learnableGrads Returns copy of accumulated gradients keyed by parameter name
func learnableGrads(ps *ParamSet) map[string][]float64 {
	grads := make(map[string][]float64)
	for _, p := range ps.Learnables() {
		grads[p.Name()] = append([]float64(nil), p.gradData()...)
	}
	return grads
}

func sameGrads(t *testing.T, want, got map[string][]float64) {
	t.Helper()
	for name, w := range want {
		for i := range w {
			if w[i] != got[name][i] {
				t.Errorf("Gradient of '%s' differs between runs at %d: %g vs %g", name, i, w[i], got[name][i])
				break
			}
		}
	}
}
