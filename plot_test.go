package pix2pix_go

import (
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func TestPhotoAndEdgeImage(t *testing.T) {
	photos := tensor.New(tensor.WithShape(2, 3, 2, 2), tensor.WithBacking([]float64{
		-1, -1, -1, -1, 0, 0, 0, 0, 1, 1, 1, 1,
		1, -1, -1, -1, -1, 1, -1, -1, -1, -1, 1, -1,
	}))
	img, err := PhotoImage(photos, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 0); c.R != 255 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Errorf("Pixel (0, 0) should be red, got %v", c)
	}
	if c := img.RGBAAt(1, 0); c.G != 255 || c.R != 0 {
		t.Errorf("Pixel (1, 0) should be green, got %v", c)
	}
	if c := img.RGBAAt(0, 1); c.B != 255 || c.R != 0 {
		t.Errorf("Pixel (0, 1) should be blue, got %v", c)
	}
	if _, err = PhotoImage(photos, 2); err == nil {
		t.Error("Expected error for sample out of range")
	}

	edges := tensor.New(tensor.WithShape(1, 1, 2, 3), tensor.WithBacking([]float64{-1, 1, -1, 1, -1, 1}))
	gray, err := EdgeImage(edges, 0)
	if err != nil {
		t.Fatal(err)
	}
	if gray.Bounds().Dx() != 3 || gray.Bounds().Dy() != 2 {
		t.Fatalf("Unexpected bounds %v", gray.Bounds())
	}
	if gray.GrayAt(1, 0).Y != 255 || gray.GrayAt(0, 0).Y != 0 || gray.GrayAt(0, 1).Y != 255 {
		t.Errorf("Unexpected edge pixels %v", gray.Pix)
	}
	if _, err = EdgeImage(photos, 0); err == nil {
		t.Error("Expected error for 3-channel tensor")
	}
}

func TestSaveComparison(t *testing.T) {
	dir := t.TempDir()
	photo := shapeImage(16, rand.New(rand.NewSource(4)))
	edge := Canny(Grayscale(photo), 100, 150)
	fname := filepath.Join(dir, "0_sample.png")
	if err := SaveComparison(fname, edge, photo, photo); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width <= cfg.Height {
		t.Errorf("Panels should be laid out in a row, got %dx%d", cfg.Width, cfg.Height)
	}
	if err = SaveComparison(filepath.Join(dir, "bad.png"), edge, nil, photo); err == nil {
		t.Error("Expected error for missing panel")
	}
}

func TestPlotLosses(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "losses.png")
	history := []LossRecord{
		{Iteration: 1, D: 1.4, GP: 0.9, G: 3.2},
		{Iteration: 2, D: 1.3, GP: 0.5, G: 2.9},
		{Iteration: 3, D: 1.1, GP: 0.2, G: 2.7},
	}
	if err := PlotLosses(history, fname); err != nil {
		t.Fatal(err)
	}
	if st, err := os.Stat(fname); err != nil || st.Size() == 0 {
		t.Errorf("Loss plot is missing or empty: %v", err)
	}
	if err := PlotLosses(nil, fname); err == nil {
		t.Error("Expected error for empty history")
	}
}
