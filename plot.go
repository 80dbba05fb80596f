package pix2pix_go

import (
	"fmt"
	"image"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var comparisonTitles = []string{"edge", "generated", "ground truth"}

// SaveComparison Renders edge map, generated photo and ground truth side by side into PNG file
func SaveComparison(fname string, edge, generated, truth image.Image) error {
	panels := []image.Image{edge, generated, truth}
	plots := make([][]*plot.Plot, 1)
	plots[0] = make([]*plot.Plot, len(panels))
	for i, img := range panels {
		if img == nil {
			return fmt.Errorf("Comparison panel '%s' is nil", comparisonTitles[i])
		}
		b := img.Bounds()
		p := plot.New()
		p.Title.Text = comparisonTitles[i]
		p.HideAxes()
		p.Add(plotter.NewImage(img, 0, 0, float64(b.Dx()), float64(b.Dy())))
		plots[0][i] = p
	}
	const side = 3 * vg.Inch
	canvas := vgimg.New(side*vg.Length(len(panels)), side)
	dc := draw.New(canvas)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: len(panels),
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots[0] {
		plots[0][i].Draw(canvases[0][i])
	}
	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrapf(err, "Can't create file '%s'", fname)
	}
	defer f.Close()
	png := vgimg.PngCanvas{Canvas: canvas}
	if _, err = png.WriteTo(f); err != nil {
		return errors.Wrapf(err, "Can't write comparison to '%s'", fname)
	}
	return nil
}

// PlotLosses Plots discriminator, penalty and generator losses against iteration
func PlotLosses(history []LossRecord, fname string) error {
	if len(history) == 0 {
		return fmt.Errorf("Loss history is empty")
	}
	lossD := make(plotter.XYs, len(history))
	lossGP := make(plotter.XYs, len(history))
	lossG := make(plotter.XYs, len(history))
	for i, rec := range history {
		x := float64(rec.Iteration)
		lossD[i].X, lossD[i].Y = x, rec.D
		lossGP[i].X, lossGP[i].Y = x, rec.GP
		lossG[i].X, lossG[i].Y = x, rec.G
	}
	p := plot.New()
	p.Title.Text = "Losses"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())
	if err := plotutil.AddLines(p, "D", lossD, "GP", lossGP, "G", lossG); err != nil {
		return errors.Wrap(err, "Can't add loss lines")
	}
	// Save the plot to a PNG file.
	if err := p.Save(8*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
