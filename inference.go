package pix2pix_go

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// generatorPass Graph of a standalone generator forward pass
type generatorPass struct {
	g     *gorgonia.ExprGraph
	gen   *GeneratorNet
	input *gorgonia.Node
	out   gorgonia.Value
	vm    gorgonia.VM
}

func newGeneratorPass(params *ParamSet, cfg ModelConfig, batchSize int, training bool) (*generatorPass, error) {
	gp := &generatorPass{
		g: gorgonia.NewGraph(),
	}
	gp.input = gorgonia.NewTensor(gp.g, gorgonia.Float64, 4, gorgonia.WithShape(batchSize, 1, cfg.ImageSize, cfg.ImageSize), gorgonia.WithName("edge"))
	var err error
	if gp.gen, err = Generator(gp.g, params, cfg, training); err != nil {
		return nil, errors.Wrap(err, "Can't define generator")
	}
	if err = gp.gen.Fwd(gp.input, batchSize); err != nil {
		return nil, errors.Wrap(err, "Can't feedforward generator")
	}
	gorgonia.Read(gp.gen.Out(), &gp.out)
	gp.vm = gorgonia.NewTapeMachine(gp.g)
	return gp, nil
}

// run Returns copy of generator output for provided edge maps. In training mode dropout masks are redrawn from rng and running statistics are updated.
func (gp *generatorPass) run(edges *tensor.Dense, rng *rand.Rand) (*tensor.Dense, error) {
	if gp.gen.training {
		if err := gp.gen.ResampleDropout(rng); err != nil {
			return nil, err
		}
	}
	if err := runMachine(gp.vm, []*Binding{gp.gen.Binding()}, feed{gp.input, edges}); err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	data, err := valueData(gp.out)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read generator output")
	}
	if gp.gen.training {
		if err = gp.gen.UpdateRunningStats(); err != nil {
			return nil, err
		}
	}
	return tensor.New(tensor.WithShape(gp.gen.Out().Shape().Clone()...), tensor.WithBacking(data)), nil
}

func (gp *generatorPass) Close() error {
	return gp.vm.Close()
}

// Inferencer Generator in evaluation mode: no dropout, normalization uses running statistics
type Inferencer struct {
	cfg  ModelConfig
	pass *generatorPass
}

// NewInferencer Constructor for Inferencer. Generator is built for single-sample batches.
func NewInferencer(params *ParamSet, cfg ModelConfig) (*Inferencer, error) {
	pass, err := newGeneratorPass(params, cfg, 1, false)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare inference")
	}
	return &Inferencer{
		cfg:  cfg,
		pass: pass,
	}, nil
}

// Generate Translates edge map of shape [1, 1, S, S] into photo of shape [1, 3, S, S] in [-1, 1]
func (inf *Inferencer) Generate(edge *tensor.Dense) (*tensor.Dense, error) {
	want := tensor.Shape{1, 1, inf.cfg.ImageSize, inf.cfg.ImageSize}
	if !edge.Shape().Eq(want) {
		return nil, fmt.Errorf("Edge map must have shape %v, got %v", want, edge.Shape())
	}
	return inf.pass.run(edge, nil)
}

// Close Releases machine
func (inf *Inferencer) Close() error {
	return inf.pass.Close()
}

// Test Loads generator checkpoint and writes comparison of edge map, generated photo and ground truth for first dataset samples
func Test(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "Bad configuration")
	}
	logger := cfg.logger()
	params, err := LoadCheckpoint(cfg.CheckpointPath)
	if err != nil {
		return err
	}
	inf, err := NewInferencer(params, cfg.Model)
	if err != nil {
		return err
	}
	defer inf.Close()

	paths, err := IndexDataset(cfg.DatasetDir, logger)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("Dataset '%s' is empty", cfg.DatasetDir)
	}
	if err = os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return errors.Wrapf(err, "Can't create output directory '%s'", cfg.OutputDir)
	}
	n := cfg.TestSamples
	if n > len(paths) {
		n = len(paths)
	}
	opts := cfg.loadOptions(false, false)
	for i := 0; i < n; i++ {
		batch, err := LoadBatch(paths[i:i+1], opts)
		if err != nil {
			return err
		}
		pred, err := inf.Generate(batch.Edges)
		if err != nil {
			return errors.Wrapf(err, "Can't generate photo for '%s'", paths[i])
		}
		logger.Printf("in %s\n", paths[i])
		edgeImg, err := EdgeImage(batch.Edges, 0)
		if err != nil {
			return err
		}
		predImg, err := PhotoImage(pred, 0)
		if err != nil {
			return err
		}
		truthImg, err := PhotoImage(batch.Photos, 0)
		if err != nil {
			return err
		}
		out := filepath.Join(cfg.OutputDir, fmt.Sprintf("%d_%s.png", i, trimExt(filepath.Base(paths[i]))))
		if err = SaveComparison(out, edgeImg, predImg, truthImg); err != nil {
			return err
		}
	}
	return nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// PhotoImage Converts k-th sample of [N, 3, S, S] tensor in [-1, 1] into RGB image
func PhotoImage(t *tensor.Dense, k int) (*image.RGBA, error) {
	data, err := denseData(t)
	if err != nil {
		return nil, err
	}
	shp := t.Shape()
	if len(shp) != 4 || shp[1] != 3 || k < 0 || k >= shp[0] {
		return nil, fmt.Errorf("Can't take photo #%d of tensor %v", k, shp)
	}
	h, w := shp[2], shp[3]
	plane := h * w
	sample := data[k*3*plane : (k+1)*3*plane]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: Denormalize(sample[y*w+x]),
				G: Denormalize(sample[plane+y*w+x]),
				B: Denormalize(sample[2*plane+y*w+x]),
				A: 255,
			})
		}
	}
	return img, nil
}

// EdgeImage Converts k-th sample of [N, 1, S, S] tensor in [-1, 1] into grayscale image
func EdgeImage(t *tensor.Dense, k int) (*image.Gray, error) {
	data, err := denseData(t)
	if err != nil {
		return nil, err
	}
	shp := t.Shape()
	if len(shp) != 4 || shp[1] != 1 || k < 0 || k >= shp[0] {
		return nil, fmt.Errorf("Can't take edge map #%d of tensor %v", k, shp)
	}
	h, w := shp[2], shp[3]
	sample := data[k*h*w : (k+1)*h*w]
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range sample {
		img.Pix[(i/w)*img.Stride+i%w] = Denormalize(v)
	}
	return img, nil
}
