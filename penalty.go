package pix2pix_go

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GradientPenalty Evaluates penalty for gradient of critic output with respect to its input
//
// grad - flattened gradient of shape [N, ...]
// batchSize - N
// lambda - penalty weight
// perSample - if true then L2 norm of every sample's gradient is driven to 1: lambda * mean_n (||g_n|| - 1)^2,
// otherwise every element is treated as separate sample: lambda * mean_i (|g_i| - 1)^2
//
// Returns penalty value and its derivative with respect to grad
//
func GradientPenalty(grad []float64, batchSize int, lambda float64, perSample bool) (float64, []float64, error) {
	if len(grad) == 0 || batchSize <= 0 || len(grad)%batchSize != 0 {
		return 0, nil, fmt.Errorf("Can't split gradient of %d elements into %d samples", len(grad), batchSize)
	}
	weights := make([]float64, len(grad))
	if !perSample {
		m := float64(len(grad))
		value := 0.0
		for i, g := range grad {
			d := math.Abs(g) - 1
			value += d * d
			sign := 0.0
			if g > 0 {
				sign = 1
			} else if g < 0 {
				sign = -1
			}
			weights[i] = lambda * 2 * d * sign / m
		}
		return lambda * value / m, weights, nil
	}
	step := len(grad) / batchSize
	value := 0.0
	for n := 0; n < batchSize; n++ {
		sample := grad[n*step : (n+1)*step]
		norm := floats.Norm(sample, 2)
		d := norm - 1
		value += d * d
		if norm == 0 {
			continue
		}
		floats.AddScaled(weights[n*step:(n+1)*step], lambda*2*d/(norm*float64(batchSize)), sample)
	}
	return lambda * value / float64(batchSize), weights, nil
}

// penaltyCritic Graph of sum(D(x_hat)) with gradient with respect to x_hat.
//
// Parameter gradient of penalty is d/dtheta <w, dD/dx> where w = dPenalty/d(dD/dx). It is evaluated as central
// difference of first-order parameter gradients along w: ||w|| * (grad(x + h*u) - grad(x - h*u)) / 2h, u = w/||w||
//
type penaltyCritic struct {
	g         *gorgonia.ExprGraph
	disc      *DiscriminatorNet
	input     *gorgonia.Node
	batchSize int
	shape     tensor.Shape

	inputGrad gorgonia.Value
	vm        gorgonia.VM
}

func newPenaltyCritic(params *ParamSet, cfg ModelConfig, batchSize int) (*penaltyCritic, error) {
	pc := &penaltyCritic{
		g:         gorgonia.NewGraph(),
		batchSize: batchSize,
		shape:     tensor.Shape{batchSize, 4, cfg.ImageSize, cfg.ImageSize},
	}
	pc.input = gorgonia.NewTensor(pc.g, gorgonia.Float64, 4, gorgonia.WithShape(pc.shape...), gorgonia.WithName("x_hat"))
	var err error
	if pc.disc, err = Discriminator(pc.g, params, cfg); err != nil {
		return nil, errors.Wrap(err, "Can't define penalty discriminator")
	}
	if err = pc.disc.Fwd(pc.input, batchSize); err != nil {
		return nil, errors.Wrap(err, "Can't feedforward penalty discriminator")
	}
	sum, err := gorgonia.Sum(pc.disc.Out())
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sum(D(x))")
	}
	learnables := pc.disc.Learnables()
	wrt := append(append(gorgonia.Nodes{}, learnables...), pc.input)
	grads, err := gorgonia.Grad(sum, wrt...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't differentiate sum(D(x))")
	}
	gorgonia.Read(grads[len(grads)-1], &pc.inputGrad)
	pc.vm = gorgonia.NewTapeMachine(pc.g, gorgonia.BindDualValues(learnables...))
	return pc, nil
}

// inputGradient Runs graph for provided input and returns copy of dD/dx. Parameter gradients stay readable until next run.
func (pc *penaltyCritic) inputGradient(x *tensor.Dense) ([]float64, error) {
	if err := runMachine(pc.vm, []*Binding{pc.disc.Binding()}, feed{pc.input, x}); err != nil {
		return nil, errors.Wrap(err, "[Penalty]")
	}
	return valueData(pc.inputGrad)
}

// Value Returns penalty for provided interpolated input without touching gradients
func (pc *penaltyCritic) Value(xHat *tensor.Dense, lambda float64, perSample bool) (float64, error) {
	grad, err := pc.inputGradient(xHat)
	if err != nil {
		return 0, err
	}
	gp, _, err := GradientPenalty(grad, pc.batchSize, lambda, perSample)
	return gp, err
}

// Accumulate Evaluates penalty for provided interpolated input and adds its parameter gradient to discriminator parameters
//
// step - finite difference step along normalized direction
//
func (pc *penaltyCritic) Accumulate(xHat *tensor.Dense, lambda, step float64, perSample bool) (float64, error) {
	x, err := denseData(xHat)
	if err != nil {
		return 0, errors.Wrap(err, "Bad interpolated input")
	}
	grad, err := pc.inputGradient(xHat)
	if err != nil {
		return 0, err
	}
	gp, weights, err := GradientPenalty(grad, pc.batchSize, lambda, perSample)
	if err != nil {
		return 0, err
	}
	norm := floats.Norm(weights, 2)
	if norm == 0 {
		return gp, nil
	}
	direction := make([]float64, len(weights))
	floats.ScaleTo(direction, 1/norm, weights)
	for _, sign := range []float64{1, -1} {
		shifted := make([]float64, len(x))
		floats.AddScaledTo(shifted, x, sign*step, direction)
		if _, err = pc.inputGradient(tensor.New(tensor.WithShape(pc.shape.Clone()...), tensor.WithBacking(shifted))); err != nil {
			return 0, err
		}
		if err = pc.disc.Binding().AccumulateGrads(sign * norm / (2 * step)); err != nil {
			return 0, errors.Wrap(err, "Can't accumulate penalty gradients")
		}
	}
	return gp, nil
}

// Close Releases machine
func (pc *penaltyCritic) Close() error {
	return pc.vm.Close()
}

// interpolate Returns eps*real + (1-eps)*fake
func interpolate(eps float64, realX, fakeX *tensor.Dense) (*tensor.Dense, error) {
	r, err := denseData(realX)
	if err != nil {
		return nil, err
	}
	f, err := denseData(fakeX)
	if err != nil {
		return nil, err
	}
	if len(r) != len(f) {
		return nil, fmt.Errorf("Can't interpolate between %v and %v", realX.Shape(), fakeX.Shape())
	}
	out := make([]float64, len(r))
	floats.ScaleTo(out, eps, r)
	floats.AddScaled(out, 1-eps, f)
	return tensor.New(tensor.WithShape(realX.Shape().Clone()...), tensor.WithBacking(out)), nil
}
