package pix2pix_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DiscriminatorNet Abstraction for discriminator part of GAN. It's simple neural network actually.
//
// input(4,S,S) => 4 x [conv5x5 stride 2 => batchnorm => leaky relu(0.2)] => flatten => linear(1) => sigmoid
//
type DiscriminatorNet struct {
	private *Network
	binding *Binding
}

// Discriminator Constructor for DiscriminatorNet. Parameters are taken from (or defined in) provided set.
// Normalization always uses batch statistics.
func Discriminator(g *gorgonia.ExprGraph, params *ParamSet, cfg ModelConfig) (*DiscriminatorNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad discriminator configuration")
	}
	b := params.Bind(g)
	layers := make([]*Layer, 0, 10)
	in := 4
	for k := 0; k < 4; k++ {
		out := cfg.Base << uint(k)
		w, err := b.Learnable(fmt.Sprintf("conv%d_w", k+1), tensor.Shape{out, in, 5, 5}, gorgonia.GlorotN(1.0))
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define convolution #%d", k+1)
		}
		bn, err := batchNormLayer(b, fmt.Sprintf("bn%d", k+1), out, LeakyRectify(0.2), true)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't define normalization #%d", k+1)
		}
		layers = append(layers,
			&Layer{
				WeightNode:   w,
				Type:         LayerConvolutional,
				Activation:   NoActivation,
				KernelHeight: 5,
				KernelWidth:  5,
				Padding:      []int{2, 2},
				Stride:       []int{2, 2},
				Dilation:     []int{1, 1},
			},
			bn,
		)
		in = out
	}
	side := cfg.ImageSize / 16
	wLinear, err := b.Learnable("linear1_w", tensor.Shape{1, side * side * in}, gorgonia.GlorotN(1.0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't define linear layer")
	}
	bLinear, err := b.Learnable("linear1_b", tensor.Shape{1, 1}, gorgonia.Zeroes())
	if err != nil {
		return nil, errors.Wrap(err, "Can't define linear bias")
	}
	layers = append(layers,
		&Layer{
			Type:       LayerFlatten,
			Activation: NoActivation,
		},
		&Layer{
			WeightNode: wLinear,
			BiasNode:   bLinear,
			Type:       LayerLinear,
			Activation: Sigmoid,
		},
	)
	return &DiscriminatorNet{
		private: &Network{
			Name:   params.Name,
			Layers: layers,
		},
		binding: b,
	}, nil
}

// Out Returns reference to output node
func (net *DiscriminatorNet) Out() *gorgonia.Node {
	return net.private.out
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.binding.Learnables()
}

// Binding Returns nodes of parameters on discriminator's graph
func (net *DiscriminatorNet) Binding() *Binding {
	return net.binding
}

// Fwd Initializates feedforward for provided input
//
// input - Input node of shape [batchSize, 4, S, S]
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	if err := net.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[Discriminator]")
	}
	return nil
}
