package pix2pix_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GeneratorNet U-Net generator: edge map [N, 1, S, S] => photo [N, 3, S, S] in [-1, 1]
//
// encoders - i-th encoder block is applied at resolution S/2^i, its output is kept as skip connection
// decoders - i-th decoder block takes upsampled deeper output concatenated with i-th skip connection
// head - 1x1 convolution to 3 channels followed by tanh
//
type GeneratorNet struct {
	cfg      ModelConfig
	training bool

	encoders []*Network
	decoders []*Network
	pool     *Layer
	head     *Network

	params  *ParamSet
	binding *Binding
	stats   []*batchNormStat
	out     *gorgonia.Node
}

// Generator Constructor for GeneratorNet. Parameters are taken from (or defined in) provided set.
//
// training - if true then dropout is enabled and batch statistics are used by normalization, otherwise running statistics are used
//
func Generator(g *gorgonia.ExprGraph, params *ParamSet, cfg ModelConfig, training bool) (*GeneratorNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad generator configuration")
	}
	net := &GeneratorNet{
		cfg:      cfg,
		training: training,
		encoders: make([]*Network, cfg.Levels),
		decoders: make([]*Network, cfg.Levels),
		pool: &Layer{
			Type:         LayerMaxpool,
			KernelHeight: 2,
			KernelWidth:  2,
			Padding:      []int{0, 0},
			Stride:       []int{2, 2},
		},
		params:  params,
		binding: params.Bind(g),
	}
	dropout := 0.0
	if training {
		dropout = cfg.DropoutRatio
	}
	var err error
	for i := 0; i < cfg.Levels; i++ {
		in := 1
		if i > 0 {
			in = cfg.Width(i - 1)
		}
		name := fmt.Sprintf("enc%d", i+1)
		if net.encoders[i], err = unetBlock(net.binding, name, in, cfg.Width(i), 0, training); err != nil {
			return nil, errors.Wrapf(err, "Can't define %s", name)
		}
	}
	for i := cfg.Levels - 1; i >= 0; i-- {
		deeper := i + 1
		if deeper > cfg.Levels-1 {
			deeper = cfg.Levels - 1
		}
		name := fmt.Sprintf("dec%d", i+1)
		if net.decoders[i], err = unetBlock(net.binding, name, cfg.Width(deeper)+cfg.Width(i), cfg.Width(i), dropout, training); err != nil {
			return nil, errors.Wrapf(err, "Can't define %s", name)
		}
	}

	headW, err := net.binding.Learnable("out_w", tensor.Shape{3, cfg.Width(0), 1, 1}, gorgonia.GlorotN(1.0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't define output convolution")
	}
	headB, err := net.binding.Learnable("out_b", tensor.Shape{1, 3, 1, 1}, gorgonia.Zeroes())
	if err != nil {
		return nil, errors.Wrap(err, "Can't define output bias")
	}
	net.head = &Network{
		Name: params.Name + "_out",
		Layers: []*Layer{
			{
				WeightNode:   headW,
				BiasNode:     headB,
				Type:         LayerConvolutional,
				Activation:   Tanh,
				KernelHeight: 1,
				KernelWidth:  1,
				Padding:      []int{0, 0},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
			},
		},
	}
	return net, nil
}

// unetBlock Defines two (batchnorm => relu => conv3x3 [=> dropout]) blocks
func unetBlock(b *Binding, name string, in, out int, dropout float64, training bool) (*Network, error) {
	layers := make([]*Layer, 0, 6)
	for j := 1; j <= 2; j++ {
		f := in
		if j > 1 {
			f = out
		}
		bn, err := batchNormLayer(b, fmt.Sprintf("%s_bn%d", name, j), f, Rectify, training)
		if err != nil {
			return nil, err
		}
		w, err := b.Learnable(fmt.Sprintf("%s_conv%d_w", name, j), tensor.Shape{out, f, 3, 3}, gorgonia.GlorotN(1.0))
		if err != nil {
			return nil, err
		}
		layers = append(layers,
			bn,
			&Layer{
				WeightNode:   w,
				Type:         LayerConvolutional,
				Activation:   NoActivation,
				KernelHeight: 3,
				KernelWidth:  3,
				Padding:      []int{1, 1},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
			},
			&Layer{
				Name:        fmt.Sprintf("%s_%s_drop%d", b.set.Name, name, j),
				Type:        LayerDropout,
				Activation:  NoActivation,
				Probability: dropout,
			},
		)
	}
	return &Network{Name: b.set.Name + "_" + name, Layers: layers}, nil
}

// batchNormLayer Defines normalization layer with scale, shift and running statistics buffers
func batchNormLayer(b *Binding, name string, channels int, activation ActivationFunc, training bool) (*Layer, error) {
	shape := tensor.Shape{1, channels, 1, 1}
	gamma, err := b.Learnable(name+"_gamma", shape, gorgonia.Ones())
	if err != nil {
		return nil, err
	}
	beta, err := b.Learnable(name+"_beta", shape, gorgonia.Zeroes())
	if err != nil {
		return nil, err
	}
	norm := &BatchNorm{
		Name:     b.set.Name + "_" + name,
		prefix:   name,
		Training: training,
		Epsilon:  batchNormEpsilon,
	}
	// Running statistics are always defined so that checkpoint holds them regardless of mode
	runningMean, err := b.Buffer(name+"_mean", shape, gorgonia.Zeroes())
	if err != nil {
		return nil, err
	}
	runningVar, err := b.Buffer(name+"_var", shape, gorgonia.Ones())
	if err != nil {
		return nil, err
	}
	if !training {
		norm.RunningMean = runningMean
		norm.RunningVar = runningVar
	}
	return &Layer{
		WeightNode: gamma,
		BiasNode:   beta,
		Type:       LayerBatchNorm,
		Activation: activation,
		Norm:       norm,
	}, nil
}

// upsampleNearest Does nearest neighbour x2 upsampling of [N, C, H, W] input
func upsampleNearest(x *gorgonia.Node) (*gorgonia.Node, error) {
	shp := x.Shape()
	if len(shp) != 4 {
		return nil, fmt.Errorf("Upsampling expects 4-D input, got %v", shp)
	}
	n, c, h, w := shp[0], shp[1], shp[2], shp[3]
	cols, err := gorgonia.Reshape(x, tensor.Shape{n, c, h, w, 1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape for columns duplication")
	}
	if cols, err = gorgonia.Concat(4, cols, cols); err != nil {
		return nil, errors.Wrap(err, "Can't duplicate columns")
	}
	rows, err := gorgonia.Reshape(cols, tensor.Shape{n, c, h, 1, 2 * w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape for rows duplication")
	}
	if rows, err = gorgonia.Concat(3, rows, rows); err != nil {
		return nil, errors.Wrap(err, "Can't duplicate rows")
	}
	return gorgonia.Reshape(rows, tensor.Shape{n, c, 2 * h, 2 * w})
}

// Out Returns reference to output node
func (net *GeneratorNet) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	return net.binding.Learnables()
}

// Binding Returns nodes of parameters on generator's graph
func (net *GeneratorNet) Binding() *Binding {
	return net.binding
}

// Fwd Initializates feedforward for provided input
//
// input - Input node of shape [batchSize, 1, S, S]
// batchSize - batch size
//
func (net *GeneratorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	skips := make([]*gorgonia.Node, net.cfg.Levels)
	x := input
	var err error
	for i, enc := range net.encoders {
		if err = enc.Fwd(x, batchSize); err != nil {
			return errors.Wrapf(err, "[Generator] Can't feedforward encoder #%d", i+1)
		}
		skips[i] = enc.Out()
		if x, err = net.pool.Fwd(batchSize, skips[i]); err != nil {
			return errors.Wrapf(err, "[Generator] Can't pool output of encoder #%d", i+1)
		}
	}
	for i := net.cfg.Levels - 1; i >= 0; i-- {
		up, err := upsampleNearest(x)
		if err != nil {
			return errors.Wrapf(err, "[Generator] Can't upsample input of decoder #%d", i+1)
		}
		cat, err := gorgonia.Concat(1, up, skips[i])
		if err != nil {
			return errors.Wrapf(err, "[Generator] Can't concatenate skip connection of level #%d", i+1)
		}
		if err = net.decoders[i].Fwd(cat, batchSize); err != nil {
			return errors.Wrapf(err, "[Generator] Can't feedforward decoder #%d", i+1)
		}
		x = net.decoders[i].Out()
	}
	if err = net.head.Fwd(x, batchSize); err != nil {
		return errors.Wrap(err, "[Generator] Can't feedforward output layer")
	}
	net.out = net.head.Out()
	if net.training {
		if err = net.trackStats(); err != nil {
			return errors.Wrap(err, "[Generator]")
		}
	}
	return nil
}

func (net *GeneratorNet) trackStats() error {
	net.stats = net.stats[:0]
	blocks := append(append([]*Network{}, net.encoders...), net.decoders...)
	for _, block := range blocks {
		for _, l := range block.Layers {
			if l.Type != LayerBatchNorm {
				continue
			}
			stat, err := l.Norm.trackStats(net.params.Get(l.Norm.prefix+"_mean"), net.params.Get(l.Norm.prefix+"_var"))
			if err != nil {
				return err
			}
			net.stats = append(net.stats, stat)
		}
	}
	return nil
}

// UpdateRunningStats Blends batch statistics of last run into running buffers. Training mode only.
func (net *GeneratorNet) UpdateRunningStats() error {
	if !net.training {
		return fmt.Errorf("Generator is in evaluation mode")
	}
	for _, stat := range net.stats {
		if err := stat.update(batchNormMomentum); err != nil {
			return errors.Wrap(err, "Can't update running statistics")
		}
	}
	return nil
}

// ResampleDropout Draws new dropout masks for decoder blocks. Must be called before each run in training mode.
func (net *GeneratorNet) ResampleDropout(rng *rand.Rand) error {
	for _, dec := range net.decoders {
		for _, l := range dec.Layers {
			if err := l.resampleMask(rng); err != nil {
				return errors.Wrapf(err, "Can't resample dropout mask of '%s'", l.Name)
			}
		}
	}
	return nil
}
