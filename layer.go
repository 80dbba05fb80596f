package pix2pix_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunc combo
//
// For LayerBatchNorm WeightNode and BiasNode hold per-channel scale and shift, Norm holds normalization state.
// For LayerDropout Name must be unique within graph: it names the channel mask node.
//
type Layer struct {
	Name       string
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	Activation ActivationFunc
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int
	Probability  float64

	Norm *BatchNorm

	mask *gorgonia.Node
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerMaxpool
	LayerReshape
	LayerDropout
	LayerBatchNorm
)

func (t LayerType) String() string {
	switch t {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerMaxpool:
		return "maxpool2d"
	case LayerReshape:
		return "reshape"
	case LayerDropout:
		return "dropout"
	case LayerBatchNorm:
		return "batchnorm"
	default:
		return fmt.Sprintf("layer(%d)", uint16(t))
	}
}

var (
	allowedNoWeights = []LayerType{LayerMaxpool, LayerFlatten, LayerReshape, LayerDropout}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Feedforward input through layer (activation is not applied)
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied for bias of linear layer
//
func (l *Layer) Fwd(batchSize int, input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("Layer of type '%s' has nil weight node", l.Type)
	}
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err := gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
		if l.BiasNode == nil {
			return out, nil
		}
		if batchSize < 2 {
			out, err = gorgonia.Add(out, l.BiasNode)
			if err != nil {
				return nil, errors.Wrap(err, "Can't add bias to non-activated output")
			}
			return out, nil
		}
		out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0})
		if err != nil {
			return nil, errors.Wrapf(err, "Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize)
		}
		return out, nil
	case LayerConvolutional:
		out, err := gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
		if l.BiasNode == nil {
			return out, nil
		}
		out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0, 2, 3})
		if err != nil {
			return nil, errors.Wrap(err, "Can't add per-channel bias to convolution output")
		}
		return out, nil
	case LayerMaxpool:
		out, err := gorgonia.MaxPool2D(input, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride)
		if err != nil {
			return nil, errors.Wrap(err, "Can't maxpool[2D] input by kernel")
		}
		return out, nil
	case LayerFlatten:
		out, err := gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
		return out, nil
	case LayerReshape:
		out, err := gorgonia.Reshape(input, l.ReshapeDims)
		if err != nil {
			return nil, errors.Wrap(err, "Can't reshape input")
		}
		return out, nil
	case LayerDropout:
		if l.Probability <= 0 {
			return input, nil
		}
		if input.Dims() != 4 {
			return nil, fmt.Errorf("Channel dropout expects 4-D input, got %v", input.Shape())
		}
		shp := input.Shape()
		l.mask = gorgonia.NewTensor(input.Graph(), gorgonia.Float64, 4, gorgonia.WithShape(shp[0], shp[1], 1, 1), gorgonia.WithName(l.Name+"_mask"), gorgonia.WithInit(gorgonia.Ones()))
		out, err := gorgonia.BroadcastHadamardProd(input, l.mask, nil, []byte{2, 3})
		if err != nil {
			return nil, errors.Wrapf(err, "Can't apply dropout with probability %f", l.Probability)
		}
		return out, nil
	case LayerBatchNorm:
		if l.Norm == nil || l.BiasNode == nil {
			return nil, fmt.Errorf("Batch normalization layer must have scale, shift and normalization state")
		}
		out, err := l.Norm.Fwd(input, l.WeightNode, l.BiasNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't normalize input")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("Layer's type '%d' (uint16) is not handled", l.Type)
	}
}

// resampleMask Draws new channel mask for dropout layer: each (sample, channel) is zeroed with probability l.Probability, survivors are scaled by 1/(1-p)
func (l *Layer) resampleMask(rng *rand.Rand) error {
	if l.Type != LayerDropout || l.mask == nil {
		return nil
	}
	shp := l.mask.Shape()
	keep := 1.0 / (1.0 - l.Probability)
	data := make([]float64, shp.TotalSize())
	for i := range data {
		if rng.Float64() >= l.Probability {
			data[i] = keep
		}
	}
	return gorgonia.Let(l.mask, tensor.New(tensor.WithShape(shp.Clone()...), tensor.WithBacking(data)))
}
