package pix2pix_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GAN Conditional GAN: discriminator judges generator output paired with generator input.
//
// generatorPart - reference to Generator
// discriminatorPart - Discriminator bound to the same graph. Its learnables are ignored during generator update
//
type GAN struct {
	generatorPart     *GeneratorNet
	discriminatorPart *DiscriminatorNet

	out  *gorgonia.Node
	cost *gorgonia.Node
}

// NewGAN Constructor for GAN. Both networks must be defined on the same graph.
func NewGAN(definedGenerator *GeneratorNet, definedDiscriminator *DiscriminatorNet) (*GAN, error) {
	if definedGenerator == nil || definedDiscriminator == nil {
		return nil, fmt.Errorf("GAN needs both generator and discriminator")
	}
	if definedGenerator.Binding().g != definedDiscriminator.Binding().g {
		return nil, fmt.Errorf("Generator and discriminator of GAN must share graph")
	}
	return &GAN{
		generatorPart:     definedGenerator,
		discriminatorPart: definedDiscriminator,
	}, nil
}

// GeneratorLearnables Returns learnables nodes of generator part
func (net *GAN) GeneratorLearnables() gorgonia.Nodes {
	return net.generatorPart.Learnables()
}

// Fwd Initializates feedforward for provided edge map and builds generator objective
//
// BCE(D([G(edge), edge]), 0) + lambda * L1(G(edge), edge)
// L1 term compares generator output with edge map broadcasted over color channels
//
// edge - Input node of shape [batchSize, 1, S, S]
//
func (net *GAN) Fwd(edge *gorgonia.Node, batchSize int, lambda float64) error {
	g := edge.Graph()
	if err := net.generatorPart.Fwd(edge, batchSize); err != nil {
		return errors.Wrap(err, "[GAN] Can't feedforward generator part")
	}
	fake, err := gorgonia.Concat(1, net.generatorPart.Out(), edge)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't concatenate generator output and edge map")
	}
	if err = net.discriminatorPart.Fwd(fake, batchSize); err != nil {
		return errors.Wrap(err, "[GAN] Can't feedforward discriminator part")
	}
	net.out = net.discriminatorPart.Out()

	targets := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(net.out.Shape()...), gorgonia.WithName("gan_targets"), gorgonia.WithValue(tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(net.out.Shape()...))))
	adversarial, err := BinaryCrossEntropyLoss(net.out, targets)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't define adversarial loss")
	}
	reconstruction, err := L1Loss(net.generatorPart.Out(), edge)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't define reconstruction loss")
	}
	lambdaNode := gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName("gan_lambda"), gorgonia.WithValue(lambda))
	weighted, err := gorgonia.Mul(reconstruction, lambdaNode)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't weight reconstruction loss")
	}
	if net.cost, err = gorgonia.Add(adversarial, weighted); err != nil {
		return errors.Wrap(err, "[GAN] Can't sum losses")
	}
	return nil
}
