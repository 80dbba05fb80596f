package pix2pix_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// logEpsilon Keeps log() finite when sigmoid saturates
const logEpsilon = 1e-12

func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// -(B*log(A) + (1-B)*log(1-A)), where A - predicted probabilities and B - targets of the same shape.
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	g := a.Graph()
	eps := gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName("bce_eps"), gorgonia.WithValue(logEpsilon))
	one := gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName("bce_one"), gorgonia.WithValue(1.0))

	aEps, err := gorgonia.Add(a, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+eps)")
	}
	logMain, err := gorgonia.Log(aEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}

	oneSubA, err := gorgonia.Sub(one, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	oneSubAEps, err := gorgonia.Add(oneSubA, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A+eps)")
	}
	logBin, err := gorgonia.Log(oneSubAEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneSubB, err := gorgonia.Sub(one, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, oneSubB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*(1-B))")
	}
	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// L1Loss See ref. https://en.wikipedia.org/wiki/Least_absolute_deviations
// B is broadcasted along every axis where it has size 1 and A does not (e.g. [N,1,H,W] target for [N,3,H,W] prediction).
// Default reduction is 'mean'
func L1Loss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	if a.Dims() != b.Dims() {
		return nil, fmt.Errorf("Can't compare nodes of %d and %d dimensions", a.Dims(), b.Dims())
	}
	pattern := []byte{}
	for i := 0; i < a.Dims(); i++ {
		if a.Shape()[i] != b.Shape()[i] {
			if b.Shape()[i] != 1 {
				return nil, fmt.Errorf("Can't broadcast shape %v to %v", b.Shape(), a.Shape())
			}
			pattern = append(pattern, byte(i))
		}
	}
	var sub *gorgonia.Node
	var err error
	if len(pattern) == 0 {
		sub, err = gorgonia.Sub(a, b)
	} else {
		sub, err = gorgonia.BroadcastSub(a, b, nil, pattern)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	abs, err := gorgonia.Abs(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	return reduce(abs, reduction)
}
