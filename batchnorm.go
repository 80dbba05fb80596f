package pix2pix_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	batchNormMomentum = 0.1
	batchNormEpsilon  = 1e-5
)

// BatchNorm Per-channel normalization of NCHW input.
//
// In training mode statistics are taken from the batch and exposed via Stats() so caller can maintain running averages.
// In evaluation mode RunningMean and RunningVar (both of shape [1, C, 1, 1]) are used instead.
//
type BatchNorm struct {
	Name        string
	Training    bool
	Epsilon     float64
	RunningMean *gorgonia.Node
	RunningVar  *gorgonia.Node

	prefix   string
	mean     *gorgonia.Node
	variance *gorgonia.Node
	count    int
}

// Stats Returns per-channel batch mean and variance nodes (training mode only, after Fwd)
func (bn *BatchNorm) Stats() (mean, variance *gorgonia.Node) {
	return bn.mean, bn.variance
}

// channelMean Reduces [N, C, H, W] to [C]
func channelMean(x *gorgonia.Node) (*gorgonia.Node, error) {
	m, err := gorgonia.Mean(x, 3)
	if err != nil {
		return nil, err
	}
	if m, err = gorgonia.Mean(m, 2); err != nil {
		return nil, err
	}
	return gorgonia.Mean(m, 0)
}

// Fwd Normalizes input and applies scale and shift (both of shape [1, C, 1, 1])
func (bn *BatchNorm) Fwd(x, scale, shift *gorgonia.Node) (*gorgonia.Node, error) {
	if x.Dims() != 4 {
		return nil, fmt.Errorf("Batch normalization expects 4-D input, got %v", x.Shape())
	}
	channels := x.Shape()[1]
	bn.count = x.Shape()[0] * x.Shape()[2] * x.Shape()[3]
	statShape := tensor.Shape{1, channels, 1, 1}
	axes := []byte{0, 2, 3}

	var mean4, var4, centered *gorgonia.Node
	var err error
	if bn.Training {
		if bn.mean, err = channelMean(x); err != nil {
			return nil, errors.Wrap(err, "Can't compute batch mean")
		}
		if mean4, err = gorgonia.Reshape(bn.mean, statShape); err != nil {
			return nil, errors.Wrap(err, "Can't reshape batch mean")
		}
		if centered, err = gorgonia.BroadcastSub(x, mean4, nil, axes); err != nil {
			return nil, errors.Wrap(err, "Can't do (X-mean)")
		}
		sqr, err := gorgonia.Square(centered)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x^2)")
		}
		if bn.variance, err = channelMean(sqr); err != nil {
			return nil, errors.Wrap(err, "Can't compute batch variance")
		}
		if var4, err = gorgonia.Reshape(bn.variance, statShape); err != nil {
			return nil, errors.Wrap(err, "Can't reshape batch variance")
		}
	} else {
		if bn.RunningMean == nil || bn.RunningVar == nil {
			return nil, fmt.Errorf("Batch normalization '%s' in evaluation mode needs running statistics", bn.Name)
		}
		mean4, var4 = bn.RunningMean, bn.RunningVar
		if centered, err = gorgonia.BroadcastSub(x, mean4, nil, axes); err != nil {
			return nil, errors.Wrap(err, "Can't do (X-running_mean)")
		}
	}

	eps := gorgonia.NewScalar(x.Graph(), gorgonia.Float64, gorgonia.WithName(bn.Name+"_eps"), gorgonia.WithValue(bn.Epsilon))
	varEps, err := gorgonia.Add(var4, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (var+eps)")
	}
	invStd, err := gorgonia.InverseSqrt(varEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do 1/sqrt(x)")
	}
	normalized, err := gorgonia.BroadcastHadamardProd(centered, invStd, nil, axes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't scale by inverse std")
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normalized, scale, nil, axes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply scale")
	}
	out, err := gorgonia.BroadcastAdd(scaled, shift, nil, axes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply shift")
	}
	return out, nil
}

// trackStats Prepares reading of batch statistics into running buffers. Must be called after Fwd and before machine creation.
func (bn *BatchNorm) trackStats(runningMean, runningVar *Param) (*batchNormStat, error) {
	mean, variance := bn.Stats()
	if !bn.Training || mean == nil || variance == nil {
		return nil, fmt.Errorf("Batch normalization '%s' has no batch statistics to track", bn.Name)
	}
	stat := &batchNormStat{
		runningMean: runningMean,
		runningVar:  runningVar,
		count:       bn.count,
	}
	gorgonia.Read(mean, &stat.mean)
	gorgonia.Read(variance, &stat.variance)
	return stat, nil
}

// batchNormStat Links batch statistics of a training graph to running buffers of parameters set
type batchNormStat struct {
	runningMean *Param
	runningVar  *Param
	mean        gorgonia.Value
	variance    gorgonia.Value
	count       int
}

// update Blends batch statistics into running buffers. Variance is corrected to unbiased estimate.
func (s *batchNormStat) update(momentum float64) error {
	if s.mean == nil || s.variance == nil {
		return fmt.Errorf("Batch statistics for '%s' have not been computed", s.runningMean.Name())
	}
	mean, ok := s.mean.Data().([]float64)
	if !ok {
		return fmt.Errorf("Batch mean for '%s' is not []float64", s.runningMean.Name())
	}
	variance, ok := s.variance.Data().([]float64)
	if !ok {
		return fmt.Errorf("Batch variance for '%s' is not []float64", s.runningVar.Name())
	}
	unbiased := make([]float64, len(variance))
	correction := 1.0
	if s.count > 1 {
		correction = float64(s.count) / float64(s.count-1)
	}
	for i, v := range variance {
		unbiased[i] = v * correction
	}
	if err := s.runningMean.blend(mean, momentum); err != nil {
		return err
	}
	return s.runningVar.blend(unbiased, momentum)
}
