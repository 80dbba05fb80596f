package pix2pix_go

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// feed Value for input node of a graph
type feed struct {
	node  *gorgonia.Node
	value *tensor.Dense
}

// runMachine Uploads parameters of every binding, clears their derivatives, binds inputs and runs machine once.
// Values read from the graph stay valid until next run.
func runMachine(vm gorgonia.VM, bindings []*Binding, feeds ...feed) error {
	vm.Reset()
	for _, b := range bindings {
		if err := b.Upload(); err != nil {
			return errors.Wrap(err, "Can't upload parameters")
		}
		b.clearNodeGrads()
	}
	for _, f := range feeds {
		if err := gorgonia.Let(f.node, f.value); err != nil {
			return errors.Wrapf(err, "Can't init input value of '%s'", f.node.Name())
		}
	}
	if err := vm.RunAll(); err != nil {
		return errors.Wrap(err, "Can't run VM")
	}
	return nil
}

// valueData Returns copy of float64 data held by value
func valueData(v gorgonia.Value) ([]float64, error) {
	if v == nil {
		return nil, errors.New("Value has not been computed")
	}
	data, ok := v.Data().([]float64)
	if !ok {
		if f, ok := v.Data().(float64); ok {
			return []float64{f}, nil
		}
		return nil, errors.Errorf("Value of type %T is not float64", v.Data())
	}
	return append([]float64(nil), data...), nil
}

// scalarValue Returns float64 held by scalar value
func scalarValue(v gorgonia.Value) (float64, error) {
	data, err := valueData(v)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, errors.Errorf("Scalar expected, got %d values", len(data))
	}
	return data[0], nil
}
