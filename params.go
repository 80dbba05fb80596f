package pix2pix_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param Named tensor owned by exactly one network.
//
// Learnable params carry a gradient buffer and are updated by solver. Buffers (e.g. batch norm running statistics) are updated explicitly.
//
type Param struct {
	name   string
	data   *tensor.Dense
	grad   *tensor.Dense
	buffer bool
}

// Name Returns name of parameter
func (p *Param) Name() string { return p.name }

// Shape Returns copy of parameter's shape
func (p *Param) Shape() tensor.Shape { return p.data.Shape().Clone() }

// Data Returns backing slice of parameter's value
func (p *Param) Data() []float64 { return p.data.Data().([]float64) }

// IsBuffer Returns true if parameter is not trained by solver
func (p *Param) IsBuffer() bool { return p.buffer }

// Value Implements gorgonia.Valuer. Solvers update this value in place.
func (p *Param) Value() gorgonia.Value { return p.data }

// Grad Implements gorgonia.ValueGrad. Returns accumulated gradient.
func (p *Param) Grad() (gorgonia.Value, error) {
	if p.grad == nil {
		return nil, fmt.Errorf("Parameter '%s' is a buffer and has no gradient", p.name)
	}
	return p.grad, nil
}

func (p *Param) gradData() []float64 { return p.grad.Data().([]float64) }

// blend Does p = (1-momentum)*p + momentum*v
func (p *Param) blend(v []float64, momentum float64) error {
	data := p.Data()
	if len(v) != len(data) {
		return fmt.Errorf("Can't blend parameter '%s': expected %d values, got %d", p.name, len(data), len(v))
	}
	floats.Scale(1-momentum, data)
	floats.AddScaled(data, momentum, v)
	return nil
}

// ParamSet Ordered collection of parameters of a single network.
//
// The same set can be bound to several expression graphs: values live here and are uploaded into graph nodes before each run.
//
type ParamSet struct {
	Name   string
	params []*Param
	byName map[string]*Param
	sealed bool
}

// NewParamSet Constructor for ParamSet
func NewParamSet(name string) *ParamSet {
	return &ParamSet{
		Name:   name,
		byName: make(map[string]*Param),
	}
}

// Len Returns number of parameters (buffers included)
func (ps *ParamSet) Len() int { return len(ps.params) }

// Get Returns parameter by name or nil
func (ps *ParamSet) Get(name string) *Param { return ps.byName[name] }

// All Returns every parameter in definition order
func (ps *ParamSet) All() []*Param { return ps.params }

// Learnables Returns parameters trained by solver in definition order
func (ps *ParamSet) Learnables() []*Param {
	learnables := make([]*Param, 0, len(ps.params))
	for _, p := range ps.params {
		if !p.buffer {
			learnables = append(learnables, p)
		}
	}
	return learnables
}

// ValueGrads Prepares learnables for gorgonia.Solver.Step
func (ps *ParamSet) ValueGrads() []gorgonia.ValueGrad {
	learnables := ps.Learnables()
	vgs := make([]gorgonia.ValueGrad, len(learnables))
	for i, p := range learnables {
		vgs[i] = p
	}
	return vgs
}

// ZeroGrads Resets accumulated gradients
func (ps *ParamSet) ZeroGrads() {
	for _, p := range ps.params {
		if p.grad != nil {
			p.grad.Zero()
		}
	}
}

// Seal Forbids defining new parameters. Used for sets restored from checkpoint so a network with different structure fails loudly.
func (ps *ParamSet) Seal() { ps.sealed = true }

// Snapshot Returns deep copy of all parameter values keyed by name
func (ps *ParamSet) Snapshot() map[string][]float64 {
	snapshot := make(map[string][]float64, len(ps.params))
	for _, p := range ps.params {
		snapshot[p.name] = append([]float64(nil), p.Data()...)
	}
	return snapshot
}

// add Registers parameter with provided value
func (ps *ParamSet) add(name string, value *tensor.Dense, buffer bool) (*Param, error) {
	if _, ok := ps.byName[name]; ok {
		return nil, fmt.Errorf("Parameter '%s' is already defined in set '%s'", name, ps.Name)
	}
	p := &Param{
		name:   name,
		data:   value,
		buffer: buffer,
	}
	if !buffer {
		p.grad = tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(value.Shape().Clone()...))
	}
	ps.params = append(ps.params, p)
	ps.byName[name] = p
	return p, nil
}

// define Returns existing parameter or creates new one with provided initialization
func (ps *ParamSet) define(name string, shape tensor.Shape, init gorgonia.InitWFn, buffer bool) (*Param, error) {
	if p, ok := ps.byName[name]; ok {
		if !p.data.Shape().Eq(shape) {
			return nil, fmt.Errorf("Parameter '%s' has shape %v, but %v requested", name, p.data.Shape(), shape)
		}
		if p.buffer != buffer {
			return nil, fmt.Errorf("Parameter '%s' kind mismatch (buffer = %t)", name, p.buffer)
		}
		return p, nil
	}
	if ps.sealed {
		return nil, fmt.Errorf("Parameter '%s' is not present in sealed set '%s'", name, ps.Name)
	}
	backing, ok := init(tensor.Float64, shape...).([]float64)
	if !ok {
		return nil, fmt.Errorf("Initializer for '%s' did not produce []float64", name)
	}
	value := tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(backing))
	return ps.add(name, value, buffer)
}

// Binding Nodes of a ParamSet on a single expression graph
type Binding struct {
	g      *gorgonia.ExprGraph
	set    *ParamSet
	params []*Param
	nodes  gorgonia.Nodes
}

// Bind Prepares binding of parameters set to provided graph
func (ps *ParamSet) Bind(g *gorgonia.ExprGraph) *Binding {
	return &Binding{
		g:   g,
		set: ps,
	}
}

// Learnable Returns node for learnable parameter (creates parameter if needed)
func (b *Binding) Learnable(name string, shape tensor.Shape, init gorgonia.InitWFn) (*gorgonia.Node, error) {
	return b.node(name, shape, init, false)
}

// Buffer Returns node for non-learnable parameter (creates parameter if needed)
func (b *Binding) Buffer(name string, shape tensor.Shape, init gorgonia.InitWFn) (*gorgonia.Node, error) {
	return b.node(name, shape, init, true)
}

func (b *Binding) node(name string, shape tensor.Shape, init gorgonia.InitWFn, buffer bool) (*gorgonia.Node, error) {
	p, err := b.set.define(name, shape, init, buffer)
	if err != nil {
		return nil, err
	}
	for i := range b.params {
		if b.params[i] == p {
			return b.nodes[i], nil
		}
	}
	n := gorgonia.NewTensor(b.g, gorgonia.Float64, shape.Dims(), gorgonia.WithShape(shape.Clone()...), gorgonia.WithName(b.set.Name+"_"+name), gorgonia.WithValue(p.data.Clone().(*tensor.Dense)))
	b.params = append(b.params, p)
	b.nodes = append(b.nodes, n)
	return n, nil
}

// Learnables Returns nodes of learnable parameters bound to graph
func (b *Binding) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, len(b.nodes))
	for i, p := range b.params {
		if !p.buffer {
			learnables = append(learnables, b.nodes[i])
		}
	}
	return learnables
}

// Upload Copies current parameter values into graph nodes. Must be called before running a machine on the graph.
func (b *Binding) Upload() error {
	for i, n := range b.nodes {
		dense, ok := n.Value().(*tensor.Dense)
		if !ok || dense == nil {
			if err := gorgonia.Let(n, b.params[i].data.Clone().(*tensor.Dense)); err != nil {
				return errors.Wrapf(err, "Can't bind value of '%s'", b.params[i].name)
			}
			continue
		}
		dst, ok := dense.Data().([]float64)
		if !ok || len(dst) != len(b.params[i].Data()) {
			return fmt.Errorf("Node '%s' holds incompatible value", n.Name())
		}
		copy(dst, b.params[i].Data())
	}
	return nil
}

// clearNodeGrads Zeroes derivatives held by bound nodes. Tape machine adds into them on every run, so they must be cleared before each run.
func (b *Binding) clearNodeGrads() {
	for i, n := range b.nodes {
		if b.params[i].buffer {
			continue
		}
		gv, err := n.Grad()
		if err != nil {
			// No derivative is attached: node is not differentiated on this graph
			continue
		}
		if t, ok := gv.(tensor.Tensor); ok {
			t.Zero()
		}
	}
}

// AccumulateGrads Adds scale*dCost/dParam to gradient buffers of learnable parameters. Machine must be run with gorgonia.BindDualValues(b.Learnables()...)
func (b *Binding) AccumulateGrads(scale float64) error {
	for i, n := range b.nodes {
		p := b.params[i]
		if p.buffer {
			continue
		}
		gv, err := n.Grad()
		if err != nil {
			return errors.Wrapf(err, "Can't get gradient of '%s'", p.name)
		}
		gd, ok := gv.Data().([]float64)
		if !ok {
			return fmt.Errorf("Gradient of '%s' is not []float64", p.name)
		}
		dst := p.gradData()
		if len(gd) != len(dst) {
			return fmt.Errorf("Gradient of '%s' has %d elements, expected %d", p.name, len(gd), len(dst))
		}
		floats.AddScaled(dst, scale, gd)
	}
	return nil
}
