package pix2pix_go

import (
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestParamSetDefine(t *testing.T) {
	ps := NewParamSet("net")
	b := ps.Bind(gorgonia.NewGraph())
	w, err := b.Learnable("w", tensor.Shape{2, 3}, gorgonia.Ones())
	if err != nil {
		t.Fatal(err)
	}
	again, err := b.Learnable("w", tensor.Shape{2, 3}, gorgonia.Zeroes())
	if err != nil {
		t.Fatal(err)
	}
	if w != again {
		t.Error("Same parameter must give same node within binding")
	}
	if _, err = b.Learnable("w", tensor.Shape{3, 2}, gorgonia.Ones()); err == nil {
		t.Error("Expected shape mismatch error")
	}
	if _, err = b.Buffer("w", tensor.Shape{2, 3}, gorgonia.Ones()); err == nil {
		t.Error("Expected kind mismatch error")
	}
	if _, err = b.Buffer("running", tensor.Shape{3}, gorgonia.Zeroes()); err != nil {
		t.Fatal(err)
	}
	if ps.Len() != 2 || len(ps.Learnables()) != 1 || len(b.Learnables()) != 1 {
		t.Errorf("Unexpected counts: %d params, %d learnables, %d bound learnables", ps.Len(), len(ps.Learnables()), len(b.Learnables()))
	}
	if _, err = ps.Get("running").Grad(); err == nil {
		t.Error("Buffer must not have gradient")
	}
	ps.Seal()
	if _, err = ps.Bind(gorgonia.NewGraph()).Learnable("extra", tensor.Shape{1}, gorgonia.Ones()); err == nil {
		t.Error("Sealed set must reject new parameters")
	}
	if _, err = ps.Bind(gorgonia.NewGraph()).Learnable("w", tensor.Shape{2, 3}, gorgonia.Ones()); err != nil {
		t.Errorf("Sealed set must bind existing parameters: %v", err)
	}
}

func TestBindingUploadAndGradients(t *testing.T) {
	ps := NewParamSet("lin")
	g := gorgonia.NewGraph()
	b := ps.Bind(g)
	w, err := b.Learnable("w", tensor.Shape{1, 2}, gorgonia.Ones())
	if err != nil {
		t.Fatal(err)
	}
	x := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(1, 2), gorgonia.WithName("x"), gorgonia.WithValue(tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{3, 5}))))
	prod, err := gorgonia.HadamardProd(w, x)
	if err != nil {
		t.Fatal(err)
	}
	cost, err := gorgonia.Sum(prod)
	if err != nil {
		t.Fatal(err)
	}
	var costVal gorgonia.Value
	gorgonia.Read(cost, &costVal)
	if _, err = gorgonia.Grad(cost, b.Learnables()...); err != nil {
		t.Fatal(err)
	}
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(b.Learnables()...))
	defer vm.Close()

	// Value changed in set must reach the graph
	copy(ps.Get("w").Data(), []float64{2, -1})
	if err = runMachine(vm, []*Binding{b}); err != nil {
		t.Fatal(err)
	}
	got, err := scalarValue(costVal)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2*3-5 {
		t.Errorf("Expected cost 1, got %f", got)
	}
	if err = b.AccumulateGrads(0.5); err != nil {
		t.Fatal(err)
	}
	if err = b.AccumulateGrads(0.5); err != nil {
		t.Fatal(err)
	}
	grad := ps.Get("w").gradData()
	if grad[0] != 3 || grad[1] != 5 {
		t.Errorf("Expected accumulated gradient [3 5], got %v", grad)
	}
	ps.ZeroGrads()
	if grad[0] != 0 || grad[1] != 0 {
		t.Errorf("Expected zero gradient, got %v", grad)
	}

	// Repeated run on same values gives same gradient, not a running total
	for run := 0; run < 2; run++ {
		ps.ZeroGrads()
		if err = runMachine(vm, []*Binding{b}); err != nil {
			t.Fatal(err)
		}
		if err = b.AccumulateGrads(1); err != nil {
			t.Fatal(err)
		}
		if grad[0] != 3 || grad[1] != 5 {
			t.Errorf("Run #%d: expected gradient [3 5], got %v", run+1, grad)
		}
	}
}

func TestParamBlend(t *testing.T) {
	ps := NewParamSet("bn")
	if _, err := ps.Bind(gorgonia.NewGraph()).Buffer("mean", tensor.Shape{2}, gorgonia.Zeroes()); err != nil {
		t.Fatal(err)
	}
	p := ps.Get("mean")
	if err := p.blend([]float64{1, -2}, 0.1); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(p.Data()[0], 0.1, 1e-12) || !almostEqual(p.Data()[1], -0.2, 1e-12) {
		t.Errorf("Unexpected blend result %v", p.Data())
	}
	if err := p.blend([]float64{1}, 0.1); err == nil {
		t.Error("Expected length mismatch error")
	}
}
