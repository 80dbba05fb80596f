package pix2pix_go

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func evalScalar(t *testing.T, g *gorgonia.ExprGraph, n *gorgonia.Node) float64 {
	t.Helper()
	var v gorgonia.Value
	gorgonia.Read(n, &v)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	f, err := scalarValue(v)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestBinaryCrossEntropyLoss(t *testing.T) {
	g := gorgonia.NewGraph()
	a := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(2, 1), gorgonia.WithName("a"), gorgonia.WithValue(tensor.New(tensor.WithShape(2, 1), tensor.WithBacking([]float64{0.5, 0.9}))))
	b := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(2, 1), gorgonia.WithName("b"), gorgonia.WithValue(tensor.New(tensor.WithShape(2, 1), tensor.WithBacking([]float64{1, 0}))))
	cost, err := BinaryCrossEntropyLoss(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := -(math.Log(0.5) + math.Log(0.1)) / 2
	if got := evalScalar(t, g, cost); !almostEqual(got, want, 1e-9) {
		t.Errorf("Expected %f, got %f", want, got)
	}
}

func TestBinaryCrossEntropyLossSaturated(t *testing.T) {
	g := gorgonia.NewGraph()
	a := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(1, 1), gorgonia.WithName("a"), gorgonia.WithValue(tensor.New(tensor.WithShape(1, 1), tensor.WithBacking([]float64{0}))))
	b := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(1, 1), gorgonia.WithName("b"), gorgonia.WithValue(tensor.New(tensor.WithShape(1, 1), tensor.WithBacking([]float64{1}))))
	cost, err := BinaryCrossEntropyLoss(a, b, LossReductionSum)
	if err != nil {
		t.Fatal(err)
	}
	got := evalScalar(t, g, cost)
	if math.IsInf(got, 0) || math.IsNaN(got) || got <= 0 {
		t.Errorf("Expected large finite loss, got %f", got)
	}
}

func TestL1LossBroadcast(t *testing.T) {
	g := gorgonia.NewGraph()
	a := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, 3, 1, 2), gorgonia.WithName("a"), gorgonia.WithValue(tensor.New(tensor.WithShape(1, 3, 1, 2), tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6}))))
	b := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, 1, 1, 2), gorgonia.WithName("b"), gorgonia.WithValue(tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float64{0, 4}))))
	cost, err := L1Loss(a, b)
	if err != nil {
		t.Fatal(err)
	}
	// |1-0| |2-4| |3-0| |4-4| |5-0| |6-4|
	want := (1.0 + 2 + 3 + 0 + 5 + 2) / 6
	if got := evalScalar(t, g, cost); !almostEqual(got, want, 1e-12) {
		t.Errorf("Expected %f, got %f", want, got)
	}
}

func TestL1LossShapeMismatch(t *testing.T) {
	g := gorgonia.NewGraph()
	a := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(2, 3), gorgonia.WithName("a"), gorgonia.WithInit(gorgonia.Zeroes()))
	b := gorgonia.NewTensor(g, gorgonia.Float64, 2, gorgonia.WithShape(2, 2), gorgonia.WithName("b"), gorgonia.WithInit(gorgonia.Zeroes()))
	if _, err := L1Loss(a, b); err == nil {
		t.Error("Expected error for non-broadcastable shapes")
	}
}
