package pix2pix_go

import (
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"testing"

	"gorgonia.org/gorgonia"
)

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := tinyModel(16, 2)
	params := NewParamSet(generatorSetName)
	if _, err := Generator(gorgonia.NewGraph(), params, cfg, false); err != nil {
		t.Fatal(err)
	}
	// Non-trivial running statistics
	rng := rand.New(rand.NewSource(21))
	for _, p := range params.All() {
		if p.IsBuffer() {
			for i := range p.Data() {
				p.Data()[i] = 0.5 + rng.Float64()
			}
		}
	}
	path := filepath.Join(t.TempDir(), "nested", "gen.gob")
	if err := SaveCheckpoint(path, params); err != nil {
		t.Fatal(err)
	}
	restored, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Name != params.Name || restored.Len() != params.Len() {
		t.Fatalf("Restored set differs: %s/%d vs %s/%d", restored.Name, restored.Len(), params.Name, params.Len())
	}

	edge := randomDense(rng, 1, 1, 16, 16)
	outputs := make([][]float64, 2)
	for i, ps := range []*ParamSet{params, restored} {
		inf, err := NewInferencer(ps, cfg)
		if err != nil {
			t.Fatal(err)
		}
		out, err := inf.Generate(edge)
		inf.Close()
		if err != nil {
			t.Fatal(err)
		}
		outputs[i] = out.Data().([]float64)
	}
	for i := range outputs[0] {
		if outputs[0][i] != outputs[1][i] {
			t.Fatalf("Restored generator output differs at %d: %f vs %f", i, outputs[0][i], outputs[1][i])
		}
	}

	// Only the checkpoint itself is left in directory
	entries, err := ioutil.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected single file in checkpoint directory, got %d", len(entries))
	}
}

func TestCheckpointArchitectureMismatch(t *testing.T) {
	params := NewParamSet(generatorSetName)
	if _, err := Generator(gorgonia.NewGraph(), params, tinyModel(16, 2), false); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "gen.gob")
	if err := SaveCheckpoint(path, params); err != nil {
		t.Fatal(err)
	}
	restored, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	wider := tinyModel(16, 2)
	wider.Base = 4
	if _, err = NewInferencer(restored, wider); err == nil {
		t.Error("Expected error for checkpoint of different width")
	}
	deeper := tinyModel(16, 3)
	if _, err = NewInferencer(restored, deeper); err == nil {
		t.Error("Expected error for checkpoint of different depth")
	}
}

func TestLoadCheckpointMissing(t *testing.T) {
	if _, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Error("Expected error for missing checkpoint")
	}
}
