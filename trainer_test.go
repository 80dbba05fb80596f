package pix2pix_go

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func trainConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	dataset := filepath.Join(root, "datasets")
	makeDataset(t, dataset, []string{"first", "second"}, 4, 40)
	logger, _ := quietLogger()
	cfg := DefaultConfig()
	cfg.Model = tinyModel(32, 2)
	cfg.DatasetDir = dataset
	cfg.CheckpointPath = filepath.Join(root, "gen.gob")
	cfg.OutputDir = filepath.Join(root, "results")
	cfg.BatchSize = 4
	cfg.NCritic = 1
	cfg.Iterations = 1
	cfg.LogEvery = 1
	cfg.TestSamples = 2
	cfg.Seed = 5
	cfg.Logger = logger
	return cfg
}

func TestTrainerSingleIteration(t *testing.T) {
	cfg := trainConfig(t)
	logger, buf := quietLogger()
	cfg.Logger = logger
	cfg.LossPlotPath = filepath.Join(filepath.Dir(cfg.CheckpointPath), "losses.png")
	paths, err := IndexDataset(cfg.DatasetDir, logger)
	if err != nil {
		t.Fatal(err)
	}
	trainer, err := NewTrainer(cfg, paths)
	if err != nil {
		t.Fatal(err)
	}
	defer trainer.Close()
	genBefore := trainer.GeneratorParams().Snapshot()
	discBefore := trainer.DiscriminatorParams().Snapshot()
	buf.Reset()

	if err = trainer.Train(); err != nil {
		t.Fatal(err)
	}
	if trainer.Iteration() != 1 || len(trainer.History()) != 1 {
		t.Fatalf("Expected one finished iteration, got %d", trainer.Iteration())
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "iter : 1 , loss D : ") || !strings.Contains(lines[0], " loss GP : ") || !strings.Contains(lines[0], " , loss G : ") {
		t.Errorf("Unexpected log %q", buf.String())
	}
	changed := func(before map[string][]float64, after *ParamSet, kind string) {
		for _, p := range after.Learnables() {
			for i, v := range p.Data() {
				if v != before[p.Name()][i] {
					return
				}
			}
		}
		t.Errorf("No %s parameter has been updated", kind)
	}
	changed(genBefore, trainer.GeneratorParams(), "generator")
	changed(discBefore, trainer.DiscriminatorParams(), "discriminator")

	if _, err = os.Stat(cfg.CheckpointPath); err != nil {
		t.Errorf("Checkpoint has not been written: %v", err)
	}
	if _, err = os.Stat(cfg.LossPlotPath); err != nil {
		t.Errorf("Loss plot has not been written: %v", err)
	}

	if err = Test(cfg); err != nil {
		t.Fatal(err)
	}
	for i, p := range paths[:cfg.TestSamples] {
		name := filepath.Join(cfg.OutputDir, fmt.Sprintf("%d_%s.png", i, trimExt(filepath.Base(p))))
		if _, err = os.Stat(name); err != nil {
			t.Errorf("Missing comparison image: %v", err)
		}
	}
}

func TestNewTrainerRejectsBadInput(t *testing.T) {
	cfg := trainConfig(t)
	if _, err := NewTrainer(cfg, nil); err == nil {
		t.Error("Expected error for empty dataset")
	}
	if _, err := NewTrainer(cfg, []string{"a.jpg", "b.jpg"}); err == nil {
		t.Error("Expected error for batch larger than dataset")
	}
	cfg.Model.ImageSize = 20
	if _, err := NewTrainer(cfg, []string{"a", "b", "c", "d"}); err == nil {
		t.Error("Expected error for bad image size")
	}
}

func TestTrainMissingDataset(t *testing.T) {
	cfg := trainConfig(t)
	cfg.DatasetDir = filepath.Join(t.TempDir(), "nothing")
	if _, err := Train(cfg); err == nil {
		t.Error("Expected error for empty dataset")
	}
	if err := Test(cfg); err == nil {
		t.Error("Expected error without checkpoint")
	}
}

func TestCriticGradient(t *testing.T) {
	cfg := ModelConfig{ImageSize: 16, Base: 1, Levels: 1}
	params := NewParamSet(discriminatorSetName)
	cg, err := newCriticGraph(params, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer cg.Close()
	rng := rand.New(rand.NewSource(31))
	fakeX := randomDense(rng, 2, 4, 16, 16)
	realX := randomDense(rng, 2, 4, 16, 16)

	var first map[string][]float64
	for run := 0; run < 3; run++ {
		params.ZeroGrads()
		if _, err = cg.Accumulate(fakeX, realX); err != nil {
			t.Fatal(err)
		}
		if run == 0 {
			first = learnableGrads(params)
			continue
		}
		sameGrads(t, first, learnableGrads(params))
	}

	for _, name := range []string{"linear1_b", "bn4_beta"} {
		p := params.Get(name)
		analytic := first[name][0]
		const delta = 1e-5
		orig := p.Data()[0]
		p.Data()[0] = orig + delta
		up, err := cg.Accumulate(fakeX, realX)
		if err != nil {
			t.Fatal(err)
		}
		p.Data()[0] = orig - delta
		down, err := cg.Accumulate(fakeX, realX)
		if err != nil {
			t.Fatal(err)
		}
		p.Data()[0] = orig
		if numeric := (up - down) / (2 * delta); !gradientClose(analytic, numeric) {
			t.Errorf("%s: analytic gradient %g, numeric %g", name, analytic, numeric)
		}
	}
}

func TestGANGradient(t *testing.T) {
	cfg := ModelConfig{ImageSize: 16, Base: 1, Levels: 1}
	genParams := NewParamSet(generatorSetName)
	discParams := NewParamSet(discriminatorSetName)
	gg, err := newGANGraph(genParams, discParams, cfg, 2, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	defer gg.Close()
	rng := rand.New(rand.NewSource(32))
	edges := randomDense(rng, 2, 1, 16, 16)

	var first map[string][]float64
	for run := 0; run < 3; run++ {
		genParams.ZeroGrads()
		if _, err = gg.Accumulate(edges, rng); err != nil {
			t.Fatal(err)
		}
		if run == 0 {
			first = learnableGrads(genParams)
			continue
		}
		sameGrads(t, first, learnableGrads(genParams))
	}

	p := genParams.Get("out_b")
	const delta = 1e-5
	for i := range p.Data() {
		orig := p.Data()[i]
		p.Data()[i] = orig + delta
		up, err := gg.Accumulate(edges, rng)
		if err != nil {
			t.Fatal(err)
		}
		p.Data()[i] = orig - delta
		down, err := gg.Accumulate(edges, rng)
		if err != nil {
			t.Fatal(err)
		}
		p.Data()[i] = orig
		if numeric := (up - down) / (2 * delta); !gradientClose(first["out_b"][i], numeric) {
			t.Errorf("out_b[%d]: analytic gradient %g, numeric %g", i, first["out_b"][i], numeric)
		}
	}
}
