package pix2pix_go

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	generatorSetName     = "generator"
	discriminatorSetName = "discriminator"
)

// LossRecord Losses of a single training iteration (last critic step for D and GP)
type LossRecord struct {
	Iteration int
	D         float64
	GP        float64
	G         float64
}

// criticGraph Graph of BCE(D(fake), 1) + BCE(D(real), 0) with gradients with respect to discriminator learnables
type criticGraph struct {
	g      *gorgonia.ExprGraph
	disc   *DiscriminatorNet
	fakeIn *gorgonia.Node
	realIn *gorgonia.Node

	loss gorgonia.Value
	vm   gorgonia.VM
}

func newCriticGraph(params *ParamSet, cfg ModelConfig, batchSize int) (*criticGraph, error) {
	cg := &criticGraph{
		g: gorgonia.NewGraph(),
	}
	shape := tensor.Shape{batchSize, 4, cfg.ImageSize, cfg.ImageSize}
	cg.fakeIn = gorgonia.NewTensor(cg.g, gorgonia.Float64, 4, gorgonia.WithShape(shape...), gorgonia.WithName("fake_x"))
	cg.realIn = gorgonia.NewTensor(cg.g, gorgonia.Float64, 4, gorgonia.WithShape(shape...), gorgonia.WithName("real_x"))
	var err error
	if cg.disc, err = Discriminator(cg.g, params, cfg); err != nil {
		return nil, errors.Wrap(err, "Can't define critic discriminator")
	}
	if err = cg.disc.Fwd(cg.fakeIn, batchSize); err != nil {
		return nil, errors.Wrap(err, "Can't feedforward fake samples")
	}
	dFake := cg.disc.Out()
	if err = cg.disc.Fwd(cg.realIn, batchSize); err != nil {
		return nil, errors.Wrap(err, "Can't feedforward real samples")
	}
	dReal := cg.disc.Out()

	ones := gorgonia.NewTensor(cg.g, gorgonia.Float64, 2, gorgonia.WithShape(dFake.Shape()...), gorgonia.WithName("fake_targets"), gorgonia.WithInit(gorgonia.Ones()))
	zeros := gorgonia.NewTensor(cg.g, gorgonia.Float64, 2, gorgonia.WithShape(dReal.Shape()...), gorgonia.WithName("real_targets"), gorgonia.WithInit(gorgonia.Zeroes()))
	lossFake, err := BinaryCrossEntropyLoss(dFake, ones)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define loss for fake samples")
	}
	lossReal, err := BinaryCrossEntropyLoss(dReal, zeros)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define loss for real samples")
	}
	cost, err := gorgonia.Add(lossFake, lossReal)
	if err != nil {
		return nil, errors.Wrap(err, "Can't sum critic losses")
	}
	gorgonia.Read(cost, &cg.loss)
	learnables := cg.disc.Learnables()
	if _, err = gorgonia.Grad(cost, learnables...); err != nil {
		return nil, errors.Wrap(err, "Can't differentiate critic loss")
	}
	cg.vm = gorgonia.NewTapeMachine(cg.g, gorgonia.BindDualValues(learnables...))
	return cg, nil
}

// Accumulate Runs critic losses and adds their gradients to discriminator parameters
func (cg *criticGraph) Accumulate(fakeX, realX *tensor.Dense) (float64, error) {
	if err := runMachine(cg.vm, []*Binding{cg.disc.Binding()}, feed{cg.fakeIn, fakeX}, feed{cg.realIn, realX}); err != nil {
		return 0, errors.Wrap(err, "[Critic]")
	}
	loss, err := scalarValue(cg.loss)
	if err != nil {
		return 0, errors.Wrap(err, "Can't read critic loss")
	}
	if err = cg.disc.Binding().AccumulateGrads(1); err != nil {
		return 0, errors.Wrap(err, "Can't accumulate critic gradients")
	}
	return loss, nil
}

func (cg *criticGraph) Close() error {
	return cg.vm.Close()
}

// ganGraph Graph of generator objective with gradients with respect to generator learnables
type ganGraph struct {
	g    *gorgonia.ExprGraph
	gan  *GAN
	gen  *GeneratorNet
	disc *DiscriminatorNet
	edge *gorgonia.Node

	loss gorgonia.Value
	vm   gorgonia.VM
}

func newGANGraph(genParams, discParams *ParamSet, cfg ModelConfig, batchSize int, lambda float64) (*ganGraph, error) {
	gg := &ganGraph{
		g: gorgonia.NewGraph(),
	}
	gg.edge = gorgonia.NewTensor(gg.g, gorgonia.Float64, 4, gorgonia.WithShape(batchSize, 1, cfg.ImageSize, cfg.ImageSize), gorgonia.WithName("edge"))
	var err error
	if gg.gen, err = Generator(gg.g, genParams, cfg, true); err != nil {
		return nil, errors.Wrap(err, "Can't define GAN generator")
	}
	if gg.disc, err = Discriminator(gg.g, discParams, cfg); err != nil {
		return nil, errors.Wrap(err, "Can't define GAN discriminator")
	}
	if gg.gan, err = NewGAN(gg.gen, gg.disc); err != nil {
		return nil, err
	}
	if err = gg.gan.Fwd(gg.edge, batchSize, lambda); err != nil {
		return nil, err
	}
	gorgonia.Read(gg.gan.cost, &gg.loss)
	learnables := gg.gan.GeneratorLearnables()
	if _, err = gorgonia.Grad(gg.gan.cost, learnables...); err != nil {
		return nil, errors.Wrap(err, "Can't differentiate generator objective")
	}
	gg.vm = gorgonia.NewTapeMachine(gg.g, gorgonia.BindDualValues(learnables...))
	return gg, nil
}

// Accumulate Runs generator objective and adds its gradients to generator parameters
func (gg *ganGraph) Accumulate(edges *tensor.Dense, rng *rand.Rand) (float64, error) {
	if err := gg.gen.ResampleDropout(rng); err != nil {
		return 0, err
	}
	if err := runMachine(gg.vm, []*Binding{gg.gen.Binding(), gg.disc.Binding()}, feed{gg.edge, edges}); err != nil {
		return 0, errors.Wrap(err, "[GAN]")
	}
	loss, err := scalarValue(gg.loss)
	if err != nil {
		return 0, errors.Wrap(err, "Can't read generator loss")
	}
	if err = gg.gen.Binding().AccumulateGrads(1); err != nil {
		return 0, errors.Wrap(err, "Can't accumulate generator gradients")
	}
	return loss, nil
}

func (gg *ganGraph) Close() error {
	return gg.vm.Close()
}

// Trainer Alternates critic updates (adversarial losses plus gradient penalty) with generator updates
type Trainer struct {
	cfg    Config
	logger *log.Logger
	paths  []string
	rng    *rand.Rand
	cursor *Cursor

	genParams  *ParamSet
	discParams *ParamSet
	genSolver  gorgonia.Solver
	discSolver gorgonia.Solver

	generator *generatorPass
	critic    *criticGraph
	penalty   *penaltyCritic
	gan       *ganGraph

	iteration int
	history   []LossRecord
}

// NewTrainer Constructor for Trainer. Parameters of both networks are initialized from scratch.
func NewTrainer(cfg Config, paths []string) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad configuration")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("Can't train on empty dataset")
	}
	if cfg.BatchSize > len(paths) {
		return nil, fmt.Errorf("Batch size %d exceeds dataset size %d", cfg.BatchSize, len(paths))
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	cursor, err := NewCursor(len(paths), rng)
	if err != nil {
		return nil, err
	}
	t := &Trainer{
		cfg:        cfg,
		logger:     cfg.logger(),
		paths:      paths,
		rng:        rng,
		cursor:     cursor,
		genParams:  NewParamSet(generatorSetName),
		discParams: NewParamSet(discriminatorSetName),
		genSolver:  gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearnRate), gorgonia.WithBeta1(cfg.Beta1), gorgonia.WithBeta2(cfg.Beta2)),
		discSolver: gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearnRate), gorgonia.WithBeta1(cfg.Beta1), gorgonia.WithBeta2(cfg.Beta2)),
	}
	if t.generator, err = newGeneratorPass(t.genParams, cfg.Model, cfg.BatchSize, true); err != nil {
		return nil, err
	}
	if t.critic, err = newCriticGraph(t.discParams, cfg.Model, cfg.BatchSize); err != nil {
		t.Close()
		return nil, err
	}
	if t.penalty, err = newPenaltyCritic(t.discParams, cfg.Model, cfg.BatchSize); err != nil {
		t.Close()
		return nil, err
	}
	if t.gan, err = newGANGraph(t.genParams, t.discParams, cfg.Model, cfg.BatchSize, cfg.Lambda); err != nil {
		t.Close()
		return nil, err
	}
	t.genParams.Seal()
	t.discParams.Seal()
	return t, nil
}

// GeneratorParams Returns parameters of generator
func (t *Trainer) GeneratorParams() *ParamSet {
	return t.genParams
}

// DiscriminatorParams Returns parameters of discriminator
func (t *Trainer) DiscriminatorParams() *ParamSet {
	return t.discParams
}

// History Returns losses of every finished iteration
func (t *Trainer) History() []LossRecord {
	return t.history
}

// Iteration Returns number of finished iterations
func (t *Trainer) Iteration() int {
	return t.iteration
}

// Step Does single training iteration: NCritic discriminator updates followed by one generator update on the last minibatch
func (t *Trainer) Step() (LossRecord, error) {
	indices, err := t.cursor.Next(t.cfg.BatchSize)
	if err != nil {
		return LossRecord{}, err
	}
	paths := make([]string, len(indices))
	for i, idx := range indices {
		paths[i] = t.paths[idx]
	}
	opts := t.cfg.loadOptions(t.cfg.HorizontalFlip, t.cfg.VerticalFlip)
	opts.Rand = t.rng

	rec := LossRecord{Iteration: t.iteration + 1}
	var batch *Batch
	for k := 0; k < t.cfg.NCritic; k++ {
		if batch, err = LoadBatch(paths, opts); err != nil {
			return rec, errors.Wrap(err, "Can't load minibatch")
		}
		fakePhoto, err := t.generator.run(batch.Edges, t.rng)
		if err != nil {
			return rec, err
		}
		fakeX, err := concatChannels(fakePhoto, batch.Edges)
		if err != nil {
			return rec, err
		}
		realX, err := concatChannels(batch.Photos, batch.Edges)
		if err != nil {
			return rec, err
		}
		t.discParams.ZeroGrads()
		if rec.D, err = t.critic.Accumulate(fakeX, realX); err != nil {
			return rec, err
		}
		xHat, err := interpolate(t.rng.Float64(), realX, fakeX)
		if err != nil {
			return rec, err
		}
		if rec.GP, err = t.penalty.Accumulate(xHat, t.cfg.Lambda, t.cfg.PenaltyStep, t.cfg.PerSamplePenalty); err != nil {
			return rec, err
		}
		if err = t.discSolver.Step(t.discParams.ValueGrads()); err != nil {
			return rec, errors.Wrap(err, "Can't do discriminator solver step")
		}
	}

	t.genParams.ZeroGrads()
	if rec.G, err = t.gan.Accumulate(batch.Edges, t.rng); err != nil {
		return rec, err
	}
	if err = t.genSolver.Step(t.genParams.ValueGrads()); err != nil {
		return rec, errors.Wrap(err, "Can't do generator solver step")
	}
	t.iteration++
	t.history = append(t.history, rec)
	return rec, nil
}

// Train Runs configured number of iterations with logging and periodic checkpoints. Final checkpoint is always written.
func (t *Trainer) Train() error {
	for i := 0; i < t.cfg.Iterations; i++ {
		rec, err := t.Step()
		if err != nil {
			return errors.Wrapf(err, "Iteration #%d failed", i+1)
		}
		if t.cfg.LogEvery > 0 && rec.Iteration%t.cfg.LogEvery == 0 {
			t.logger.Printf("iter : %d , loss D : %v loss GP : %v , loss G : %v\n", rec.Iteration, rec.D, rec.GP, rec.G)
		}
		if t.cfg.CheckpointEvery > 0 && rec.Iteration%t.cfg.CheckpointEvery == 0 {
			if err = SaveCheckpoint(t.cfg.CheckpointPath, t.genParams); err != nil {
				return err
			}
		}
	}
	if err := SaveCheckpoint(t.cfg.CheckpointPath, t.genParams); err != nil {
		return err
	}
	if t.cfg.LossPlotPath != "" && len(t.history) > 0 {
		if err := PlotLosses(t.history, t.cfg.LossPlotPath); err != nil {
			return err
		}
	}
	return nil
}

// Close Releases machines of every graph
func (t *Trainer) Close() error {
	var first error
	closers := []interface{ Close() error }{}
	if t.generator != nil {
		closers = append(closers, t.generator)
	}
	if t.critic != nil {
		closers = append(closers, t.critic)
	}
	if t.penalty != nil {
		closers = append(closers, t.penalty)
	}
	if t.gan != nil {
		closers = append(closers, t.gan)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Train Indexes dataset, trains both networks from scratch and writes generator checkpoint
func Train(cfg Config) (*Trainer, error) {
	paths, err := IndexDataset(cfg.DatasetDir, cfg.logger())
	if err != nil {
		return nil, err
	}
	t, err := NewTrainer(cfg, paths)
	if err != nil {
		return nil, err
	}
	if err = t.Train(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}
