// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.11
//

// Epoch driver running the Kalman filter and the least squares solver side by side.

package proximum

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrSimulationCompleted = errors.New("simulation already completed")

// Mixed into the second PCG seed word
const seedStream = 0x9e3779b97f4a7c15

// State of a simulation run
type State int

const (
	Created State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Estimator names a stage that can skip a node for one epoch
type Estimator string

const (
	StageSampler Estimator = "sampler"
	StageKF      Estimator = "kf"
	StageLS      Estimator = "ls"
)

// SkipEvent reports a node left unchanged by one stage in one epoch.
type SkipEvent struct {
	RunID  uuid.UUID
	Epoch  int
	NodeID int
	Stage  Estimator
	Err    error
}

// EpochEvent reports the errors recorded at the end of an epoch.
type EpochEvent struct {
	RunID       uuid.UUID
	Epoch       int
	KFRMS       float64
	LSRMS       float64
	AssertedRMS float64
	Skips       map[Estimator]int
}

// Simulation owns the nodes of one run. It is not safe for concurrent use.
type Simulation struct {
	ID    uuid.UUID
	cfg   SimulationConfig
	geo   Geodesy
	rng   *rand.Rand
	nodes []*Node
	stats Stats
	epoch int
	state State

	stateModel *StationaryStateModel
	obsModel   *NonlinearObservationModel
	lsOpt      *LSOpt

	epochListeners []func(EpochEvent)
	skipListeners  []func(SkipEvent)
}

// NewSimulation validates cfg, places cfg.NNodes nodes and records the initial stats.
// A copy of cfg is kept; later changes to cfg have no effect on the run.
func NewSimulation(cfg *SimulationConfig, geo Geodesy) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if geo == nil {
		return nil, fmt.Errorf("%w: nil geodesy", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim := &Simulation{
		ID:         uuid.New(),
		cfg:        *cfg,
		geo:        geo,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^seedStream)),
		state:      Created,
		stateModel: NewStateModelFromConfig(cfg),
		obsModel:   NewNonlinearObservationModel(cfg.KFModelTofObservationVariance),
		lsOpt:      NewLSOptFromConfig(cfg),
	}
	sim.placeNodes()
	sim.stats.record(sim.nodes)
	if sim.cfg.NEpochs == 0 {
		sim.state = Completed
	}
	PrintD(1, "simulation %s: %d nodes, %d epochs\n", sim.ID, cfg.NNodes, cfg.NEpochs)
	return sim, nil
}

// NewStateModelFromConfig builds the stationary model from the kf_model variances.
func NewStateModelFromConfig(cfg *SimulationConfig) *StationaryStateModel {
	return NewStationaryStateModel(cfg.KFModelPositionVariance, cfg.KFModelBetaVariance, cfg.KFModelTauVariance)
}

func (s *Simulation) placeNodes() {
	c := &s.cfg
	s.nodes = make([]*Node, c.NNodes)
	for i := range c.NNodes {
		trueCell := s.geo.RandomCell(c.H3Resolution, s.rng)
		assertedCell := s.geo.GaussianNeighbor(trueCell, c.AssertedPositionVariance, c.H3Resolution, s.rng)
		beta := uniform(c.BetaMin, c.BetaMax, s.rng)
		tau := uniform(c.TauMin, c.TauMax, s.rng)
		s.nodes[i] = NewNode(i, trueCell, assertedCell, beta, tau, c, s.geo)
	}
}

func uniform(lo, hi float64, rng *rand.Rand) float64 {
	if lo == hi {
		return lo
	}
	d := distuv.Uniform{Min: lo, Max: hi, Src: rng}
	return d.Rand()
}

func (s *Simulation) RegisterEpochListener(fn func(EpochEvent)) {
	s.epochListeners = append(s.epochListeners, fn)
}

func (s *Simulation) RegisterSkipListener(fn func(SkipEvent)) {
	s.skipListeners = append(s.skipListeners, fn)
}

func (s *Simulation) Config() SimulationConfig { return s.cfg }
func (s *Simulation) State() State { return s.state }

// Epoch returns the number of completed epochs.
func (s *Simulation) Epoch() int { return s.epoch }

// Nodes returns the live node collection. Callers must not modify it.
func (s *Simulation) Nodes() []*Node { return s.nodes }

func (s *Simulation) Stats() Stats { return s.stats.Clone() }

// RunEpoch updates every node once, in a freshly shuffled order, and appends one stats entry.
// Per-node estimator failures are logged and skipped; only unexpected errors are returned.
func (s *Simulation) RunEpoch() error {
	if s.state == Completed {
		return ErrSimulationCompleted
	}
	s.state = Running
	epoch := s.epoch + 1
	PrintD(1, "running epoch %d of %d\n", epoch, s.cfg.NEpochs)

	skips := map[Estimator]int{}
	order := s.rng.Perm(len(s.nodes))
	for _, i := range order {
		ne := s.updateNode(i)
		for _, st := range []Estimator{StageSampler, StageKF, StageLS} {
			if e, ok := ne.skipped[st]; ok {
				skips[st]++
				s.skip(epoch, i, st, e)
			}
		}
		if ne.fatal != nil {
			return fmt.Errorf("epoch %d, node %d, stage %s: %w", epoch, i, ne.stage, ne.fatal)
		}
	}

	s.stats.record(s.nodes)
	s.epoch = epoch
	if s.epoch >= s.cfg.NEpochs {
		s.state = Completed
	}

	kf, ls, asserted := s.stats.Last()
	PrintD(1, "finished epoch %d: rms kf=%.1f ls=%.1f asserted=%.1f\n", epoch, kf, ls, asserted)
	ev := EpochEvent{RunID: s.ID, Epoch: epoch, KFRMS: kf, LSRMS: ls, AssertedRMS: asserted, Skips: skips}
	for _, fn := range s.epochListeners {
		fn(ev)
	}
	return nil
}

// nodeErrors collects the stages that skipped a node, and an error that ends the run
type nodeErrors struct {
	skipped map[Estimator]error
	stage   Estimator
	fatal   error
}

func (ne *nodeErrors) fail(stage Estimator, err error) *nodeErrors {
	ne.stage = stage
	ne.fatal = err
	return ne
}

// updateNode samples measurements for node i and runs both estimators on them.
// The estimators are independent: a failure of one leaves the other free to update.
func (s *Simulation) updateNode(i int) *nodeErrors {
	n := s.nodes[i]
	ne := &nodeErrors{skipped: map[Estimator]error{}}

	meas, err := GenerateMeasurements(i, n.TrueEndpoint(), s.nodes, &s.cfg, s.rng)
	if err != nil {
		if !errors.Is(err, ErrInsufficientCounterparts) {
			return ne.fail(StageSampler, err)
		}
		ne.skipped[StageSampler] = err
		return ne
	}

	post, err := KFStep(i, meas, s.nodes, s.obsModel, s.stateModel)
	switch {
	case err == nil:
		n.ApplyKFEstimate(post, s.geo)
		PrintD(2, "\tnode %d kf: %s beta=%.4f tau=%.6f\n", i, n.KFEstimatedPosition, n.KFEstimatedBeta, n.KFEstimatedTau)
	case errors.Is(err, ErrCovarianceNotPSD):
		ne.skipped[StageKF] = err
	default:
		return ne.fail(StageKF, err)
	}

	sol, err := LSEstimatePosition(n.LSEstimatedPosition, n.AssertedPosition, meas, s.nodes, s.lsOpt)
	switch {
	case err == nil:
		n.ApplyLSEstimate(sol.Position, s.geo)
		PrintD(2, "\tnode %d ls: %s iterations=%d lambda=%.1e\n", i, n.LSEstimatedPosition, sol.Iterations, sol.Lambda)
	case errors.Is(err, ErrTooFewMeasurements), errors.Is(err, ErrSingularNormalEquations):
		ne.skipped[StageLS] = err
	default:
		return ne.fail(StageLS, err)
	}
	return ne
}

func (s *Simulation) skip(epoch, node int, stage Estimator, err error) {
	Logf("skipping %s update for node %d in epoch %d: %s\n", stage, node, epoch, err.Error())
	ev := SkipEvent{RunID: s.ID, Epoch: epoch, NodeID: node, Stage: stage, Err: err}
	for _, fn := range s.skipListeners {
		fn(ev)
	}
}

// RunEpochs advances at most n epochs and returns the state reached.
func (s *Simulation) RunEpochs(n int) (*ChunkResult, error) {
	if s.state == Completed {
		return nil, ErrSimulationCompleted
	}
	for range n {
		if s.state == Completed {
			break
		}
		if err := s.RunEpoch(); err != nil {
			return nil, err
		}
	}
	return s.chunk(), nil
}

// Run advances through all remaining epochs.
func (s *Simulation) Run() (*ChunkResult, error) {
	if s.state == Completed {
		return s.chunk(), nil
	}
	return s.RunEpochs(s.cfg.NEpochs - s.epoch)
}
