// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.6
//

// Synthetic ping-pong time of flight between nodes.

package proximum

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrInsufficientCounterparts = errors.New("not enough eligible nodes")

// Endpoint is the true physical description of one side of an exchange.
type Endpoint struct {
	Position PosXYZ
	Beta     float64 // Message speed as a fraction of C
	Tau      float64 // Processing latency [s]
}

// MeasurementSet pairs counterpart node indices with measured round trip times [s].
type MeasurementSet struct {
	Indices []int
	Times   *mat.VecDense
}

func (m *MeasurementSet) Len() int {
	return len(m.Indices)
}

// SimulateRoundTripTime returns the time for a ping from a to b plus the pong back.
// Each side's beta and tau are redrawn for every call. The result is not halved.
func SimulateRoundTripTime(a, b Endpoint, cfg *SimulationConfig, rng *rand.Rand) float64 {
	d := EucDist(&a.Position, &b.Position)

	betaA := drawBeta(a.Beta, cfg, rng)
	betaB := drawBeta(b.Beta, cfg, rng)
	tauA := drawTau(a.Tau, cfg, rng)
	tauB := drawTau(b.Tau, cfg, rng)

	ping := d/(C*betaA) + tauA
	pong := d/(C*betaB) + tauB
	return ping + pong
}

// Normal around the true beta, clamped to the configured range
func drawBeta(trueBeta float64, cfg *SimulationConfig, rng *rand.Rand) float64 {
	d := distuv.Normal{Mu: trueBeta, Sigma: math.Sqrt(cfg.BetaVariance), Src: rng}
	return clamp(d.Rand(), cfg.BetaMin, cfg.BetaMax)
}

// Log-normal with underlying mean ln(tau) and underlying sigma ln(sqrt(variance)),
// clamped to the configured range. A non-finite sigma (zero variance) yields the true tau.
func drawTau(trueTau float64, cfg *SimulationConfig, rng *rand.Rand) float64 {
	sigma := math.Log(math.Sqrt(cfg.TauVariance))
	if math.IsInf(sigma, 0) || math.IsNaN(sigma) {
		return clamp(trueTau, cfg.TauMin, cfg.TauMax)
	}
	d := distuv.LogNormal{Mu: math.Log(trueTau), Sigma: math.Abs(sigma), Src: rng}
	return clamp(d.Rand(), cfg.TauMin, cfg.TauMax)
}

// GenerateMeasurements samples cfg.NMeasurements distinct counterparts within message range
// of me and simulates one round trip to each.
//
// Parameters:
//   - myIndex: index of the measuring node, excluded from the candidates
//   - me: true position, beta and tau of the measuring node
//   - nodes: all nodes of the simulation
//
// Returns:
//   - MeasurementSet: counterpart indices in draw order and their round trip times
//   - error: wraps ErrInsufficientCounterparts when too few nodes are in range
func GenerateMeasurements(myIndex int, me Endpoint, nodes []*Node, cfg *SimulationConfig, rng *rand.Rand) (*MeasurementSet, error) {

	// Counterparts within message range
	eligible := make([]int, 0, len(nodes))
	for i, n := range nodes {
		if i == myIndex {
			continue
		}
		if EucDist(&me.Position, &n.TruePosition) <= cfg.MessageDistanceMax {
			eligible = append(eligible, i)
		}
	}
	nm := cfg.NMeasurements
	if len(eligible) < nm {
		return nil, fmt.Errorf("%w: found %d but need %d", ErrInsufficientCounterparts, len(eligible), nm)
	}

	// Partial Fisher-Yates draw without replacement
	for k := range nm {
		j := k + rng.IntN(len(eligible)-k)
		eligible[k], eligible[j] = eligible[j], eligible[k]
	}
	indices := eligible[:nm:nm]

	times := mat.NewVecDense(nm, nil)
	for k, idx := range indices {
		times.SetVec(k, SimulateRoundTripTime(me, nodes[idx].TrueEndpoint(), cfg, rng))
	}
	PrintD(3, "\tmeasurements node=%d counterparts=%v\n", myIndex, indices)
	return &MeasurementSet{Indices: indices, Times: times}, nil
}
