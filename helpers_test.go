// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package proximum

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Evenly spread points on a sphere of the given radius
func fibonacciSphere(n int, radius float64) []PosXYZ {
	pts := make([]PosXYZ, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range n {
		z := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - z*z)
		th := golden * float64(i)
		pts[i] = PosXYZ{X: r * math.Cos(th), Y: r * math.Sin(th), Z: z}.Scale(radius)
	}
	return pts
}

// Node whose estimates all sit at the truth
func newTestNode(id int, pos PosXYZ, beta, tau float64) *Node {
	n := &Node{
		ID:                  id,
		TruePosition:        pos,
		TrueBeta:            beta,
		TrueTau:             tau,
		AssertedPosition:    pos,
		LSEstimatedPosition: pos,
	}
	P := mat.NewSymDense(StateDim, nil)
	for i := range StateDim {
		P.SetSym(i, i, 1)
	}
	n.KF = NewStateAndCovariance(Normalize(mat.NewVecDense(StateDim, []float64{pos.X, pos.Y, pos.Z, beta, tau})), P)
	return n
}

func newTestNodes(pts []PosXYZ, beta, tau float64) []*Node {
	nodes := make([]*Node, len(pts))
	for i, p := range pts {
		nodes[i] = newTestNode(i, p, beta, tau)
	}
	return nodes
}

// Config without any noise: fixed beta and tau, asserted position at the truth
func zeroNoiseConfig() *SimulationConfig {
	cfg := NewSimulationConfig()
	cfg.NNodes = 10
	cfg.NEpochs = 5
	cfg.NMeasurements = 5
	cfg.H3Resolution = 12
	cfg.AssertedPositionVariance = 0
	cfg.BetaMin, cfg.BetaMax, cfg.BetaVariance = 0.5, 0.5, 0
	cfg.TauMin, cfg.TauMax, cfg.TauVariance = 0.015, 0.015, 0
	cfg.MessageDistanceMax = 2 * Re
	cfg.LSModelBeta, cfg.LSModelTau = 0.5, 0.015
	cfg.KFModelBeta, cfg.KFModelTau = 0.5, 0.015
	cfg.LSTolerance = 1e-9
	return cfg
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}
