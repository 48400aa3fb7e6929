// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package proximum

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// Exact round trip times from truth under the model beta and tau of opt
func lsTimes(truth PosXYZ, counterparts []PosXYZ, opt *LSOpt) *mat.VecDense {
	times := mat.NewVecDense(len(counterparts), nil)
	for i, cp := range counterparts {
		times.SetVec(i, 2*(EucDist(&truth, &cp)/(opt.ModelBeta*C)+opt.ModelTau))
	}
	return times
}

func TestSolveMultilaterationTooFewMeasurements(t *testing.T) {
	cps := fibonacciSphere(3, EarthRadius)
	opt := NewLSOpt()
	_, err := SolveMultilateration(PosXYZ{X: EarthRadius}, PosXYZ{X: EarthRadius}, lsTimes(PosXYZ{X: EarthRadius}, cps, opt), cps, opt)
	assert.True(t, errors.Is(err, ErrTooFewMeasurements))
}

func TestSolveMultilaterationSizeMismatch(t *testing.T) {
	cps := fibonacciSphere(5, EarthRadius)
	_, err := SolveMultilateration(PosXYZ{X: EarthRadius}, PosXYZ{X: EarthRadius}, mat.NewVecDense(4, nil), cps, NewLSOpt())
	assert.Error(t, err)
}

func TestSolveMultilaterationSeededAtTruth(t *testing.T) {
	pts := fibonacciSphere(9, EarthRadius)
	truth, cps := pts[0], pts[1:]
	opt := NewLSOpt()
	opt.Tolerance = 1e-9
	opt.MaxIterations = 10

	sol, err := SolveMultilateration(truth, truth, lsTimes(truth, cps, opt), cps, opt)
	require.NoError(t, err)
	assert.Equal(t, 1, sol.Iterations)
	assert.True(t, sol.Converged)
	assert.InDelta(t, 0, sol.ResidualNorm, 1e-12)
	assert.InDelta(t, 0, EucDist(&sol.Position, &truth), 1e-3)
	assert.Equal(t, opt.InitialLambda/10, sol.Lambda)
}

func TestSolveMultilaterationLambdaGrowsWhenBandLimitsStep(t *testing.T) {
	cps := fibonacciSphere(8, EarthRadius)
	initial := PosXYZ{X: EarthRadius}
	truth := PosXYZ{X: 1.05 * EarthRadius}
	opt := &LSOpt{ModelBeta: 0.5, ModelTau: 0.015, Tolerance: 0, MaxIterations: 1, InitialLambda: 1e-6}

	sol, err := SolveMultilateration(initial, initial, lsTimes(truth, cps, opt), cps, opt)
	require.NoError(t, err)
	assert.InEpsilon(t, 1e-5, sol.Lambda, 1e-12)
	assert.False(t, sol.Converged)

	// The estimate stays on the unit sphere band
	n := sol.Position.Norm() / EarthRadius
	assert.InDelta(t, 1, n, SphereBand)
}

func TestSolveMultilaterationLambdaShrinksToFloor(t *testing.T) {
	pts := fibonacciSphere(9, EarthRadius)
	truth, cps := pts[0], pts[1:]
	initial := truth.Add(enuOffset(truth, 10e3, 0))
	opt := &LSOpt{ModelBeta: 0.5, ModelTau: 0.015, Tolerance: 0, MaxIterations: 1, InitialLambda: 1e-6}

	sol, err := SolveMultilateration(initial, initial, lsTimes(truth, cps, opt), cps, opt)
	require.NoError(t, err)
	assert.InEpsilon(t, 1e-7, sol.Lambda, 1e-12)

	opt.InitialLambda = LambdaFloor
	sol, err = SolveMultilateration(initial, initial, lsTimes(truth, cps, opt), cps, opt)
	require.NoError(t, err)
	assert.Equal(t, LambdaFloor, sol.Lambda)
}

func TestSolveMultilaterationImprovesEstimate(t *testing.T) {
	pts := fibonacciSphere(13, EarthRadius)
	truth, cps := pts[0], pts[1:]
	asserted := truth.Add(enuOffset(truth, 300e3, -200e3))
	opt := &LSOpt{ModelBeta: 0.5, ModelTau: 0.015, Tolerance: 1e-9, MaxIterations: 20, InitialLambda: 1e-3}

	sol, err := SolveMultilateration(asserted, asserted, lsTimes(truth, cps, opt), cps, opt)
	require.NoError(t, err)
	before := EucDist(&asserted, &truth)
	after := EucDist(&sol.Position, &truth)
	assert.Less(t, after, before/10, "error before=%.1f after=%.1f", before, after)
}

func TestLSEstimatePositionUsesCounterpartEstimates(t *testing.T) {
	pts := fibonacciSphere(9, EarthRadius)
	nodes := newTestNodes(pts, 0.5, 0.015)
	opt := NewLSOpt()
	opt.Tolerance = 1e-9
	opt.MaxIterations = 10

	// Counterparts believe they are elsewhere; the solver must use those beliefs
	for _, n := range nodes[1:] {
		n.LSEstimatedPosition = n.TruePosition.Add(enuOffset(n.TruePosition, 50e3, 50e3))
	}
	idx := []int{1, 2, 3, 4, 5, 6, 7, 8}
	believed := make([]PosXYZ, len(idx))
	for k, i := range idx {
		believed[k] = nodes[i].LSEstimatedPosition
	}
	truth := nodes[0].TruePosition
	meas := &MeasurementSet{Indices: idx, Times: lsTimes(truth, believed, opt)}

	sol, err := LSEstimatePosition(truth, truth, meas, nodes, opt)
	require.NoError(t, err)
	assert.True(t, sol.Converged)
	assert.InDelta(t, 0, sol.ResidualNorm, 1e-12)
}

// enuOffset returns the ECEF displacement of a horizontal east/north offset at base
func enuOffset(base PosXYZ, e, n float64) PosXYZ {
	enu := PosENU{E: e, N: n}
	return enu.ToXYZ(base).Sub(base)
}
