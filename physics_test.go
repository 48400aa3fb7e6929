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
	"golang.org/x/exp/slices"
)

func TestSimulateRoundTripTimeZeroNoise(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.BetaMin, cfg.BetaMax, cfg.BetaVariance = 1, 1, 0
	cfg.TauMin, cfg.TauMax, cfg.TauVariance = 0, 0, 0

	a := Endpoint{Position: PosXYZ{X: Re}, Beta: 1, Tau: 0}
	b := Endpoint{Position: PosXYZ{X: Re, Y: 3000, Z: 4000}, Beta: 1, Tau: 0}

	got := SimulateRoundTripTime(a, b, cfg, testRand())
	assert.InDelta(t, 2*5000/C, got, 1e-18)
}

func TestSimulateRoundTripTimeIncludesBothLatencies(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.BetaVariance, cfg.TauVariance = 0, 0

	a := Endpoint{Position: PosXYZ{X: Re}, Beta: 0.5, Tau: 0.004}
	b := Endpoint{Position: PosXYZ{X: -Re}, Beta: 0.25, Tau: 0.020}

	d := 2 * Re
	want := d/(C*0.5) + 0.004 + d/(C*0.25) + 0.020
	assert.InDelta(t, want, SimulateRoundTripTime(a, b, cfg, testRand()), 1e-12)
}

func TestSimulateRoundTripTimeClampsParameters(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.BetaVariance = 4  // far wider than the beta range
	cfg.TauVariance = 1e4 // log-space sigma of about 4.6

	a := Endpoint{Position: PosXYZ{X: Re}, Beta: 0.5, Tau: 0.010}
	b := Endpoint{Position: PosXYZ{Y: Re}, Beta: 0.5, Tau: 0.010}
	d := EucDist(&a.Position, &b.Position)

	lo := 2 * (d/(C*cfg.BetaMax) + cfg.TauMin)
	hi := 2 * (d/(C*cfg.BetaMin) + cfg.TauMax)
	rng := testRand()
	for range 500 {
		got := SimulateRoundTripTime(a, b, cfg, rng)
		require.GreaterOrEqual(t, got, lo-1e-12)
		require.LessOrEqual(t, got, hi+1e-12)
	}
}

func TestDrawTauZeroVarianceKeepsTrueValue(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.TauVariance = 0
	assert.Equal(t, 0.012, drawTau(0.012, cfg, testRand()))

	// Out of range values are still clamped
	assert.Equal(t, cfg.TauMax, drawTau(1, cfg, testRand()))
}

func TestGenerateMeasurementsExhaustion(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.NMeasurements = 3
	cfg.MessageDistanceMax = 1000
	nodes := newTestNodes(fibonacciSphere(12, EarthRadius), 0.5, 0.01)

	_, err := GenerateMeasurements(0, nodes[0].TrueEndpoint(), nodes, cfg, testRand())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientCounterparts))
	assert.Contains(t, err.Error(), "found 0 but need 3")
}

func TestGenerateMeasurementsDrawsDistinctCounterparts(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.NMeasurements = 10
	cfg.MessageDistanceMax = 3 * Re
	nodes := newTestNodes(fibonacciSphere(20, EarthRadius), 0.5, 0.01)
	rng := testRand()

	for me := range nodes {
		m, err := GenerateMeasurements(me, nodes[me].TrueEndpoint(), nodes, cfg, rng)
		require.NoError(t, err)
		require.Equal(t, cfg.NMeasurements, m.Len())
		require.Equal(t, cfg.NMeasurements, m.Times.Len())
		assert.NotContains(t, m.Indices, me)

		sorted := slices.Clone(m.Indices)
		slices.Sort(sorted)
		assert.Len(t, slices.Compact(sorted), cfg.NMeasurements, "indices must be distinct")
		for k := range m.Len() {
			assert.Greater(t, m.Times.AtVec(k), 0.0)
		}
	}
}

func TestGenerateMeasurementsRespectsRange(t *testing.T) {
	cfg := NewSimulationConfig()
	cfg.NMeasurements = 2
	pts := []PosXYZ{
		{X: Re},
		{X: Re, Y: 1000},
		{X: Re, Z: 2000},
		{X: -Re},
	}
	cfg.MessageDistanceMax = 5000
	nodes := newTestNodes(pts, 0.5, 0.01)

	m, err := GenerateMeasurements(0, nodes[0].TrueEndpoint(), nodes, cfg, testRand())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, m.Indices)
}
