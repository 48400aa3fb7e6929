// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package proximum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func internalState(pos PosXYZ, beta, tau float64) *mat.VecDense {
	return Normalize(mat.NewVecDense(StateDim, []float64{pos.X, pos.Y, pos.Z, beta, tau}))
}

func TestLinearizeAtMatchesFiniteDifference(t *testing.T) {
	pts := fibonacciSphere(6, EarthRadius)
	state := internalState(pts[0].Add(PosXYZ{X: 12e3, Y: -7e3, Z: 3e3}), 0.45, 0.012)

	counterparts := make([]*mat.VecDense, 0, len(pts)-1)
	for i, p := range pts[1:] {
		counterparts = append(counterparts, internalState(p, 0.3+0.05*float64(i), 0.005*float64(i+1)))
	}

	om := NewNonlinearObservationModel(SQ(1e-3))
	lin := om.LinearizeAt(state, counterparts)
	require.Equal(t, len(counterparts), lin.Len())

	rows, cols := lin.H().Dims()
	require.Equal(t, len(counterparts), rows)
	require.Equal(t, StateDim, cols)

	const h = 1e-6
	for j := range StateDim {
		plus := mat.VecDenseCopyOf(state)
		minus := mat.VecDenseCopyOf(state)
		plus.SetVec(j, plus.AtVec(j)+h)
		minus.SetVec(j, minus.AtVec(j)-h)

		var diff mat.VecDense
		diff.SubVec(lin.Predict(plus), lin.Predict(minus))
		for i := range rows {
			assert.InDelta(t, diff.AtVec(i)/(2*h), lin.H().At(i, j), 1e-7, "row %d column %d", i, j)
		}
	}

	for i := range rows {
		assert.Equal(t, SQ(1e-3), lin.R().At(i, i))
	}
	assert.Equal(t, 0.0, lin.R().At(0, 1))
}

func TestLinearizeAtCoincidentCounterpart(t *testing.T) {
	p := PosXYZ{X: EarthRadius}
	state := internalState(p, 0.5, 0.01)
	cp := internalState(p.Add(PosXYZ{Y: 30}), 0.5, 0.01)

	lin := NewNonlinearObservationModel(1).LinearizeAt(state, []*mat.VecDense{cp})
	H := lin.H()
	for j := range 3 {
		assert.Equal(t, 0.0, H.At(0, j), "position column %d", j)
	}
	assert.InDelta(t, -30/(C*0.25), H.At(0, 3), 1e-15)
	assert.Equal(t, STATE_FACTOR[4], H.At(0, 4))
}

func TestPredictUsesBothLatencies(t *testing.T) {
	a := PosXYZ{X: EarthRadius}
	b := PosXYZ{Y: EarthRadius}
	state := internalState(a, 0.5, 0.010)
	cp := internalState(b, 0.25, 0.020)

	lin := NewNonlinearObservationModel(1).LinearizeAt(state, []*mat.VecDense{cp})
	d := EucDist(&a, &b)
	want := d/(C*0.5) + 0.010 + d/(C*0.25) + 0.020
	assert.InDelta(t, want, lin.Predict(state).AtVec(0), 1e-12)
}
