// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.6
//

package proximum

import (
	"gonum.org/v1/gonum/mat"
)

// Per-dimension scale of the filter state; internal = real / STATE_FACTOR.
var STATE_FACTOR = [StateDim]float64{EarthRadius, EarthRadius, EarthRadius, 1, 0.01}

// Normalize converts a real-unit state [x, y, z, beta, tau] into internal units.
func Normalize(x mat.Vector) *mat.VecDense {
	v := mat.NewVecDense(StateDim, nil)
	for i := range StateDim {
		v.SetVec(i, x.AtVec(i)/STATE_FACTOR[i])
	}
	return v
}

// Denormalize converts an internal state back to real units.
func Denormalize(internal mat.Vector) *mat.VecDense {
	v := mat.NewVecDense(StateDim, nil)
	for i := range StateDim {
		v.SetVec(i, internal.AtVec(i)*STATE_FACTOR[i])
	}
	return v
}

// StationaryStateModel is the transition model x(k+1) = x(k) + w, w ~ N(0, Q).
type StationaryStateModel struct {
	f *mat.Dense
	q *mat.SymDense
}

// NewStationaryStateModel builds the model from real-unit process variances
// of position (shared by x, y, z), beta and tau.
func NewStationaryStateModel(positionVar, betaVar, tauVar float64) *StationaryStateModel {
	q := mat.NewSymDense(StateDim, nil)
	realVar := [StateDim]float64{positionVar, positionVar, positionVar, betaVar, tauVar}
	for i := range StateDim {
		q.SetSym(i, i, realVar[i]/SQ(STATE_FACTOR[i]))
	}
	return &StationaryStateModel{f: identity(StateDim), q: q}
}

func (sm *StationaryStateModel) F() mat.Matrix { return sm.f }
func (sm *StationaryStateModel) FT() mat.Matrix { return sm.f.T() }
func (sm *StationaryStateModel) Q() mat.Symmetric {
	return sm.q
}

// Predict propagates a state and covariance one step: x' = F x, P' = F P F^t + Q.
func (sm *StationaryStateModel) Predict(x *mat.VecDense, P mat.Symmetric) (*mat.VecDense, *mat.SymDense) {
	var x2 mat.VecDense
	x2.MulVec(sm.f, x)

	var FP, FPFt mat.Dense
	FP.Mul(sm.f, P)
	FPFt.Mul(&FP, sm.FT())
	FPFt.Add(&FPFt, sm.q)
	return &x2, symmetrize(&FPFt)
}

// symmetrize returns (A + A^t) / 2.
func symmetrize(A mat.Matrix) *mat.SymDense {
	n, _ := A.Dims()
	S := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			S.SetSym(i, j, (A.At(i, j)+A.At(j, i))/2)
		}
	}
	return S
}
